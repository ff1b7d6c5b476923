package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NNTin/d-cogs/internal/auth"
	"github.com/NNTin/d-cogs/internal/bridge"
	"github.com/NNTin/d-cogs/internal/config"
	"github.com/NNTin/d-cogs/internal/database"
	"github.com/NNTin/d-cogs/internal/gate"
	"github.com/NNTin/d-cogs/internal/logging"
	"github.com/NNTin/d-cogs/internal/platform/discord"
	"github.com/NNTin/d-cogs/internal/server"
	"github.com/NNTin/d-cogs/internal/static"
	"github.com/NNTin/d-cogs/internal/store"
	"github.com/NNTin/d-cogs/internal/transport"
	"github.com/NNTin/d-cogs/internal/versions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	tokenIssuerName = "dworld"
	tokenAudience   = "dworld-admin"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dworld",
		Short: "Guild presence bridge for the d-zone client",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAdminTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Admin token TTL in minutes")
	cmd.PersistentFlags().String("catalog-url", defaults.GetString("versions.catalog_url"), "Published client build catalog URL")
	cmd.PersistentFlags().String("discord-token", "", "Bot token (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "versions.catalog_url", "catalog-url")
	bindFlag(cmd, "discord.token", "discord-token")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newAdminTokenCommand mints a bearer token for the admin API without
// starting the bridge. Only the signing settings are read, so a bot token
// need not be present.
func newAdminTokenCommand() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the admin API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(viper.GetString("auth.signing_secret")),
				Issuer:        tokenIssuerName,
				Audience:      tokenAudience,
				TokenTTL:      time.Duration(viper.GetInt("auth.token_ttl_minutes")) * time.Minute,
			})
			if err != nil {
				return err
			}
			token, _, err := issuer.IssueAdminToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Operator name embedded as the token subject")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	configStore, err := store.NewService(store.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	accessGate, err := gate.New(gate.Config{
		Store:  configStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := accessGate.WarmCache(ctx); err != nil {
		logger.Warn("password cache warm-up failed", zap.Error(err))
	}

	hub := transport.NewHub()

	adapter, err := discord.NewAdapter(discord.AdapterConfig{
		BotToken: appConfig.BotToken,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	verifier := auth.NewDiscordVerifier(auth.DiscordVerifierConfig{
		APIBase: appConfig.APIBase,
		Logger:  logger,
	})

	viewerValidator, err := auth.NewValidator(auth.ValidatorConfig{
		Identity:    verifier,
		Credentials: accessGate,
		Directory:   adapter,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	bridgeService, err := bridge.NewService(bridge.ServiceConfig{
		Provider:    adapter,
		Store:       configStore,
		Gate:        accessGate,
		Broadcaster: hub,
		Validator:   viewerValidator,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuerName,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Provider:     adapter,
		Store:        configStore,
		Gate:         accessGate,
		Bridge:       bridgeService,
		Static:       static.NewResolver(configStore, logger),
		Versions:     versions.NewCatalog(versions.CatalogConfig{CatalogURL: appConfig.VersionsCatalogURL, Logger: logger}),
		Events:       hub,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if err := adapter.Start(bridgeService); err != nil {
		return err
	}
	defer adapter.Close() //nolint:errcheck

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
