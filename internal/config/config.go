package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/NNTin/d-cogs/internal/versions"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "DWORLD"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "dworld.db"
	defaultLogLevel        = "info"
	defaultAPIBase         = "https://discord.com/api"
	defaultTokenTTLMinutes = 60
)

// AppConfig captures runtime configuration for the bridge process.
type AppConfig struct {
	HTTPAddress        string
	BotToken           string
	APIBase            string
	DatabasePath       string
	LogLevel           string
	SigningSecret      string
	TokenTTL           time.Duration
	VersionsCatalogURL string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("discord.api_base", defaultAPIBase)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("versions.catalog_url", versions.DefaultCatalogURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		BotToken:           configViper.GetString("discord.token"),
		APIBase:            configViper.GetString("discord.api_base"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		VersionsCatalogURL: configViper.GetString("versions.catalog_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
