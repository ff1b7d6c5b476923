// Package store persists the bridge configuration: per-guild flags, the
// global credential/override row, and member customizations.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingGuildID  = errors.New("guild identifier is required")
	errMissingMemberID = errors.New("member identifier is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "store.service.new"
	opGuildConfig        = "store.guild_config"
	opAllGuildConfigs    = "store.all_guild_configs"
	opSetPassworded      = "store.set_passworded"
	opSetIgnoreOffline   = "store.set_ignore_offline"
	opSetSelectedVersion = "store.set_selected_version"
	opGlobalConfig       = "store.global_config"
	opSetClientID        = "store.set_client_id"
	opSetClientSecret    = "store.set_client_secret"
	opSetStaticFilePath  = "store.set_static_file_path"
	opSetSocketURL       = "store.set_socket_url"
	opCustomizations     = "store.customizations"
	opSetCustomization   = "store.set_customization"
	opPurgeMemberData    = "store.purge_member_data"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const globalConfigRowID = 1

// ServiceConfig bundles the dependencies of the config store.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service reads and writes bridge configuration through GORM.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the config store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		logger: logger,
	}, nil
}

// GuildConfig returns the stored configuration for guildID. Guilds that were
// never configured read as the zero-value defaults, not as an error.
func (s *Service) GuildConfig(ctx context.Context, guildID string) (GuildConfig, error) {
	if strings.TrimSpace(guildID) == "" {
		s.logError(opGuildConfig, "missing_guild_id", errMissingGuildID)
		return GuildConfig{}, newServiceError(opGuildConfig, "missing_guild_id", errMissingGuildID)
	}

	var config GuildConfig
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Take(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GuildConfig{GuildID: guildID}, nil
	}
	if err != nil {
		s.logError(opGuildConfig, "query_failed", err, zap.String("guild_id", guildID))
		return GuildConfig{}, newServiceError(opGuildConfig, "query_failed", err)
	}
	return config, nil
}

// AllGuildConfigs returns every persisted guild configuration.
func (s *Service) AllGuildConfigs(ctx context.Context) ([]GuildConfig, error) {
	var configs []GuildConfig
	if err := s.db.WithContext(ctx).Order("guild_id").Find(&configs).Error; err != nil {
		s.logError(opAllGuildConfigs, "query_failed", err)
		return nil, newServiceError(opAllGuildConfigs, "query_failed", err)
	}
	return configs, nil
}

// SetPassworded persists the guild's protection flag.
func (s *Service) SetPassworded(ctx context.Context, guildID string, passworded bool) error {
	return s.mutateGuildConfig(ctx, opSetPassworded, guildID, func(config *GuildConfig) {
		config.Passworded = passworded
	})
}

// SetIgnoreOffline persists whether offline members are dropped from the
// guild's member snapshot.
func (s *Service) SetIgnoreOffline(ctx context.Context, guildID string, ignore bool) error {
	return s.mutateGuildConfig(ctx, opSetIgnoreOffline, guildID, func(config *GuildConfig) {
		config.IgnoreOfflineMembers = ignore
	})
}

// SetSelectedVersion persists the guild's pinned client version, nil for the
// default build.
func (s *Service) SetSelectedVersion(ctx context.Context, guildID string, version *string) error {
	return s.mutateGuildConfig(ctx, opSetSelectedVersion, guildID, func(config *GuildConfig) {
		config.SelectedVersion = version
	})
}

func (s *Service) mutateGuildConfig(ctx context.Context, operation, guildID string, mutate func(*GuildConfig)) error {
	if strings.TrimSpace(guildID) == "" {
		s.logError(operation, "missing_guild_id", errMissingGuildID)
		return newServiceError(operation, "missing_guild_id", errMissingGuildID)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var config GuildConfig
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("guild_id = ?", guildID).
			Take(&config).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config = GuildConfig{GuildID: guildID}
			mutate(&config)
			return tx.Create(&config).Error
		}
		if err != nil {
			return err
		}
		mutate(&config)
		return tx.Save(&config).Error
	})
	if txErr != nil {
		s.logError(operation, "guild_config_write_failed", txErr, zap.String("guild_id", guildID))
		return newServiceError(operation, "guild_config_write_failed", txErr)
	}
	return nil
}

// Global returns the singleton bridge-wide configuration row, zero-valued
// when nothing was ever stored.
func (s *Service) Global(ctx context.Context) (GlobalConfig, error) {
	var config GlobalConfig
	err := s.db.WithContext(ctx).Where("id = ?", globalConfigRowID).Take(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GlobalConfig{ID: globalConfigRowID}, nil
	}
	if err != nil {
		s.logError(opGlobalConfig, "query_failed", err)
		return GlobalConfig{}, newServiceError(opGlobalConfig, "query_failed", err)
	}
	return config, nil
}

// SetClientID stores the OAuth application id and reports whether the value
// changed.
func (s *Service) SetClientID(ctx context.Context, clientID string) (bool, error) {
	changed := false
	err := s.mutateGlobal(ctx, opSetClientID, func(config *GlobalConfig) {
		changed = config.ClientID != clientID
		config.ClientID = clientID
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// SetClientSecret stores the OAuth application secret.
func (s *Service) SetClientSecret(ctx context.Context, clientSecret string) error {
	return s.mutateGlobal(ctx, opSetClientSecret, func(config *GlobalConfig) {
		config.ClientSecret = clientSecret
	})
}

// SetStaticFilePath stores the static override root, empty to clear it.
func (s *Service) SetStaticFilePath(ctx context.Context, path string) error {
	return s.mutateGlobal(ctx, opSetStaticFilePath, func(config *GlobalConfig) {
		config.StaticFilePath = path
	})
}

// StaticFilePath returns the configured override root, empty when unset.
func (s *Service) StaticFilePath(ctx context.Context) (string, error) {
	global, err := s.Global(ctx)
	if err != nil {
		return "", err
	}
	return global.StaticFilePath, nil
}

// SetSocketURL stores the socket endpoint advertised to embeds, empty to
// fall back to the built-in default.
func (s *Service) SetSocketURL(ctx context.Context, socketURL string) error {
	return s.mutateGlobal(ctx, opSetSocketURL, func(config *GlobalConfig) {
		config.SocketURL = socketURL
	})
}

func (s *Service) mutateGlobal(ctx context.Context, operation string, mutate func(*GlobalConfig)) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var config GlobalConfig
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", globalConfigRowID).
			Take(&config).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config = GlobalConfig{ID: globalConfigRowID}
			mutate(&config)
			return tx.Create(&config).Error
		}
		if err != nil {
			return err
		}
		mutate(&config)
		return tx.Save(&config).Error
	})
	if txErr != nil {
		s.logError(operation, "global_config_write_failed", txErr)
		return newServiceError(operation, "global_config_write_failed", txErr)
	}
	return nil
}

// Customizations returns the guild's stored overrides keyed by member id.
func (s *Service) Customizations(ctx context.Context, guildID string) (map[string]MemberCustomization, error) {
	if strings.TrimSpace(guildID) == "" {
		s.logError(opCustomizations, "missing_guild_id", errMissingGuildID)
		return nil, newServiceError(opCustomizations, "missing_guild_id", errMissingGuildID)
	}

	var rows []MemberCustomization
	if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Find(&rows).Error; err != nil {
		s.logError(opCustomizations, "query_failed", err, zap.String("guild_id", guildID))
		return nil, newServiceError(opCustomizations, "query_failed", err)
	}

	result := make(map[string]MemberCustomization, len(rows))
	for _, row := range rows {
		result[row.MemberID] = row
	}
	return result, nil
}

// SetCustomization overwrites the member's stored overrides for the guild.
func (s *Service) SetCustomization(ctx context.Context, guildID, memberID, roleColor, customMessage string) error {
	if strings.TrimSpace(guildID) == "" {
		s.logError(opSetCustomization, "missing_guild_id", errMissingGuildID)
		return newServiceError(opSetCustomization, "missing_guild_id", errMissingGuildID)
	}
	if strings.TrimSpace(memberID) == "" {
		s.logError(opSetCustomization, "missing_member_id", errMissingMemberID)
		return newServiceError(opSetCustomization, "missing_member_id", errMissingMemberID)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row MemberCustomization
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("guild_id = ? AND member_id = ?", guildID, memberID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = MemberCustomization{GuildID: guildID, MemberID: memberID, RoleColor: roleColor, CustomMessage: customMessage}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		row.RoleColor = roleColor
		row.CustomMessage = customMessage
		return tx.Save(&row).Error
	})
	if txErr != nil {
		s.logError(opSetCustomization, "write_failed", txErr,
			zap.String("guild_id", guildID),
			zap.String("member_id", memberID))
		return newServiceError(opSetCustomization, "write_failed", txErr)
	}
	return nil
}

// PurgeMemberData removes every stored customization for the member across
// all guilds. Used for platform-mandated user-data erasure.
func (s *Service) PurgeMemberData(ctx context.Context, memberID string) error {
	if strings.TrimSpace(memberID) == "" {
		s.logError(opPurgeMemberData, "missing_member_id", errMissingMemberID)
		return newServiceError(opPurgeMemberData, "missing_member_id", errMissingMemberID)
	}

	if err := s.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&MemberCustomization{}).Error; err != nil {
		s.logError(opPurgeMemberData, "delete_failed", err, zap.String("member_id", memberID))
		return newServiceError(opPurgeMemberData, "delete_failed", err)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("config store error", attrs...)
}
