// Package bridge implements the data and policy core behind the socket
// callbacks: guild and member snapshots, translation of gateway events into
// wire records, viewer validation, and the customization write path.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/NNTin/d-cogs/internal/auth"
	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/NNTin/d-cogs/internal/store"
	"github.com/NNTin/d-cogs/internal/wire"
	"go.uber.org/zap"
)

var (
	// ErrInvalidBridgeConfig indicates a missing bridge collaborator.
	ErrInvalidBridgeConfig = errors.New("bridge: invalid bridge configuration")
	// ErrInvalidRoleColor rejects customization writes that are not #RRGGBB.
	ErrInvalidRoleColor = errors.New("bridge: invalid role color")

	errMissingProvider    = errors.New("platform provider is required")
	errMissingStore       = errors.New("config store is required")
	errMissingGate        = errors.New("access gate is required")
	errMissingBroadcaster = errors.New("broadcaster is required")
	errMissingValidator   = errors.New("viewer validator is required")
)

// ConfigStore is the slice of the persistence layer the bridge reads and
// writes.
type ConfigStore interface {
	GuildConfig(ctx context.Context, guildID string) (store.GuildConfig, error)
	Global(ctx context.Context) (store.GlobalConfig, error)
	Customizations(ctx context.Context, guildID string) (map[string]store.MemberCustomization, error)
	SetCustomization(ctx context.Context, guildID, memberID, roleColor, customMessage string) error
}

// AccessGate answers protection lookups from the warmed cache.
type AccessGate interface {
	IsPassworded(guildID string) bool
}

// Broadcaster carries wire records to a guild's connected viewers.
type Broadcaster interface {
	BroadcastPresence(ctx context.Context, guildID string, record wire.PresenceRecord) error
	BroadcastMessage(ctx context.Context, guildID string, record wire.PresenceRecord) error
	BroadcastClientIDUpdate(ctx context.Context, guildID, clientID string) error
}

// ViewerValidator decides whether a viewer may open a protected guild.
type ViewerValidator interface {
	Validate(ctx context.Context, bearerToken string, claimed auth.UserInfo, guildID string) bool
}

// ServiceConfig bundles the bridge collaborators.
type ServiceConfig struct {
	Provider    platform.Provider
	Store       ConfigStore
	Gate        AccessGate
	Broadcaster Broadcaster
	Validator   ViewerValidator
	Logger      *zap.Logger
}

// Service is the callback surface the socket transport drives.
type Service struct {
	provider    platform.Provider
	store       ConfigStore
	gate        AccessGate
	broadcaster Broadcaster
	validator   ViewerValidator
	logger      *zap.Logger
}

// NewService constructs the bridge core with validated configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingProvider)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingStore)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingGate)
	}
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingBroadcaster)
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingValidator)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		provider:    cfg.Provider,
		store:       cfg.Store,
		gate:        cfg.Gate,
		broadcaster: cfg.Broadcaster,
		validator:   cfg.Validator,
		logger:      logger,
	}, nil
}

// ValidateUser answers the transport's login check for a protected guild.
func (s *Service) ValidateUser(ctx context.Context, bearerToken string, claimed auth.UserInfo, guildID string) bool {
	return s.validator.Validate(ctx, bearerToken, claimed, guildID)
}
