// Package gate decides whether a guild requires viewer authentication and
// owns the bridge's OAuth credential pair.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/NNTin/d-cogs/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrCredentialsRequired indicates protection cannot be toggled until both
	// OAuth credentials are configured.
	ErrCredentialsRequired = errors.New("gate: client id and client secret must be configured")
	// ErrInvalidGateConfig indicates the gate was constructed without its store.
	ErrInvalidGateConfig = errors.New("gate: invalid config")

	errMissingStore   = errors.New("config store is required")
	errMissingGuildID = errors.New("guild identifier is required")
)

// ConfigStore is the persistence surface the gate relies on.
type ConfigStore interface {
	AllGuildConfigs(ctx context.Context) ([]store.GuildConfig, error)
	GuildConfig(ctx context.Context, guildID string) (store.GuildConfig, error)
	SetPassworded(ctx context.Context, guildID string, passworded bool) error
	Global(ctx context.Context) (store.GlobalConfig, error)
	SetClientID(ctx context.Context, clientID string) (bool, error)
	SetClientSecret(ctx context.Context, clientSecret string) error
}

// Config bundles the gate's dependencies.
type Config struct {
	Store  ConfigStore
	Logger *zap.Logger
}

// Gate serves protection flags from a process-local cache so snapshot
// assembly never waits on storage. Every write lands in the store and the
// cache in the same step; until WarmCache completes, every guild reads as
// unprotected.
type Gate struct {
	store  ConfigStore
	logger *zap.Logger

	mu         sync.RWMutex
	passworded map[string]bool
}

// New constructs a gate with an empty cache.
func New(cfg Config) (*Gate, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGateConfig, errMissingStore)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		store:      cfg.Store,
		logger:     logger,
		passworded: make(map[string]bool),
	}, nil
}

// WarmCache loads the protection flag for every persisted guild config.
func (g *Gate) WarmCache(ctx context.Context) error {
	configs, err := g.store.AllGuildConfigs(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	for _, config := range configs {
		g.passworded[config.GuildID] = config.Passworded
	}
	g.mu.Unlock()

	g.logger.Info("password cache warmed", zap.Int("guilds", len(configs)))
	return nil
}

// IsPassworded reports whether the guild requires viewer authentication.
// Unknown guilds read as unprotected. The answer comes purely from the cache.
func (g *Gate) IsPassworded(guildID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.passworded[guildID]
}

// ToggleProtection flips the guild's protection flag and returns the new
// state. Toggling in either direction requires both OAuth credentials.
func (g *Gate) ToggleProtection(ctx context.Context, guildID string) (bool, error) {
	if strings.TrimSpace(guildID) == "" {
		return false, errMissingGuildID
	}

	configured, err := g.CredentialsConfigured(ctx)
	if err != nil {
		return false, err
	}
	if !configured {
		return false, ErrCredentialsRequired
	}

	config, err := g.store.GuildConfig(ctx, guildID)
	if err != nil {
		return false, err
	}

	next := !config.Passworded
	if err := g.store.SetPassworded(ctx, guildID, next); err != nil {
		return false, err
	}

	g.mu.Lock()
	g.passworded[guildID] = next
	g.mu.Unlock()

	g.logger.Info("guild protection toggled",
		zap.String("guild_id", guildID),
		zap.Bool("passworded", next))
	return next, nil
}

// SetClientID stores the OAuth application id, reporting whether the value
// changed.
func (g *Gate) SetClientID(ctx context.Context, clientID string) (bool, error) {
	return g.store.SetClientID(ctx, clientID)
}

// SetClientSecret stores the OAuth application secret.
func (g *Gate) SetClientSecret(ctx context.Context, clientSecret string) error {
	return g.store.SetClientSecret(ctx, clientSecret)
}

// CredentialsConfigured reports whether both OAuth credentials are set.
func (g *Gate) CredentialsConfigured(ctx context.Context) (bool, error) {
	global, err := g.store.Global(ctx)
	if err != nil {
		return false, err
	}
	return global.ClientID != "" && global.ClientSecret != "", nil
}
