package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NNTin/d-cogs/internal/platform"
	"go.uber.org/zap"
)

var (
	// ErrInvalidValidatorConfig indicates a missing validator collaborator.
	ErrInvalidValidatorConfig = errors.New("auth: invalid validator config")

	errMissingIdentityClient  = errors.New("identity client is required")
	errMissingCredentialCheck = errors.New("credential source is required")
	errMissingDirectory       = errors.New("member directory is required")
)

// UserInfo is the identity a viewer claims when opening a protected guild.
type UserInfo struct {
	ID       string
	Username string
}

// IdentityResolver turns a bearer token into the account it authenticates.
type IdentityResolver interface {
	Identify(ctx context.Context, bearerToken string) (Identity, error)
}

// CredentialSource reports whether the bridge's OAuth credentials are set.
type CredentialSource interface {
	CredentialsConfigured(ctx context.Context) (bool, error)
}

// MemberDirectory resolves guilds and their members on the platform.
type MemberDirectory interface {
	Guild(ctx context.Context, guildID string) (platform.Guild, error)
	Member(ctx context.Context, guildID string, memberID string) (platform.Member, error)
}

// ValidatorConfig bundles the validator's collaborators.
type ValidatorConfig struct {
	Identity    IdentityResolver
	Credentials CredentialSource
	Directory   MemberDirectory
	Logger      *zap.Logger
}

// Validator answers whether a viewer may see a password-protected guild.
type Validator struct {
	identity    IdentityResolver
	credentials CredentialSource
	directory   MemberDirectory
	logger      *zap.Logger
}

// NewValidator constructs a validator with validated configuration.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorConfig, errMissingIdentityClient)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorConfig, errMissingCredentialCheck)
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorConfig, errMissingDirectory)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{
		identity:    cfg.Identity,
		credentials: cfg.Credentials,
		directory:   cfg.Directory,
		logger:      logger,
	}, nil
}

// Validate checks the viewer's bearer token against the identity provider
// and the guild's member list. Every requirement must hold; any failure on
// the way, including transient ones, reads as a denial rather than an error.
func (v *Validator) Validate(ctx context.Context, bearerToken string, claimed UserInfo, guildID string) bool {
	memberID, err := canonicalMemberID(claimed.ID)
	if err != nil {
		v.logDenial(guildID, claimed.ID, "claimed id not a numeric account id", err)
		return false
	}

	if _, err := v.directory.Guild(ctx, guildID); err != nil {
		v.logDenial(guildID, claimed.ID, "guild not served", err)
		return false
	}

	configured, err := v.credentials.CredentialsConfigured(ctx)
	if err != nil {
		v.logDenial(guildID, claimed.ID, "credential lookup failed", err)
		return false
	}
	if !configured {
		v.logDenial(guildID, claimed.ID, "credentials not configured", nil)
		return false
	}

	identity, err := v.identity.Identify(ctx, bearerToken)
	if err != nil {
		v.logDenial(guildID, claimed.ID, "identity lookup failed", err)
		return false
	}
	if identity.ID != claimed.ID {
		v.logDenial(guildID, claimed.ID, "token belongs to another account", nil)
		return false
	}

	if _, err := v.directory.Member(ctx, guildID, memberID); err != nil {
		v.logDenial(guildID, claimed.ID, "not a guild member", err)
		return false
	}

	v.logger.Debug("viewer validated",
		zap.String("guild_id", guildID),
		zap.String("member_id", memberID))
	return true
}

// canonicalMemberID parses the claimed id as an unsigned decimal snowflake
// and normalizes it for the membership lookup.
func canonicalMemberID(raw string) (string, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(value, 10), nil
}

func (v *Validator) logDenial(guildID, claimedID, reason string, err error) {
	fields := []zap.Field{
		zap.String("guild_id", guildID),
		zap.String("claimed_id", claimedID),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	v.logger.Info("viewer validation denied", fields...)
}
