package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/NNTin/d-cogs/internal/platform"
)

type stubIdentityResolver struct {
	identity Identity
	err      error
	calls    int
}

func (s *stubIdentityResolver) Identify(context.Context, string) (Identity, error) {
	s.calls++
	if s.err != nil {
		return Identity{}, s.err
	}
	return s.identity, nil
}

type stubCredentialSource struct {
	configured bool
	err        error
}

func (s *stubCredentialSource) CredentialsConfigured(context.Context) (bool, error) {
	return s.configured, s.err
}

type stubDirectory struct {
	guilds  map[string]platform.Guild
	members map[string]platform.Member // keyed guildID/memberID
}

func (s *stubDirectory) Guild(_ context.Context, guildID string) (platform.Guild, error) {
	guild, ok := s.guilds[guildID]
	if !ok {
		return platform.Guild{}, platform.ErrGuildNotFound
	}
	return guild, nil
}

func (s *stubDirectory) Member(_ context.Context, guildID, memberID string) (platform.Member, error) {
	member, ok := s.members[guildID+"/"+memberID]
	if !ok {
		return platform.Member{}, platform.ErrMemberNotFound
	}
	return member, nil
}

func newValidatorFixture(t *testing.T) (*Validator, *stubIdentityResolver, *stubCredentialSource, *stubDirectory) {
	t.Helper()

	identity := &stubIdentityResolver{identity: Identity{ID: "123", Username: "viewer"}}
	credentials := &stubCredentialSource{configured: true}
	directory := &stubDirectory{
		guilds: map[string]platform.Guild{
			"guild-1": {ID: "guild-1", Name: "alpha"},
		},
		members: map[string]platform.Member{
			"guild-1/123": {ID: "123", Username: "viewer"},
		},
	}

	validator, err := NewValidator(ValidatorConfig{
		Identity:    identity,
		Credentials: credentials,
		Directory:   directory,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return validator, identity, credentials, directory
}

func TestValidateAcceptsMatchingMember(t *testing.T) {
	validator, _, _, _ := newValidatorFixture(t)

	ok := validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "123"}, "guild-1")
	if !ok {
		t.Fatalf("expected validation to succeed")
	}
}

func TestValidateRejectsNonNumericClaimedID(t *testing.T) {
	validator, identity, _, _ := newValidatorFixture(t)

	for _, claimed := range []string{"", "abc", "12x", "-5"} {
		if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: claimed}, "guild-1") {
			t.Fatalf("expected claimed id %q to be rejected", claimed)
		}
	}
	if identity.calls != 0 {
		t.Fatalf("expected no identity calls for malformed ids, got %d", identity.calls)
	}
}

func TestValidateRejectsUnknownGuild(t *testing.T) {
	validator, identity, _, _ := newValidatorFixture(t)

	if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "123"}, "guild-missing") {
		t.Fatalf("expected unknown guild to be rejected")
	}
	if identity.calls != 0 {
		t.Fatalf("expected guild check before the identity call")
	}
}

func TestValidateRejectsWhenCredentialsUnset(t *testing.T) {
	validator, identity, credentials, _ := newValidatorFixture(t)
	credentials.configured = false

	if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "123"}, "guild-1") {
		t.Fatalf("expected missing credentials to deny")
	}
	if identity.calls != 0 {
		t.Fatalf("expected no identity call without credentials")
	}
}

func TestValidateRejectsIdentityMismatch(t *testing.T) {
	validator, identity, _, _ := newValidatorFixture(t)
	identity.identity = Identity{ID: "999", Username: "someone-else"}

	if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "123"}, "guild-1") {
		t.Fatalf("expected token for another account to deny")
	}
}

func TestValidateRejectsIdentityFailure(t *testing.T) {
	validator, identity, _, _ := newValidatorFixture(t)
	identity.err = errors.New("provider unreachable")

	if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "123"}, "guild-1") {
		t.Fatalf("expected provider failure to deny, not error")
	}
}

func TestValidateRejectsNonMember(t *testing.T) {
	validator, identity, _, directory := newValidatorFixture(t)
	identity.identity = Identity{ID: "456", Username: "outsider"}
	delete(directory.members, "guild-1/123")

	if validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "456"}, "guild-1") {
		t.Fatalf("expected non-member to deny")
	}
}

func TestValidateCanonicalizesClaimedIDForLookup(t *testing.T) {
	validator, identity, _, _ := newValidatorFixture(t)
	identity.identity = Identity{ID: "0123", Username: "viewer"}

	// Raw comparison happens before canonicalization matters: the provider
	// answer must equal the claimed string exactly.
	if !validator.Validate(context.Background(), "viewer-token", UserInfo{ID: "0123"}, "guild-1") {
		t.Fatalf("expected zero-padded claimed id to resolve member 123")
	}
}

func TestNewValidatorRequiresCollaborators(t *testing.T) {
	_, err := NewValidator(ValidatorConfig{})
	if !errors.Is(err, ErrInvalidValidatorConfig) {
		t.Fatalf("expected ErrInvalidValidatorConfig, got %v", err)
	}
}
