package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIBase         = "https://discord.com/api"
	defaultIdentityTimeout = 10 * time.Second
	identityEndpoint       = "/users/@me"
)

var (
	// ErrIdentityRequest wraps transport failures and non-200 answers from
	// the identity provider.
	ErrIdentityRequest = errors.New("auth: identity request failed")

	errMissingBearerToken     = errors.New("bearer token must not be empty")
	errMissingIdentitySubject = errors.New("identity response missing account id")
)

// DiscordVerifierConfig bundles configuration for the identity lookup client.
type DiscordVerifierConfig struct {
	APIBase    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Identity is the subset of the /users/@me payload the bridge needs.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// DiscordVerifier resolves a viewer's OAuth bearer token to the account it
// belongs to by asking the identity provider.
type DiscordVerifier struct {
	apiBase    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewDiscordVerifier constructs a verifier, defaulting the public API base
// and a 10 second request timeout.
func NewDiscordVerifier(cfg DiscordVerifierConfig) *DiscordVerifier {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultIdentityTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DiscordVerifier{
		apiBase:    apiBase,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// Identify calls the identity provider with the viewer's bearer token and
// returns the account it authenticates.
func (v *DiscordVerifier) Identify(ctx context.Context, bearerToken string) (Identity, error) {
	if strings.TrimSpace(bearerToken) == "" {
		return Identity{}, errMissingBearerToken
	}

	requestCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, v.apiBase+identityEndpoint, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	response, err := v.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrIdentityRequest, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: status %d", ErrIdentityRequest, response.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(response.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrIdentityRequest, err)
	}
	if identity.ID == "" {
		return Identity{}, errMissingIdentitySubject
	}

	return identity, nil
}
