// Package versions resolves which published d-zone client builds a guild may
// pin itself to.
package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCatalogURL serves the build list published alongside the hosted
	// client.
	DefaultCatalogURL = "https://nntin.github.io/d-zone/versions.json"
	// DefaultVersion names the unpinned selection tracking the latest build.
	DefaultVersion = "default"

	defaultFetchTimeout = 10 * time.Second
)

var (
	// ErrCatalogRequest indicates the catalog endpoint could not be read.
	ErrCatalogRequest = errors.New("versions: catalog request failed")
	// ErrCatalogFormat indicates the catalog payload was not a list of build
	// names.
	ErrCatalogFormat = errors.New("versions: malformed catalog payload")
	// ErrUnknownVersion rejects selections absent from the catalog.
	ErrUnknownVersion = errors.New("versions: unknown version")
)

// CatalogConfig configures the catalog client.
type CatalogConfig struct {
	CatalogURL string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Catalog fetches and validates the published client build list.
type Catalog struct {
	catalogURL string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewCatalog constructs a catalog client with defaults applied.
func NewCatalog(cfg CatalogConfig) *Catalog {
	catalogURL := cfg.CatalogURL
	if catalogURL == "" {
		catalogURL = DefaultCatalogURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		catalogURL: catalogURL,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// Available fetches the published build names in catalog order.
func (c *Catalog) Available(ctx context.Context) ([]string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogRequest, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("catalog fetch failed", zap.String("url", c.catalogURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCatalogRequest, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		c.logger.Warn("catalog fetch returned unexpected status",
			zap.String("url", c.catalogURL),
			zap.Int("status", response.StatusCode))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCatalogRequest, response.StatusCode)
	}

	var builds []string
	if err := json.NewDecoder(response.Body).Decode(&builds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogFormat, err)
	}
	if builds == nil {
		return nil, fmt.Errorf("%w: expected a list of build names", ErrCatalogFormat)
	}
	return builds, nil
}

// Resolve validates a requested selection against the live catalog and
// returns the value to persist. The default selection resolves to nil
// without touching the catalog.
func (c *Catalog) Resolve(ctx context.Context, requested string) (*string, error) {
	if requested == "" || requested == DefaultVersion {
		return nil, nil
	}

	builds, err := c.Available(ctx)
	if err != nil {
		return nil, err
	}
	for _, build := range builds {
		if build == requested {
			pinned := requested
			return &pinned, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, requested)
}
