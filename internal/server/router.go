// Package server exposes the admin API the dashboard drives: credential and
// override configuration, per-guild toggles, snapshot passthrough, and a
// live event tail. Viewer traffic never lands here; it rides the socket
// transport.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/NNTin/d-cogs/internal/bridge"
	"github.com/NNTin/d-cogs/internal/gate"
	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/NNTin/d-cogs/internal/static"
	"github.com/NNTin/d-cogs/internal/store"
	"github.com/NNTin/d-cogs/internal/transport"
	"github.com/NNTin/d-cogs/internal/versions"
	"github.com/NNTin/d-cogs/internal/wire"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "dworld_admin_subject"

	// defaultSocketURL is advertised when no socket endpoint was configured.
	defaultSocketURL = "wss://localhost:3000"
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingProvider       = errors.New("platform provider dependency required")
	errMissingStore          = errors.New("config store dependency required")
	errMissingGate           = errors.New("access gate dependency required")
	errMissingBridge         = errors.New("bridge dependency required")
	errMissingStaticResolver = errors.New("static resolver dependency required")
	errMissingVersionCatalog = errors.New("version catalog dependency required")
	errMissingEventStream    = errors.New("event stream dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenManager validates admin bearer tokens.
type TokenManager interface {
	ValidateToken(token string) (string, error)
}

// ConfigStore is the persistence surface the admin handlers read and write.
type ConfigStore interface {
	AllGuildConfigs(ctx context.Context) ([]store.GuildConfig, error)
	GuildConfig(ctx context.Context, guildID string) (store.GuildConfig, error)
	SetIgnoreOffline(ctx context.Context, guildID string, ignore bool) error
	SetSelectedVersion(ctx context.Context, guildID string, version *string) error
	Global(ctx context.Context) (store.GlobalConfig, error)
	SetStaticFilePath(ctx context.Context, path string) error
	SetSocketURL(ctx context.Context, socketURL string) error
	PurgeMemberData(ctx context.Context, memberID string) error
}

// AccessGate covers the credential and protection writes.
type AccessGate interface {
	ToggleProtection(ctx context.Context, guildID string) (bool, error)
	SetClientID(ctx context.Context, clientID string) (bool, error)
	SetClientSecret(ctx context.Context, clientSecret string) error
}

// Bridge is the snapshot and broadcast surface the handlers pass through to.
type Bridge interface {
	ServerData(ctx context.Context) (map[string]wire.GuildRecord, error)
	MemberData(ctx context.Context, guildID string) (map[string]wire.PresenceRecord, error)
	ClientID(ctx context.Context, guildID string) (string, error)
	BroadcastClientID(ctx context.Context, clientID string) (bridge.Summary, error)
	ApplyCustomization(ctx context.Context, guildID, memberID, roleColor, customMessage string) error
}

// StaticResolver maps requested override paths to files.
type StaticResolver interface {
	Resolve(ctx context.Context, requested string) *static.Result
}

// VersionCatalog lists and validates pinnable client builds.
type VersionCatalog interface {
	Available(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, requested string) (*string, error)
}

// EventStream taps the per-guild envelope fan-out.
type EventStream interface {
	Subscribe(ctx context.Context, guildID string) (<-chan transport.Envelope, func())
	ConnectionCount() int
}

// Dependencies bundles everything the admin API needs.
type Dependencies struct {
	TokenManager TokenManager
	Provider     platform.Provider
	Store        ConfigStore
	Gate         AccessGate
	Bridge       Bridge
	Static       StaticResolver
	Versions     VersionCatalog
	Events       EventStream
	Logger       *zap.Logger
}

// NewHTTPHandler wires the admin routes onto a gin engine.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Provider == nil {
		return nil, errMissingProvider
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.Bridge == nil {
		return nil, errMissingBridge
	}
	if deps.Static == nil {
		return nil, errMissingStaticResolver
	}
	if deps.Versions == nil {
		return nil, errMissingVersionCatalog
	}
	if deps.Events == nil {
		return nil, errMissingEventStream
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		provider: deps.Provider,
		store:    deps.Store,
		gate:     deps.Gate,
		bridge:   deps.Bridge,
		static:   deps.Static,
		versions: deps.Versions,
		events:   deps.Events,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealthz)
	router.GET("/static/*filepath", handler.handleStatic)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/status", handler.handleStatus)
	protected.PUT("/config/client-id", handler.handleSetClientID)
	protected.POST("/config/client-id/broadcast", handler.handleBroadcastClientID)
	protected.PUT("/config/client-secret", handler.handleSetClientSecret)
	protected.GET("/config/static-path", handler.handleGetStaticPath)
	protected.PUT("/config/static-path", handler.handleSetStaticPath)
	protected.GET("/config/socket-url", handler.handleGetSocketURL)
	protected.PUT("/config/socket-url", handler.handleSetSocketURL)
	protected.GET("/guilds", handler.handleListGuilds)
	protected.GET("/guilds/:guildID/members", handler.handleListMembers)
	protected.GET("/client-id", handler.handleClientID)
	protected.GET("/guilds/:guildID/events", handler.handleGuildEvents)
	protected.POST("/guilds/:guildID/protection/toggle", handler.handleToggleProtection)
	protected.POST("/guilds/:guildID/ignore-offline/toggle", handler.handleToggleIgnoreOffline)
	protected.GET("/versions", handler.handleListVersions)
	protected.GET("/guilds/:guildID/version", handler.handleGetVersion)
	protected.PUT("/guilds/:guildID/version", handler.handleSetVersion)
	protected.PUT("/guilds/:guildID/members/:memberID/customization", handler.handleSetCustomization)
	protected.DELETE("/members/:memberID", handler.handlePurgeMember)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	tokens   TokenManager
	provider platform.Provider
	store    ConfigStore
	gate     AccessGate
	bridge   Bridge
	static   StaticResolver
	versions VersionCatalog
	events   EventStream
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleStatic(c *gin.Context) {
	// The wildcard param keeps its leading route slash; the resolver treats
	// any further leading slash as an absolute-path attempt.
	requested := strings.TrimPrefix(c.Param("filepath"), "/")
	result := h.static.Resolve(c.Request.Context(), requested)
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Header("Content-Type", result.ContentType)
	c.File(result.FilePath)
}

type statusResponsePayload struct {
	ClientIDSet         bool     `json:"client_id_set"`
	ClientID            string   `json:"client_id,omitempty"`
	ClientSecretSet     bool     `json:"client_secret_set"`
	StaticFilePath      string   `json:"static_file_path,omitempty"`
	SocketURL           string   `json:"socket_url"`
	ProtectedGuilds     []string `json:"protected_guilds"`
	IgnoreOfflineGuilds []string `json:"ignore_offline_guilds"`
	Connections         int      `json:"connections"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	global, err := h.store.Global(ctx)
	if err != nil {
		h.logger.Error("global config read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_unavailable"})
		return
	}
	configs, err := h.store.AllGuildConfigs(ctx)
	if err != nil {
		h.logger.Error("guild config read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_unavailable"})
		return
	}

	names := map[string]string{}
	if guilds, err := h.provider.Guilds(ctx); err == nil {
		for _, guild := range guilds {
			names[guild.ID] = guild.Name
		}
	} else {
		h.logger.Warn("guild enumeration failed", zap.Error(err))
	}

	response := statusResponsePayload{
		ClientIDSet:         global.ClientID != "",
		ClientID:            global.ClientID,
		ClientSecretSet:     global.ClientSecret != "",
		StaticFilePath:      global.StaticFilePath,
		SocketURL:           effectiveSocketURL(global.SocketURL),
		ProtectedGuilds:     []string{},
		IgnoreOfflineGuilds: []string{},
		Connections:         h.events.ConnectionCount(),
	}
	for _, config := range configs {
		label := names[config.GuildID]
		if label == "" {
			label = config.GuildID
		}
		if config.Passworded {
			response.ProtectedGuilds = append(response.ProtectedGuilds, label)
		}
		if config.IgnoreOfflineMembers {
			response.IgnoreOfflineGuilds = append(response.IgnoreOfflineGuilds, label)
		}
	}
	c.JSON(http.StatusOK, response)
}

type clientIDPayload struct {
	ClientID string `json:"client_id"`
}

type clientIDResponsePayload struct {
	Changed bool            `json:"changed"`
	Summary *bridge.Summary `json:"summary,omitempty"`
}

func (h *httpHandler) handleSetClientID(c *gin.Context) {
	var request clientIDPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	changed, err := h.gate.SetClientID(c.Request.Context(), request.ClientID)
	if err != nil {
		h.logger.Error("client id write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}

	response := clientIDResponsePayload{Changed: changed}
	if changed {
		if summary, err := h.bridge.BroadcastClientID(c.Request.Context(), request.ClientID); err == nil {
			response.Summary = &summary
		} else {
			h.logger.Warn("client id fan-out failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleBroadcastClientID(c *gin.Context) {
	var request clientIDPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	changed, err := h.gate.SetClientID(c.Request.Context(), request.ClientID)
	if err != nil {
		h.logger.Error("client id write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	summary, err := h.bridge.BroadcastClientID(c.Request.Context(), request.ClientID)
	if err != nil {
		h.logger.Error("client id fan-out failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "broadcast_failed"})
		return
	}
	c.JSON(http.StatusOK, clientIDResponsePayload{Changed: changed, Summary: &summary})
}

type clientSecretPayload struct {
	ClientSecret string `json:"client_secret"`
}

func (h *httpHandler) handleSetClientSecret(c *gin.Context) {
	var request clientSecretPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.gate.SetClientSecret(c.Request.Context(), request.ClientSecret); err != nil {
		h.logger.Error("client secret write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type staticPathPayload struct {
	Path *string `json:"path"`
}

func (h *httpHandler) handleGetStaticPath(c *gin.Context) {
	global, err := h.store.Global(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": global.StaticFilePath})
}

func (h *httpHandler) handleSetStaticPath(c *gin.Context) {
	var request staticPathPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Path == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.store.SetStaticFilePath(c.Request.Context(), *request.Path); err != nil {
		h.logger.Error("static path write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type socketURLPayload struct {
	URL *string `json:"url"`
}

type socketURLResponsePayload struct {
	URL          string `json:"url"`
	EffectiveURL string `json:"effective_url"`
}

func (h *httpHandler) handleGetSocketURL(c *gin.Context) {
	global, err := h.store.Global(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, socketURLResponsePayload{
		URL:          global.SocketURL,
		EffectiveURL: effectiveSocketURL(global.SocketURL),
	})
}

func (h *httpHandler) handleSetSocketURL(c *gin.Context) {
	var request socketURLPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.URL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.store.SetSocketURL(c.Request.Context(), *request.URL); err != nil {
		h.logger.Error("socket url write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListGuilds(c *gin.Context) {
	records, err := h.bridge.ServerData(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	records, err := h.bridge.MemberData(c.Request.Context(), c.Param("guildID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// handleClientID answers the connect-time credential question for viewers.
// The optional guild parameter is accepted for call-shape parity and ignored.
func (h *httpHandler) handleClientID(c *gin.Context) {
	clientID, err := h.bridge.ClientID(c.Request.Context(), c.Query("guild"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_id": clientID})
}

func (h *httpHandler) handleToggleProtection(c *gin.Context) {
	guildID := c.Param("guildID")
	if !h.guildServed(c, guildID) {
		return
	}

	passworded, err := h.gate.ToggleProtection(c.Request.Context(), guildID)
	if errors.Is(err, gate.ErrCredentialsRequired) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "credentials_required"})
		return
	}
	if err != nil {
		h.logger.Error("protection toggle failed", zap.String("guild_id", guildID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"passworded": passworded})
}

func (h *httpHandler) handleToggleIgnoreOffline(c *gin.Context) {
	guildID := c.Param("guildID")
	if !h.guildServed(c, guildID) {
		return
	}

	ctx := c.Request.Context()
	config, err := h.store.GuildConfig(ctx, guildID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle_failed"})
		return
	}
	next := !config.IgnoreOfflineMembers
	if err := h.store.SetIgnoreOffline(ctx, guildID, next); err != nil {
		h.logger.Error("ignore-offline toggle failed", zap.String("guild_id", guildID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ignore_offline_members": next})
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	builds, err := h.versions.Available(c.Request.Context())
	if err != nil {
		h.logger.Warn("version catalog unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": builds})
}

type versionPayload struct {
	Version string `json:"version"`
}

func (h *httpHandler) handleGetVersion(c *gin.Context) {
	guildID := c.Param("guildID")
	if !h.guildServed(c, guildID) {
		return
	}

	config, err := h.store.GuildConfig(c.Request.Context(), guildID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	selected := versions.DefaultVersion
	if config.SelectedVersion != nil {
		selected = *config.SelectedVersion
	}
	c.JSON(http.StatusOK, versionPayload{Version: selected})
}

func (h *httpHandler) handleSetVersion(c *gin.Context) {
	guildID := c.Param("guildID")
	if !h.guildServed(c, guildID) {
		return
	}

	var request versionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ctx := c.Request.Context()
	selection, err := h.versions.Resolve(ctx, request.Version)
	if errors.Is(err, versions.ErrUnknownVersion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_version"})
		return
	}
	if err != nil {
		h.logger.Warn("version catalog unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_unavailable"})
		return
	}

	if err := h.store.SetSelectedVersion(ctx, guildID, selection); err != nil {
		h.logger.Error("version write failed", zap.String("guild_id", guildID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}

	selected := versions.DefaultVersion
	if selection != nil {
		selected = *selection
	}
	c.JSON(http.StatusOK, versionPayload{Version: selected})
}

type customizationPayload struct {
	RoleColor     string `json:"role_color"`
	CustomMessage string `json:"custom_message"`
}

func (h *httpHandler) handleSetCustomization(c *gin.Context) {
	var request customizationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.bridge.ApplyCustomization(c.Request.Context(),
		c.Param("guildID"), c.Param("memberID"),
		request.RoleColor, request.CustomMessage)
	switch {
	case errors.Is(err, bridge.ErrInvalidRoleColor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role_color"})
	case errors.Is(err, platform.ErrGuildNotFound), errors.Is(err, platform.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "member_not_found"})
	case err != nil:
		h.logger.Error("customization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "customization_failed"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *httpHandler) handlePurgeMember(c *gin.Context) {
	memberID := c.Param("memberID")
	if err := h.store.PurgeMemberData(c.Request.Context(), memberID); err != nil {
		h.logger.Error("member purge failed", zap.String("member_id", memberID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// guildServed answers 404 and aborts when the guild is not on this session.
func (h *httpHandler) guildServed(c *gin.Context, guildID string) bool {
	if _, err := h.provider.Guild(c.Request.Context(), guildID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "guild_not_found"})
		return false
	}
	return true
}

func effectiveSocketURL(configured string) string {
	if configured != "" {
		return configured
	}
	return defaultSocketURL
}
