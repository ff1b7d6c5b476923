// Package discord adapts a discordgo gateway session to the neutral platform
// contracts. The session's state cache backs the Provider side; gateway
// events are translated and handed to the registered Handler.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	// ErrMissingBotToken indicates the adapter was configured without a token.
	ErrMissingBotToken = errors.New("discord: bot token is required")

	errNilHandler = errors.New("discord: event handler is required")
)

// AdapterConfig configures the gateway adapter.
type AdapterConfig struct {
	BotToken string
	Logger   *zap.Logger
}

// Adapter owns the discordgo session and the per-member status history the
// presence events are diffed against.
type Adapter struct {
	session *discordgo.Session
	logger  *zap.Logger
	handler platform.Handler

	mu sync.Mutex
	// lastStatus keeps the raw status previously reported per guild member.
	// The gateway state cache only holds the current value.
	lastStatus map[string]map[string]platform.Status

	removeHandlers []func()
}

// NewAdapter builds a configured, unconnected gateway session.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, ErrMissingBotToken
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: session setup failed: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildPresences |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent
	session.State.TrackMembers = true
	session.State.TrackPresences = true
	session.State.TrackRoles = true

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		session:    session,
		logger:     logger,
		lastStatus: make(map[string]map[string]platform.Status),
	}, nil
}

// Start registers the event handlers and connects to the gateway.
func (a *Adapter) Start(handler platform.Handler) error {
	if handler == nil {
		return errNilHandler
	}
	a.handler = handler
	a.removeHandlers = append(a.removeHandlers,
		a.session.AddHandler(a.onGuildCreate),
		a.session.AddHandler(a.onPresenceUpdate),
		a.session.AddHandler(a.onMemberAdd),
		a.session.AddHandler(a.onMemberRemove),
		a.session.AddHandler(a.onMessageCreate),
	)
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: gateway connect failed: %w", err)
	}
	a.logger.Info("gateway session opened")
	return nil
}

// Close detaches the event handlers and closes the gateway connection.
func (a *Adapter) Close() error {
	for _, remove := range a.removeHandlers {
		remove()
	}
	a.removeHandlers = nil
	return a.session.Close()
}

// Guilds lists the guilds the session serves in gateway order.
func (a *Adapter) Guilds(context.Context) ([]platform.Guild, error) {
	state := a.session.State
	state.RLock()
	defer state.RUnlock()

	guilds := make([]platform.Guild, 0, len(state.Guilds))
	for _, guild := range state.Guilds {
		guilds = append(guilds, platform.Guild{ID: guild.ID, Name: guild.Name})
	}
	return guilds, nil
}

// Guild resolves one served guild.
func (a *Adapter) Guild(_ context.Context, guildID string) (platform.Guild, error) {
	state := a.session.State
	state.RLock()
	defer state.RUnlock()

	guild := guildByID(state, guildID)
	if guild == nil {
		return platform.Guild{}, platform.ErrGuildNotFound
	}
	return platform.Guild{ID: guild.ID, Name: guild.Name}, nil
}

// Members lists the guild's cached members with presence and role color
// attached.
func (a *Adapter) Members(_ context.Context, guildID string) ([]platform.Member, error) {
	state := a.session.State
	state.RLock()
	defer state.RUnlock()

	guild := guildByID(state, guildID)
	if guild == nil {
		return nil, platform.ErrGuildNotFound
	}

	presences := presenceIndex(guild)
	members := make([]platform.Member, 0, len(guild.Members))
	for _, member := range guild.Members {
		if member == nil || member.User == nil {
			continue
		}
		members = append(members, translateMember(guild, member, presences))
	}
	return members, nil
}

// Member resolves one cached guild member.
func (a *Adapter) Member(_ context.Context, guildID string, memberID string) (platform.Member, error) {
	state := a.session.State
	state.RLock()
	defer state.RUnlock()

	guild := guildByID(state, guildID)
	if guild == nil {
		return platform.Member{}, platform.ErrGuildNotFound
	}
	for _, member := range guild.Members {
		if member == nil || member.User == nil || member.User.ID != memberID {
			continue
		}
		return translateMember(guild, member, presenceIndex(guild)), nil
	}
	return platform.Member{}, platform.ErrMemberNotFound
}

func (a *Adapter) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil {
		return
	}
	a.seedStatuses(event.ID, event.Presences)
	// The initial payload carries online members only; chunk the full list.
	if err := a.session.RequestGuildMembers(event.ID, "", 0, "", true); err != nil {
		a.logger.Warn("member chunk request failed",
			zap.String("guild_id", event.ID),
			zap.Error(err))
	}
	a.logger.Info("guild available",
		zap.String("guild_id", event.ID),
		zap.String("guild_name", event.Name),
		zap.Int("member_count", event.MemberCount))
}

func (a *Adapter) onPresenceUpdate(_ *discordgo.Session, event *discordgo.PresenceUpdate) {
	if event.User == nil || event.GuildID == "" {
		return
	}

	status := platform.Status(event.Status)
	previous := a.swapStatus(event.GuildID, event.User.ID, status)

	member, err := a.Member(context.Background(), event.GuildID, event.User.ID)
	if err != nil {
		// Not chunked yet; the presence payload is all we have.
		member = platform.Member{ID: event.User.ID, Username: event.User.Username}
	}
	member.Status = status

	a.handler.HandlePresenceUpdate(context.Background(), platform.PresenceUpdate{
		GuildID:   event.GuildID,
		Member:    member,
		OldStatus: previous,
	})
}

func (a *Adapter) onMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil {
		return
	}
	member, err := a.Member(context.Background(), event.GuildID, event.User.ID)
	if err != nil {
		member = platform.Member{
			ID:       event.User.ID,
			Username: event.Member.DisplayName(),
			Status:   platform.StatusOffline,
			Bot:      event.User.Bot,
		}
	}
	a.handler.HandleMemberJoin(context.Background(), platform.MemberJoin{
		GuildID: event.GuildID,
		Member:  member,
	})
}

func (a *Adapter) onMemberRemove(_ *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil {
		return
	}
	a.forgetStatus(event.GuildID, event.User.ID)
	a.handler.HandleMemberLeave(context.Background(), platform.MemberLeave{
		GuildID:  event.GuildID,
		MemberID: event.User.ID,
	})
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Message == nil || event.Author == nil {
		return
	}
	a.handler.HandleMessage(context.Background(), platform.Message{
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		AuthorID:  event.Author.ID,
		AuthorBot: event.Author.Bot,
		Content:   event.Content,
	})
}

func (a *Adapter) seedStatuses(guildID string, presences []*discordgo.Presence) {
	a.mu.Lock()
	defer a.mu.Unlock()

	guildStatuses, ok := a.lastStatus[guildID]
	if !ok {
		guildStatuses = make(map[string]platform.Status, len(presences))
		a.lastStatus[guildID] = guildStatuses
	}
	for _, presence := range presences {
		if presence == nil || presence.User == nil {
			continue
		}
		guildStatuses[presence.User.ID] = platform.Status(presence.Status)
	}
}

func (a *Adapter) swapStatus(guildID, memberID string, status platform.Status) platform.Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	guildStatuses, ok := a.lastStatus[guildID]
	if !ok {
		guildStatuses = make(map[string]platform.Status)
		a.lastStatus[guildID] = guildStatuses
	}
	previous := guildStatuses[memberID]
	guildStatuses[memberID] = status
	return previous
}

func (a *Adapter) forgetStatus(guildID, memberID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if guildStatuses, ok := a.lastStatus[guildID]; ok {
		delete(guildStatuses, memberID)
	}
}

// guildByID scans the state's guild list directly; callers hold the state
// read lock already, and State.Guild would try to take it again.
func guildByID(state *discordgo.State, guildID string) *discordgo.Guild {
	for _, guild := range state.Guilds {
		if guild.ID == guildID {
			return guild
		}
	}
	return nil
}

func presenceIndex(guild *discordgo.Guild) map[string]discordgo.Status {
	index := make(map[string]discordgo.Status, len(guild.Presences))
	for _, presence := range guild.Presences {
		if presence == nil || presence.User == nil {
			continue
		}
		index[presence.User.ID] = presence.Status
	}
	return index
}

func translateMember(guild *discordgo.Guild, member *discordgo.Member, presences map[string]discordgo.Status) platform.Member {
	status := platform.StatusOffline
	if raw, ok := presences[member.User.ID]; ok {
		status = platform.Status(raw)
	}
	return platform.Member{
		ID:           member.User.ID,
		Username:     member.DisplayName(),
		Status:       status,
		TopRoleColor: topRoleColor(guild.Roles, member.Roles),
		Bot:          member.User.Bot,
	}
}

// topRoleColor picks the color of the highest positioned role that carries
// one. Members whose roles are all colorless read as 0.
func topRoleColor(guildRoles []*discordgo.Role, memberRoles []string) uint32 {
	held := make(map[string]bool, len(memberRoles))
	for _, roleID := range memberRoles {
		held[roleID] = true
	}

	found := false
	bestPosition := 0
	color := 0
	for _, role := range guildRoles {
		if role == nil || role.Color == 0 || !held[role.ID] {
			continue
		}
		if !found || role.Position > bestPosition {
			found = true
			bestPosition = role.Position
			color = role.Color
		}
	}
	return uint32(color)
}
