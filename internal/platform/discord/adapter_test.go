package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/bwmarrin/discordgo"
)

type recordingHandler struct {
	presences []platform.PresenceUpdate
	joins     []platform.MemberJoin
	leaves    []platform.MemberLeave
	messages  []platform.Message
}

func (h *recordingHandler) HandlePresenceUpdate(_ context.Context, update platform.PresenceUpdate) {
	h.presences = append(h.presences, update)
}

func (h *recordingHandler) HandleMemberJoin(_ context.Context, join platform.MemberJoin) {
	h.joins = append(h.joins, join)
}

func (h *recordingHandler) HandleMemberLeave(_ context.Context, leave platform.MemberLeave) {
	h.leaves = append(h.leaves, leave)
}

func (h *recordingHandler) HandleMessage(_ context.Context, message platform.Message) {
	h.messages = append(h.messages, message)
}

func newTestAdapter(t *testing.T) (*Adapter, *recordingHandler) {
	t.Helper()
	adapter, err := NewAdapter(AdapterConfig{BotToken: "test-token"})
	if err != nil {
		t.Fatalf("failed to construct adapter: %v", err)
	}
	handler := &recordingHandler{}
	adapter.handler = handler
	return adapter, handler
}

func seedGuild(t *testing.T, adapter *Adapter, guild *discordgo.Guild) {
	t.Helper()
	if err := adapter.session.State.GuildAdd(guild); err != nil {
		t.Fatalf("failed to seed guild state: %v", err)
	}
}

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:   "guild-1",
		Name: "gopher hangout",
		Roles: []*discordgo.Role{
			{ID: "role-red", Color: 0xff0000, Position: 5},
			{ID: "role-silent", Color: 0, Position: 10},
			{ID: "role-blue", Color: 0x0000ff, Position: 1},
		},
		Members: []*discordgo.Member{
			{
				GuildID: "guild-1",
				Nick:    "Ace",
				User:    &discordgo.User{ID: "100", Username: "alice"},
				Roles:   []string{"role-red", "role-silent", "role-blue"},
			},
			{
				GuildID: "guild-1",
				User:    &discordgo.User{ID: "200", Username: "bob", Bot: true},
			},
		},
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "100"}, Status: discordgo.StatusOnline},
		},
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	for _, token := range []string{"", "   "} {
		if _, err := NewAdapter(AdapterConfig{BotToken: token}); !errors.Is(err, ErrMissingBotToken) {
			t.Fatalf("token %q: expected ErrMissingBotToken, got %v", token, err)
		}
	}
}

func TestGuildsListsStateInOrder(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	seedGuild(t, adapter, &discordgo.Guild{ID: "guild-1", Name: "first"})
	seedGuild(t, adapter, &discordgo.Guild{ID: "guild-2", Name: "second"})

	guilds, err := adapter.Guilds(context.Background())
	if err != nil {
		t.Fatalf("guild listing failed: %v", err)
	}
	if len(guilds) != 2 {
		t.Fatalf("expected 2 guilds, got %d", len(guilds))
	}
	if guilds[0].ID != "guild-1" || guilds[1].ID != "guild-2" {
		t.Fatalf("unexpected guild order: %+v", guilds)
	}
	if guilds[0].Name != "first" {
		t.Fatalf("unexpected guild name: %q", guilds[0].Name)
	}
}

func TestGuildLookupUnknownGuild(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	if _, err := adapter.Guild(context.Background(), "guild-unknown"); !errors.Is(err, platform.ErrGuildNotFound) {
		t.Fatalf("expected ErrGuildNotFound, got %v", err)
	}
	if _, err := adapter.Members(context.Background(), "guild-unknown"); !errors.Is(err, platform.ErrGuildNotFound) {
		t.Fatalf("expected ErrGuildNotFound for members, got %v", err)
	}
}

func TestMembersTranslateStatusNickAndRoleColor(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	seedGuild(t, adapter, testGuild())

	members, err := adapter.Members(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("member listing failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	byID := map[string]platform.Member{}
	for _, member := range members {
		byID[member.ID] = member
	}

	alice := byID["100"]
	if alice.Username != "Ace" {
		t.Fatalf("expected nick to win, got %q", alice.Username)
	}
	if alice.Status != platform.StatusOnline {
		t.Fatalf("expected online status, got %q", alice.Status)
	}
	if alice.TopRoleColor != 0xff0000 {
		t.Fatalf("expected the highest colored role, got %#06x", alice.TopRoleColor)
	}

	bob := byID["200"]
	if bob.Status != platform.StatusOffline {
		t.Fatalf("expected offline for missing presence, got %q", bob.Status)
	}
	if bob.TopRoleColor != 0 {
		t.Fatalf("expected no role color, got %#06x", bob.TopRoleColor)
	}
	if !bob.Bot {
		t.Fatal("expected the bot flag to survive translation")
	}
}

func TestMemberLookup(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	seedGuild(t, adapter, testGuild())

	member, err := adapter.Member(context.Background(), "guild-1", "100")
	if err != nil {
		t.Fatalf("member lookup failed: %v", err)
	}
	if member.Username != "Ace" {
		t.Fatalf("unexpected member: %+v", member)
	}

	if _, err := adapter.Member(context.Background(), "guild-1", "999"); !errors.Is(err, platform.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
	if _, err := adapter.Member(context.Background(), "guild-unknown", "100"); !errors.Is(err, platform.ErrGuildNotFound) {
		t.Fatalf("expected ErrGuildNotFound, got %v", err)
	}
}

func TestPresenceEventCarriesPreviousStatus(t *testing.T) {
	adapter, handler := newTestAdapter(t)
	guild := testGuild()
	seedGuild(t, adapter, guild)
	adapter.onGuildCreate(nil, &discordgo.GuildCreate{Guild: guild})

	adapter.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: "100"},
			Status: discordgo.StatusIdle,
		},
		GuildID: "guild-1",
	})

	if len(handler.presences) != 1 {
		t.Fatalf("expected 1 presence update, got %d", len(handler.presences))
	}
	update := handler.presences[0]
	if update.OldStatus != platform.StatusOnline {
		t.Fatalf("expected previous status online, got %q", update.OldStatus)
	}
	if update.Member.Status != platform.StatusIdle {
		t.Fatalf("expected new status idle, got %q", update.Member.Status)
	}
	if update.Member.Username != "Ace" {
		t.Fatalf("expected the cached member's name, got %q", update.Member.Username)
	}

	// A repeated status still reaches the handler; deduplication is the
	// forwarder's decision.
	adapter.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: "100"},
			Status: discordgo.StatusIdle,
		},
		GuildID: "guild-1",
	})
	if len(handler.presences) != 2 {
		t.Fatalf("expected 2 presence updates, got %d", len(handler.presences))
	}
	if handler.presences[1].OldStatus != platform.StatusIdle {
		t.Fatalf("expected previous status idle, got %q", handler.presences[1].OldStatus)
	}
}

func TestPresenceEventForUnchunkedMemberFallsBack(t *testing.T) {
	adapter, handler := newTestAdapter(t)
	seedGuild(t, adapter, testGuild())

	adapter.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: "999", Username: "ghost"},
			Status: discordgo.StatusOnline,
		},
		GuildID: "guild-1",
	})

	if len(handler.presences) != 1 {
		t.Fatalf("expected 1 presence update, got %d", len(handler.presences))
	}
	member := handler.presences[0].Member
	if member.ID != "999" || member.Username != "ghost" {
		t.Fatalf("unexpected fallback member: %+v", member)
	}
	if member.Status != platform.StatusOnline {
		t.Fatalf("expected the payload status, got %q", member.Status)
	}
}

func TestMemberRemoveForgetsTrackedStatus(t *testing.T) {
	adapter, handler := newTestAdapter(t)
	seedGuild(t, adapter, testGuild())

	adapter.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: "100"},
			Status: discordgo.StatusOnline,
		},
		GuildID: "guild-1",
	})
	adapter.onMemberRemove(nil, &discordgo.GuildMemberRemove{
		Member: &discordgo.Member{GuildID: "guild-1", User: &discordgo.User{ID: "100"}},
	})

	if len(handler.leaves) != 1 {
		t.Fatalf("expected 1 leave, got %d", len(handler.leaves))
	}
	if handler.leaves[0].MemberID != "100" || handler.leaves[0].GuildID != "guild-1" {
		t.Fatalf("unexpected leave: %+v", handler.leaves[0])
	}

	adapter.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		Presence: discordgo.Presence{
			User:   &discordgo.User{ID: "100"},
			Status: discordgo.StatusOnline,
		},
		GuildID: "guild-1",
	})
	last := handler.presences[len(handler.presences)-1]
	if last.OldStatus != "" {
		t.Fatalf("expected forgotten previous status, got %q", last.OldStatus)
	}
}

func TestMemberAddTranslatesJoin(t *testing.T) {
	adapter, handler := newTestAdapter(t)
	seedGuild(t, adapter, testGuild())

	adapter.onMemberAdd(nil, &discordgo.GuildMemberAdd{
		Member: &discordgo.Member{GuildID: "guild-1", User: &discordgo.User{ID: "100"}},
	})
	if len(handler.joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(handler.joins))
	}
	if handler.joins[0].Member.Username != "Ace" {
		t.Fatalf("expected the cached member, got %+v", handler.joins[0].Member)
	}

	adapter.onMemberAdd(nil, &discordgo.GuildMemberAdd{
		Member: &discordgo.Member{
			GuildID: "guild-1",
			Nick:    "Newcomer",
			User:    &discordgo.User{ID: "500", Username: "dave"},
		},
	})
	if len(handler.joins) != 2 {
		t.Fatalf("expected 2 joins, got %d", len(handler.joins))
	}
	joined := handler.joins[1].Member
	if joined.Username != "Newcomer" {
		t.Fatalf("expected the event payload nickname, got %q", joined.Username)
	}
	if joined.Status != platform.StatusOffline {
		t.Fatalf("expected offline for a fresh join, got %q", joined.Status)
	}
}

func TestMessageEventTranslation(t *testing.T) {
	adapter, handler := newTestAdapter(t)

	adapter.onMessageCreate(nil, &discordgo.MessageCreate{
		Message: &discordgo.Message{
			GuildID:   "guild-1",
			ChannelID: "555",
			Content:   "hello world",
			Author:    &discordgo.User{ID: "100", Bot: false},
		},
	})
	if len(handler.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(handler.messages))
	}
	message := handler.messages[0]
	if message.GuildID != "guild-1" || message.ChannelID != "555" || message.AuthorID != "100" {
		t.Fatalf("unexpected message: %+v", message)
	}
	if message.Content != "hello world" {
		t.Fatalf("unexpected content: %q", message.Content)
	}

	adapter.onMessageCreate(nil, &discordgo.MessageCreate{
		Message: &discordgo.Message{GuildID: "guild-1", ChannelID: "555", Content: "orphan"},
	})
	if len(handler.messages) != 1 {
		t.Fatalf("expected authorless messages to be dropped, got %d", len(handler.messages))
	}
}
