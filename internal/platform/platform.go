// Package platform defines the neutral contracts between the bridge core and
// the chat platform serving it. The concrete gateway adapter lives in the
// discord subpackage; the core only sees these types.
package platform

import (
	"context"
	"errors"
)

// Status is a presence status as reported by the platform gateway.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDnd       Status = "dnd"
	StatusOffline   Status = "offline"
	StatusInvisible Status = "invisible"
)

var (
	// ErrGuildNotFound indicates the guild is not served by the current session.
	ErrGuildNotFound = errors.New("platform: guild not found")
	// ErrMemberNotFound indicates the member is not part of the guild.
	ErrMemberNotFound = errors.New("platform: member not found")
)

// Guild identifies one guild served by the bridge.
type Guild struct {
	ID   string
	Name string
}

// Member carries the slice of a guild member the bridge forwards to viewers.
type Member struct {
	ID       string
	Username string
	Status   Status
	// TopRoleColor is the decimal color of the member's highest role, 0 when
	// that role carries no color.
	TopRoleColor uint32
	Bot          bool
}

// Message is one guild text message.
type Message struct {
	GuildID   string // empty for direct messages
	ChannelID string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// PresenceUpdate reports a member status transition. OldStatus is empty when
// the previous status was never observed by the session.
type PresenceUpdate struct {
	GuildID   string
	Member    Member
	OldStatus Status
}

// MemberJoin reports a member entering a guild.
type MemberJoin struct {
	GuildID string
	Member  Member
}

// MemberLeave reports a member leaving a guild.
type MemberLeave struct {
	GuildID  string
	MemberID string
}

// Provider exposes the platform session's cached guild state.
type Provider interface {
	// Guilds lists served guilds in the order the session learned about them.
	Guilds(ctx context.Context) ([]Guild, error)
	Guild(ctx context.Context, guildID string) (Guild, error)
	Members(ctx context.Context, guildID string) ([]Member, error)
	Member(ctx context.Context, guildID string, memberID string) (Member, error)
}

// Handler receives gateway events translated to the neutral types. Handlers
// must not block; slow downstream consumers are the handler's problem.
type Handler interface {
	HandlePresenceUpdate(ctx context.Context, update PresenceUpdate)
	HandleMemberJoin(ctx context.Context, join MemberJoin)
	HandleMemberLeave(ctx context.Context, leave MemberLeave)
	HandleMessage(ctx context.Context, message Message)
}
