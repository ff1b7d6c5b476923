package wire

import (
	"strings"

	"github.com/NNTin/d-cogs/internal/platform"
)

// GuildRecord is one guild's entry in the server snapshot. The snapshot keys
// records by guild id; the id field inside the record is the single-letter
// label the client renders on its guild switcher.
type GuildRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Default    bool   `json:"default"`
	Passworded bool   `json:"passworded"`
}

// PresenceRecord is the member payload pushed to viewers. One shape covers
// snapshot entries, presence transitions, chat messages, and removals; unused
// fields stay off the wire.
type PresenceRecord struct {
	UID       string `json:"uid"`
	Username  string `json:"username,omitempty"`
	Status    Status `json:"status,omitempty"`
	RoleColor string `json:"roleColor,omitempty"`
	Message   string `json:"message,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Delete    bool   `json:"delete,omitempty"`
}

// DisplayAbbreviation derives the guild switcher label: the first letter of
// the guild name, upper-cased. Unnamed guilds get an empty label.
func DisplayAbbreviation(name string) string {
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return ""
}

// NewGuildRecord builds a snapshot entry for the guild.
func NewGuildRecord(guild platform.Guild, passworded, isDefault bool) GuildRecord {
	return GuildRecord{
		ID:         DisplayAbbreviation(guild.Name),
		Name:       guild.Name,
		Default:    isDefault,
		Passworded: passworded,
	}
}

// NewPresenceRecord builds the full presence payload for a member.
func NewPresenceRecord(member platform.Member, roleColor string) PresenceRecord {
	return PresenceRecord{
		UID:       member.ID,
		Username:  member.Username,
		Status:    CanonicalStatus(member.Status),
		RoleColor: roleColor,
	}
}

// NewRemovalRecord marks a departed member for deletion on the client.
func NewRemovalRecord(memberID string) PresenceRecord {
	return PresenceRecord{
		UID:    memberID,
		Status: StatusOffline,
		Delete: true,
	}
}

// NewMessageRecord carries one chat message on a channel.
func NewMessageRecord(memberID, content, channelID string) PresenceRecord {
	return PresenceRecord{
		UID:     memberID,
		Message: content,
		Channel: channelID,
	}
}
