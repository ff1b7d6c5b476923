package bridge

import (
	"context"

	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/NNTin/d-cogs/internal/wire"
	"go.uber.org/zap"
)

// customizationChannelID is the synthetic channel the client reserves for
// announcing customization changes as chat bubbles.
const customizationChannelID = "123"

// Summary reports the outcome of a client-id fan-out across served guilds.
type Summary struct {
	Notified int      `json:"notified"`
	Failed   []string `json:"failed,omitempty"`
}

// HandlePresenceUpdate forwards a status transition to the guild's viewers.
// Updates that did not change the reported status carry no new frame and are
// dropped.
func (s *Service) HandlePresenceUpdate(ctx context.Context, update platform.PresenceUpdate) {
	if update.OldStatus == update.Member.Status {
		return
	}
	record := s.memberRecord(ctx, update.GuildID, update.Member)
	if err := s.broadcaster.BroadcastPresence(ctx, update.GuildID, record); err != nil {
		s.logBroadcastFailure("presence", update.GuildID, update.Member.ID, err)
	}
}

// HandleMemberJoin announces a new member with a full presence record.
func (s *Service) HandleMemberJoin(ctx context.Context, join platform.MemberJoin) {
	record := s.memberRecord(ctx, join.GuildID, join.Member)
	if err := s.broadcaster.BroadcastPresence(ctx, join.GuildID, record); err != nil {
		s.logBroadcastFailure("join", join.GuildID, join.Member.ID, err)
	}
}

// HandleMemberLeave tells the guild's viewers to drop the member.
func (s *Service) HandleMemberLeave(ctx context.Context, leave platform.MemberLeave) {
	record := wire.NewRemovalRecord(leave.MemberID)
	if err := s.broadcaster.BroadcastPresence(ctx, leave.GuildID, record); err != nil {
		s.logBroadcastFailure("leave", leave.GuildID, leave.MemberID, err)
	}
}

// HandleMessage forwards a guild text message. Bot authors and direct
// messages never reach viewers.
func (s *Service) HandleMessage(ctx context.Context, message platform.Message) {
	if message.AuthorBot || message.GuildID == "" {
		return
	}
	record := wire.NewMessageRecord(message.AuthorID, message.Content, message.ChannelID)
	if err := s.broadcaster.BroadcastMessage(ctx, message.GuildID, record); err != nil {
		s.logBroadcastFailure("message", message.GuildID, message.AuthorID, err)
	}
}

// BroadcastClientID fans the application id out to every served guild. One
// guild failing does not stop the others; failures are collected into the
// summary.
func (s *Service) BroadcastClientID(ctx context.Context, clientID string) (Summary, error) {
	guilds, err := s.provider.Guilds(ctx)
	if err != nil {
		s.logger.Error("guild enumeration failed", zap.Error(err))
		return Summary{}, err
	}

	summary := Summary{}
	for _, guild := range guilds {
		if err := s.broadcaster.BroadcastClientIDUpdate(ctx, guild.ID, clientID); err != nil {
			s.logBroadcastFailure("client-id-update", guild.ID, "", err)
			summary.Failed = append(summary.Failed, guild.ID)
			continue
		}
		summary.Notified++
	}
	if len(summary.Failed) > 0 {
		s.logger.Warn("client id fan-out incomplete",
			zap.Int("notified", summary.Notified),
			zap.Strings("failed_guild_ids", summary.Failed))
	}
	return summary, nil
}

// ApplyCustomization persists a member's color and message override, then
// pushes the refreshed presence to the guild and announces a non-empty
// message on the customization channel.
func (s *Service) ApplyCustomization(ctx context.Context, guildID, memberID, roleColor, customMessage string) error {
	if roleColor != "" && !wire.ValidRoleColor(roleColor) {
		return ErrInvalidRoleColor
	}

	member, err := s.provider.Member(ctx, guildID, memberID)
	if err != nil {
		return err
	}
	if err := s.store.SetCustomization(ctx, guildID, memberID, roleColor, customMessage); err != nil {
		return err
	}

	record := wire.NewPresenceRecord(member, wire.ResolveColor(roleColor, member.TopRoleColor))
	if err := s.broadcaster.BroadcastPresence(ctx, guildID, record); err != nil {
		s.logBroadcastFailure("customization", guildID, memberID, err)
	}
	if customMessage != "" {
		announcement := wire.NewMessageRecord(memberID, customMessage, customizationChannelID)
		if err := s.broadcaster.BroadcastMessage(ctx, guildID, announcement); err != nil {
			s.logBroadcastFailure("customization message", guildID, memberID, err)
		}
	}
	return nil
}

// memberRecord resolves the member's wire color and builds the presence
// payload. A failed customization read degrades to the platform color rather
// than dropping the event.
func (s *Service) memberRecord(ctx context.Context, guildID string, member platform.Member) wire.PresenceRecord {
	custom := ""
	customizations, err := s.store.Customizations(ctx, guildID)
	if err != nil {
		s.logger.Warn("customization lookup failed",
			zap.String("guild_id", guildID),
			zap.String("member_id", member.ID),
			zap.Error(err))
	} else {
		custom = customizations[member.ID].RoleColor
	}
	return wire.NewPresenceRecord(member, wire.ResolveColor(custom, member.TopRoleColor))
}

func (s *Service) logBroadcastFailure(event, guildID, memberID string, err error) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("guild_id", guildID),
	}
	if memberID != "" {
		fields = append(fields, zap.String("member_id", memberID))
	}
	fields = append(fields, zap.Error(err))
	s.logger.Warn("broadcast failed", fields...)
}
