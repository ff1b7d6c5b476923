package bridge

import (
	"context"
	"errors"

	"github.com/NNTin/d-cogs/internal/platform"
	"github.com/NNTin/d-cogs/internal/wire"
	"go.uber.org/zap"
)

// ServerData builds the guild snapshot sent to connecting viewers, keyed by
// guild id. The first guild the session learned about is marked default.
func (s *Service) ServerData(ctx context.Context) (map[string]wire.GuildRecord, error) {
	guilds, err := s.provider.Guilds(ctx)
	if err != nil {
		s.logger.Error("guild enumeration failed", zap.Error(err))
		return nil, err
	}

	records := make(map[string]wire.GuildRecord, len(guilds))
	for index, guild := range guilds {
		records[guild.ID] = wire.NewGuildRecord(guild, s.gate.IsPassworded(guild.ID), index == 0)
	}
	return records, nil
}

// MemberData builds the member snapshot for one guild, keyed by member id.
// Guilds the session does not serve read as an empty snapshot, not an error.
func (s *Service) MemberData(ctx context.Context, guildID string) (map[string]wire.PresenceRecord, error) {
	members, err := s.provider.Members(ctx, guildID)
	if errors.Is(err, platform.ErrGuildNotFound) {
		return map[string]wire.PresenceRecord{}, nil
	}
	if err != nil {
		s.logger.Error("member enumeration failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil, err
	}

	config, err := s.store.GuildConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	customizations, err := s.store.Customizations(ctx, guildID)
	if err != nil {
		return nil, err
	}

	records := make(map[string]wire.PresenceRecord, len(members))
	for _, member := range members {
		if config.IgnoreOfflineMembers && wire.CanonicalStatus(member.Status) == wire.StatusOffline {
			continue
		}
		color := wire.ResolveColor(customizations[member.ID].RoleColor, member.TopRoleColor)
		records[member.ID] = wire.NewPresenceRecord(member, color)
	}
	return records, nil
}

// ClientID returns the OAuth application id viewers authenticate against.
// The guild argument is part of the callback shape and ignored: credentials
// are bridge-wide.
func (s *Service) ClientID(ctx context.Context, _ string) (string, error) {
	global, err := s.store.Global(ctx)
	if err != nil {
		return "", err
	}
	return global.ClientID, nil
}
