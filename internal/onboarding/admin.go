package onboarding

import (
	"context"
	"fmt"
	"time"

	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
)

type StatusReport struct {
	GuildName    string
	MemberCount  int
	ChannelCount int
	Processing   int
	Monitoring   int
	Tracked      int
	Channels     int
}

func (s *Service) Status(ctx context.Context, guildID string) (StatusReport, error) {
	guild, err := s.client.Guild(ctx, guildID)
	if err != nil {
		return StatusReport{}, err
	}
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		GuildName:    guild.Name,
		MemberCount:  guild.MemberCount,
		ChannelCount: len(channels),
		Processing:   s.guard.Processing(),
		Monitoring:   s.monitor.Running(),
		Tracked:      s.tracker.Len(),
		Channels:     s.registry.Len(),
	}, nil
}

// JoinHistory lists the member's joins inside the rejoin window, oldest first.
func (s *Service) JoinHistory(guildID, userID string) []time.Time {
	return s.rejoin.History(platform.MemberKey{GuildID: guildID, UserID: userID}, s.clock.Now())
}

func (s *Service) RejoinWindow() time.Duration {
	return s.rejoin.Window()
}

// Capability is one permission the bot needs, and whether it has it.
type Capability struct {
	Name    string
	Granted bool
}

type PermissionReport struct {
	Capabilities     []Capability
	BotTopRole       int
	AdminRolePresent bool
	CategoryPresent  bool
}

func (r PermissionReport) Missing() []string {
	var missing []string
	for _, c := range r.Capabilities {
		if !c.Granted {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

var requiredCapabilities = []struct {
	name string
	bit  int64
}{
	{"Manage Channels", discordgo.PermissionManageChannels},
	{"Manage Roles", discordgo.PermissionManageRoles},
	{"Manage Nicknames", discordgo.PermissionManageNicknames},
	{"Kick Members", discordgo.PermissionKickMembers},
	{"Send Messages", discordgo.PermissionSendMessages},
	{"Read Message History", discordgo.PermissionReadMessageHistory},
}

// PermissionCheck reports which of the permissions onboarding relies on the
// bot holds in the guild.
func (s *Service) PermissionCheck(ctx context.Context, guildID string) (PermissionReport, error) {
	guild, err := s.client.Guild(ctx, guildID)
	if err != nil {
		return PermissionReport{}, err
	}
	bot, err := s.client.Member(ctx, guildID, s.client.BotUserID())
	if err != nil {
		return PermissionReport{}, err
	}
	perms := platform.GuildPermissions(guild, bot)
	report := PermissionReport{
		BotTopRole:       platform.TopRolePosition(guild, bot),
		AdminRolePresent: platform.RoleByName(guild, s.opts.AdminRoleName) != nil,
	}
	for _, required := range requiredCapabilities {
		report.Capabilities = append(report.Capabilities, Capability{Name: required.name, Granted: perms&required.bit != 0})
	}
	category, err := s.findCategory(ctx, guildID)
	if err != nil {
		return PermissionReport{}, err
	}
	report.CategoryPresent = category != nil
	return report, nil
}

// ForceNickname sets an arbitrary nickname on behalf of an admin.
func (s *Service) ForceNickname(ctx context.Context, guildID, userID, nick, adminID string) error {
	guild, err := s.client.Guild(ctx, guildID)
	if err != nil {
		return err
	}
	member, err := s.client.Member(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if err := s.nick.Set(ctx, s.client, guild, member, nick); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Level:   audit.LevelInfo,
		GuildID: guildID,
		UserID:  userID,
		Event:   "nickname_forced",
		Details: fmt.Sprintf("by=%s nick=%q", adminID, nick),
	})
	return nil
}

// ApplyPrefix runs the nickname normalizer for a member on behalf of an admin.
func (s *Service) ApplyPrefix(ctx context.Context, guildID, userID, adminID string) (string, error) {
	nick, err := s.nick.Apply(ctx, s.client, guildID, userID)
	if err != nil {
		return "", err
	}
	s.audit.Record(ctx, audit.Entry{
		Level:   audit.LevelInfo,
		GuildID: guildID,
		UserID:  userID,
		Event:   "nickname_prefixed",
		Details: fmt.Sprintf("by=%s nick=%q", adminID, nick),
	})
	return nick, nil
}
