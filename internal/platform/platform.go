package platform

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrTransport = errors.New("transport failure")
)

// MemberKey identifies a member within one guild.
type MemberKey struct {
	GuildID string
	UserID  string
}

func (k MemberKey) String() string {
	return k.GuildID + ":" + k.UserID
}

func KeyOf(member *discordgo.Member) MemberKey {
	if member == nil || member.User == nil {
		return MemberKey{}
	}
	return MemberKey{GuildID: member.GuildID, UserID: member.User.ID}
}

// Client is the subset of the chat platform the bot drives. Implementations
// map platform failures onto ErrNotFound, ErrForbidden and ErrTransport.
type Client interface {
	BotUserID() string
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SetMemberPermissions(ctx context.Context, channelID, userID string, allow, deny int64) error
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
	SendDirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error
	EditNickname(ctx context.Context, guildID, userID, nick string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	RecentMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error)
	VoiceChannelID(ctx context.Context, guildID, userID string) (string, error)
}

// DisplayName is the nickname when set, the username otherwise.
func DisplayName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		return member.User.Username
	}
	return ""
}

// RoleByName returns the first guild role with the given name.
func RoleByName(guild *discordgo.Guild, name string) *discordgo.Role {
	if guild == nil || name == "" {
		return nil
	}
	for _, role := range guild.Roles {
		if role != nil && role.Name == name {
			return role
		}
	}
	return nil
}

func HasRole(member *discordgo.Member, roleID string) bool {
	if member == nil || roleID == "" {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// TopRolePosition is the highest position among the member's roles, 0 for
// members holding only @everyone.
func TopRolePosition(guild *discordgo.Guild, member *discordgo.Member) int {
	if guild == nil || member == nil {
		return 0
	}
	positions := make(map[string]int, len(guild.Roles))
	for _, role := range guild.Roles {
		if role != nil {
			positions[role.ID] = role.Position
		}
	}
	top := 0
	for _, roleID := range member.Roles {
		if pos, ok := positions[roleID]; ok && pos > top {
			top = pos
		}
	}
	return top
}

// GuildPermissions folds @everyone and the member's role permissions. Owners
// and administrators get every bit.
func GuildPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	if member.User != nil && guild.OwnerID == member.User.ID {
		return discordgo.PermissionAll
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	perms := int64(0)
	for _, role := range guild.Roles {
		if role == nil {
			continue
		}
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}
