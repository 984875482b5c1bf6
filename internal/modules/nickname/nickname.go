package nickname

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MaxLength is the platform nickname limit in characters.
const MaxLength = 32

var (
	ErrAlreadyPrefixed = errors.New("nickname already prefixed")
	ErrNoGenderRole    = errors.New("member holds no prefix role")
	ErrServerOwner     = errors.New("server owner nickname cannot be changed")
	ErrNoPermission    = errors.New("bot lacks manage nicknames")
	ErrHierarchy       = errors.New("member role is not below the bot role")
)

// Rule maps a role name to the nickname prefix its holders receive.
type Rule struct {
	RoleName string
	Prefix   string
}

type Normalizer struct {
	rules  []Rule
	logger *zap.Logger
}

func New(rules []Rule, logger *zap.Logger) *Normalizer {
	filtered := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.RoleName == "" || rule.Prefix == "" {
			continue
		}
		filtered = append(filtered, rule)
	}
	return &Normalizer{rules: filtered, logger: logger}
}

// HasPrefix reports whether name starts with any configured prefix.
func (n *Normalizer) HasPrefix(name string) bool {
	for _, rule := range n.rules {
		if strings.HasPrefix(name, rule.Prefix) {
			return true
		}
	}
	return false
}

// CleanName strips leading configured prefixes and surrounding whitespace.
func (n *Normalizer) CleanName(name string) string {
	name = strings.TrimSpace(name)
	for stripped := true; stripped; {
		stripped = false
		for _, rule := range n.rules {
			if strings.HasPrefix(name, rule.Prefix) {
				name = strings.TrimSpace(strings.TrimPrefix(name, rule.Prefix))
				stripped = true
			}
		}
	}
	return name
}

// Derive computes the prefixed nickname without touching the platform.
func (n *Normalizer) Derive(guild *discordgo.Guild, member *discordgo.Member) (string, error) {
	display := platform.DisplayName(member)
	if n.HasPrefix(display) {
		return "", ErrAlreadyPrefixed
	}
	rule, ok := n.match(guild, member)
	if !ok {
		return "", ErrNoGenderRole
	}
	if isOwner(guild, member) {
		return "", ErrServerOwner
	}
	return Compose(rule.Prefix, n.CleanName(display)), nil
}

// Compose joins prefix and name, truncating the name so the result fits
// MaxLength characters.
func Compose(prefix, name string) string {
	room := MaxLength - utf8.RuneCountInString(prefix) - 1
	if room <= 0 {
		return truncate(prefix, MaxLength)
	}
	return prefix + " " + truncate(name, room)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// Apply derives the nickname for a member and writes it.
func (n *Normalizer) Apply(ctx context.Context, client platform.Client, guildID, userID string) (string, error) {
	guild, err := client.Guild(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("load guild: %w", err)
	}
	member, err := client.Member(ctx, guildID, userID)
	if err != nil {
		return "", fmt.Errorf("load member: %w", err)
	}
	nick, err := n.Derive(guild, member)
	if err != nil {
		return "", err
	}
	if err := n.Set(ctx, client, guild, member, nick); err != nil {
		return "", err
	}
	return nick, nil
}

// Set writes nick after the owner, permission and role hierarchy checks.
func (n *Normalizer) Set(ctx context.Context, client platform.Client, guild *discordgo.Guild, member *discordgo.Member, nick string) error {
	if member == nil || member.User == nil {
		return platform.ErrNotFound
	}
	if isOwner(guild, member) {
		return ErrServerOwner
	}
	bot, err := client.Member(ctx, guild.ID, client.BotUserID())
	if err != nil {
		return fmt.Errorf("load bot member: %w", err)
	}
	if platform.GuildPermissions(guild, bot)&discordgo.PermissionManageNicknames == 0 {
		return ErrNoPermission
	}
	if platform.TopRolePosition(guild, member) >= platform.TopRolePosition(guild, bot) {
		return ErrHierarchy
	}
	key := platform.MemberKey{GuildID: guild.ID, UserID: member.User.ID}
	if err := client.EditNickname(ctx, key.GuildID, key.UserID, truncate(nick, MaxLength)); err != nil {
		return err
	}
	n.logger.Info("nickname updated",
		zap.String("guild_id", key.GuildID),
		zap.String("user_id", key.UserID),
		zap.String("nick", nick))
	return nil
}

// IsRuntime separates permission and transport failures from the outcomes
// Derive decides on its own.
func IsRuntime(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrAlreadyPrefixed), errors.Is(err, ErrNoGenderRole), errors.Is(err, ErrServerOwner):
		return false
	}
	return true
}

func (n *Normalizer) match(guild *discordgo.Guild, member *discordgo.Member) (Rule, bool) {
	for _, rule := range n.rules {
		role := platform.RoleByName(guild, rule.RoleName)
		if role != nil && platform.HasRole(member, role.ID) {
			return rule, true
		}
	}
	return Rule{}, false
}

func isOwner(guild *discordgo.Guild, member *discordgo.Member) bool {
	return guild != nil && member != nil && member.User != nil && guild.OwnerID == member.User.ID
}
