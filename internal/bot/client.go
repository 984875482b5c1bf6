package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
)

// Client adapts a discordgo session to platform.Client. Reads go to the
// state cache first and fall back to REST; every REST failure is mapped onto
// the platform error sentinels.
type Client struct {
	session *discordgo.Session
}

var _ platform.Client = (*Client)(nil)

func NewClient(session *discordgo.Session) *Client {
	return &Client{session: session}
}

// classify wraps err with the platform sentinel matching its HTTP status.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", op, platform.ErrNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", op, platform.ErrForbidden, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, platform.ErrTransport, err)
	}
	return fmt.Errorf("%s: %w: %v", op, platform.ErrTransport, err)
}

// call runs a REST request unless ctx is already done. discordgo v0.27 has
// no per-request context, so cancellation is only observed between calls.
func call[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, classify(op, err)
	}
	v, err := fn()
	if err != nil {
		return zero, classify(op, err)
	}
	return v, nil
}

func (c *Client) BotUserID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

func (c *Client) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if guild, err := c.session.State.Guild(guildID); err == nil && len(guild.Roles) > 0 {
		return guild, nil
	}
	return call(ctx, "guild", func() (*discordgo.Guild, error) {
		return c.session.Guild(guildID)
	})
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if member, err := c.session.State.Member(guildID, userID); err == nil {
		return withGuild(member, guildID), nil
	}
	member, err := call(ctx, "member", func() (*discordgo.Member, error) {
		return c.session.GuildMember(guildID, userID)
	})
	if err != nil {
		return nil, err
	}
	return withGuild(member, guildID), nil
}

func withGuild(member *discordgo.Member, guildID string) *discordgo.Member {
	if member != nil && member.GuildID == "" {
		member.GuildID = guildID
	}
	return member
}

func (c *Client) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if channel, err := c.session.State.Channel(channelID); err == nil {
		return channel, nil
	}
	return call(ctx, "channel", func() (*discordgo.Channel, error) {
		return c.session.Channel(channelID)
	})
}

// Channels always asks REST; the existence checks during onboarding need
// channels created moments ago.
func (c *Client) Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	return call(ctx, "guild channels", func() ([]*discordgo.Channel, error) {
		return c.session.GuildChannels(guildID)
	})
}

func (c *Client) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return call(ctx, "create channel", func() (*discordgo.Channel, error) {
		return c.session.GuildChannelCreateComplex(guildID, data)
	})
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := call(ctx, "delete channel", func() (*discordgo.Channel, error) {
		return c.session.ChannelDelete(channelID)
	})
	return err
}

func (c *Client) SetMemberPermissions(ctx context.Context, channelID, userID string, allow, deny int64) error {
	_, err := call(ctx, "set permissions", func() (struct{}, error) {
		return struct{}{}, c.session.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, allow, deny)
	})
	return err
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	_, err := call(ctx, "send message", func() (*discordgo.Message, error) {
		return c.session.ChannelMessageSendComplex(channelID, msg)
	})
	return err
}

func (c *Client) SendDirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error {
	channel, err := call(ctx, "open direct channel", func() (*discordgo.Channel, error) {
		return c.session.UserChannelCreate(userID)
	})
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, channel.ID, msg)
}

func (c *Client) EditNickname(ctx context.Context, guildID, userID, nick string) error {
	_, err := call(ctx, "edit nickname", func() (struct{}, error) {
		return struct{}{}, c.session.GuildMemberNickname(guildID, userID, nick)
	})
	return err
}

func (c *Client) Kick(ctx context.Context, guildID, userID, reason string) error {
	_, err := call(ctx, "kick", func() (struct{}, error) {
		return struct{}{}, c.session.GuildMemberDeleteWithReason(guildID, userID, reason)
	})
	return err
}

func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	return call(ctx, "channel messages", func() ([]*discordgo.Message, error) {
		return c.session.ChannelMessages(channelID, limit, "", "", "")
	})
}

// VoiceChannelID reads the gateway voice state cache. A member without a
// cached voice state is not in voice.
func (c *Client) VoiceChannelID(ctx context.Context, guildID, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify("voice state", err)
	}
	state, err := c.session.State.VoiceState(guildID, userID)
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return "", nil
		}
		return "", classify("voice state", err)
	}
	return state.ChannelID, nil
}
