// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
)

type SentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

type PermissionCall struct {
	ChannelID string
	UserID    string
	Allow     int64
	Deny      int64
}

type Kick struct {
	GuildID string
	UserID  string
	Reason  string
}

type Fake struct {
	mu sync.Mutex

	BotID    string
	guilds   map[string]*discordgo.Guild
	members  map[platform.MemberKey]*discordgo.Member
	channels map[string]*discordgo.Channel
	history  map[string][]*discordgo.Message
	voice    map[platform.MemberKey]string
	nextID   int

	PermissionErrors map[string]error
	NicknameErr      error
	KickErr          error
	DirectErr        error
	CreateErr        error

	Sent        []SentMessage
	Direct      []SentMessage
	Permissions []PermissionCall
	Nicknames   map[platform.MemberKey]string
	Kicks       []Kick
	Deleted     []string
	Created     []*discordgo.Channel
}

func New(botID string) *Fake {
	return &Fake{
		BotID:            botID,
		guilds:           make(map[string]*discordgo.Guild),
		members:          make(map[platform.MemberKey]*discordgo.Member),
		channels:         make(map[string]*discordgo.Channel),
		history:          make(map[string][]*discordgo.Message),
		voice:            make(map[platform.MemberKey]string),
		PermissionErrors: make(map[string]error),
		Nicknames:        make(map[platform.MemberKey]string),
	}
}

func (f *Fake) AddGuild(guild *discordgo.Guild) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds[guild.ID] = guild
}

func (f *Fake) AddMember(member *discordgo.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[platform.KeyOf(member)] = member
}

func (f *Fake) RemoveMember(guildID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, platform.MemberKey{GuildID: guildID, UserID: userID})
}

func (f *Fake) AddChannel(channel *discordgo.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel.ID] = channel
}

func (f *Fake) AddMessage(channelID string, msg *discordgo.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[channelID] = append(f.history[channelID], msg)
}

func (f *Fake) SetVoice(guildID, userID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice[platform.MemberKey{GuildID: guildID, UserID: userID}] = channelID
}

func (f *Fake) ChannelByName(guildID, name string) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.GuildID == guildID && ch.Name == name {
			return ch
		}
	}
	return nil
}

func (f *Fake) SentTo(channelID string) []*discordgo.MessageSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.MessageSend
	for _, sent := range f.Sent {
		if sent.ChannelID == channelID {
			out = append(out, sent.Message)
		}
	}
	return out
}

func (f *Fake) KickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Kicks)
}

func (f *Fake) BotUserID() string { return f.BotID }

func (f *Fake) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	guild := f.guilds[guildID]
	if guild == nil {
		return nil, platform.ErrNotFound
	}
	return guild, nil
}

func (f *Fake) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member := f.members[platform.MemberKey{GuildID: guildID, UserID: userID}]
	if member == nil {
		return nil, platform.ErrNotFound
	}
	return member, nil
}

func (f *Fake) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return nil, platform.ErrNotFound
	}
	return ch, nil
}

func (f *Fake) Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Channel
	for _, ch := range f.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *Fake) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	ch := &discordgo.Channel{
		ID:                   fmt.Sprintf("created-%d", f.nextID),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		Topic:                data.Topic,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.channels[ch.ID] = ch
	f.Created = append(f.Created, ch)
	return ch, nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrNotFound
	}
	delete(f.channels, channelID)
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *Fake) SetMemberPermissions(ctx context.Context, channelID, userID string, allow, deny int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.PermissionErrors[channelID]; err != nil {
		return err
	}
	f.Permissions = append(f.Permissions, PermissionCall{ChannelID: channelID, UserID: userID, Allow: allow, Deny: deny})
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrNotFound
	}
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, Message: msg})
	return nil
}

func (f *Fake) SendDirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DirectErr != nil {
		return f.DirectErr
	}
	f.Direct = append(f.Direct, SentMessage{ChannelID: userID, Message: msg})
	return nil
}

func (f *Fake) EditNickname(ctx context.Context, guildID, userID, nick string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NicknameErr != nil {
		return f.NicknameErr
	}
	key := platform.MemberKey{GuildID: guildID, UserID: userID}
	f.Nicknames[key] = nick
	if member := f.members[key]; member != nil {
		member.Nick = nick
	}
	return nil
}

func (f *Fake) Kick(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KickErr != nil {
		return f.KickErr
	}
	key := platform.MemberKey{GuildID: guildID, UserID: userID}
	delete(f.members, key)
	f.Kicks = append(f.Kicks, Kick{GuildID: guildID, UserID: userID, Reason: reason})
	return nil
}

func (f *Fake) RecentMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.history[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]*discordgo.Message(nil), msgs...), nil
}

func (f *Fake) VoiceChannelID(ctx context.Context, guildID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice[platform.MemberKey{GuildID: guildID, UserID: userID}], nil
}

var _ platform.Client = (*Fake)(nil)
