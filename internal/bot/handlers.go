package bot

import (
	"context"
	"strings"
	"time"

	"welcome-gate/internal/onboarding"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", event.User.String()),
		zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.GuildID == "" {
		return
	}
	member := withGuild(event.Member, event.GuildID)
	b.dispatch(func(ctx context.Context) {
		b.onboarding.HandleJoin(ctx, member)
	})
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.GuildID == "" {
		return
	}
	member := withGuild(event.Member, event.GuildID)
	b.dispatch(func(ctx context.Context) {
		b.onboarding.HandleLeave(ctx, member)
	})
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, event *discordgo.MessageCreate) {
	msg := event.Message
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	b.onboarding.HandleMessage(b.ctx, msg)
	if b.cfg.CommandPrefix != "" && strings.HasPrefix(msg.Content, b.cfg.CommandPrefix) {
		b.dispatch(func(ctx context.Context) {
			b.handleCommand(ctx, msg)
		})
	}
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	b.onboarding.HandleVoice(b.ctx, event.VoiceState)
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	b.onboarding.HandleChannelDelete(event.Channel.ID)
}

// onInteractionCreate answers welcome buttons. The response is deferred
// first because nickname and permission updates can outlast the
// interaction deadline.
func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := interaction.MessageComponentData()
	if _, _, ok := onboarding.ParseCustomID(data.CustomID); !ok {
		return
	}
	if err := b.deferEphemeral(session, interaction); err != nil {
		b.logger.Warn("interaction ack failed", zap.String("custom_id", data.CustomID), zap.Error(err))
		return
	}

	member := interaction.Member
	if member != nil {
		member = withGuild(member, interaction.GuildID)
	}
	press := onboarding.ButtonPress{
		GuildID:   interaction.GuildID,
		ChannelID: interaction.ChannelID,
		CustomID:  data.CustomID,
		Member:    member,
	}
	b.dispatch(func(ctx context.Context) {
		reply := b.onboarding.HandleButton(ctx, press)
		if !reply.Handled {
			return
		}
		b.editResponse(session, interaction, reply.Content)
	})
}

func (b *Bot) deferEphemeral(session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	return session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (b *Bot) editResponse(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Warn("interaction reply failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
