package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"welcome-gate/internal/config"
	"welcome-gate/internal/modules/activity"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/platform"
	"welcome-gate/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorNotice = 0x5865F2
	colorAlert  = 0xED4245
)

func render(text string, member *discordgo.Member, seconds int) string {
	if text == "" {
		return ""
	}
	mention, name := "", ""
	if member != nil && member.User != nil {
		mention = member.User.Mention()
		name = member.User.Username
	}
	return strings.NewReplacer(
		"{member_mention}", mention,
		"{member_name}", name,
		"{seconds}", strconv.Itoa(seconds),
	).Replace(text)
}

func templateEmbed(tpl config.Template, member *discordgo.Member, seconds int, fallbackColor int) *discordgo.MessageEmbed {
	color := tpl.ColorValue()
	if color == 0 {
		color = fallbackColor
	}
	embed := &discordgo.MessageEmbed{
		Title:       render(tpl.Title, member, seconds),
		Description: render(tpl.Description, member, seconds),
		Color:       color,
	}
	if tpl.FieldName != "" || tpl.FieldValue != "" {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  render(tpl.FieldName, member, seconds),
			Value: render(tpl.FieldValue, member, seconds),
		}}
	}
	if tpl.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: render(tpl.Footer, member, seconds)}
	}
	return embed
}

func (s *Service) firstNotice(member *discordgo.Member) *discordgo.MessageSend {
	embed := templateEmbed(s.messages.WelcomeMessages.InitialWelcome, member, 0, colorNotice)
	if embed.Footer == nil {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("환영합니다, %s님!", member.User.Username)}
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "❌ 삭제", Style: discordgo.DangerButton, CustomID: CustomID(ActionDelete, member.User.ID)},
				discordgo.Button{Label: "✅ 보존", Style: discordgo.SuccessButton, CustomID: CustomID(ActionPreserve, member.User.ID)},
			}},
		},
	}
}

func (s *Service) secondNotice(member *discordgo.Member) *discordgo.MessageSend {
	embed := templateEmbed(s.messages.WelcomeMessages.AdaptationCheck, member, 0, colorNotice)
	return &discordgo.MessageSend{
		Content: member.User.Mention(),
		Embeds:  []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "❌ 삭제", Style: discordgo.DangerButton, CustomID: CustomID(ActionDismiss, member.User.ID)},
				discordgo.Button{Label: "✅ 적응 완료", Style: discordgo.SuccessButton, CustomID: CustomID(ActionAdapted, member.User.ID)},
			}},
		},
	}
}

type monitorHooks struct {
	s *Service
}

func (h monitorHooks) Reminder(subject activity.Subject) *discordgo.MessageSend {
	tpl := h.s.messages.WelcomeMessages.ActivityReminder
	if tpl.Title == "" && tpl.Description == "" {
		tpl = config.Template{Title: "👋 아직 계신가요?", Description: "{member_mention}님, 이 채널에 인사 한마디 남겨주세요!"}
	}
	member := subjectMember(subject)
	return &discordgo.MessageSend{
		Content: member.User.Mention(),
		Embeds:  []*discordgo.MessageEmbed{templateEmbed(tpl, member, 0, colorNotice)},
	}
}

func (h monitorHooks) Warning(subject activity.Subject, grace time.Duration) *discordgo.MessageSend {
	tpl := h.s.messages.WelcomeMessages.ActivityWarning
	if tpl.Title == "" && tpl.Description == "" {
		tpl = config.Template{Title: "⚠️ 활동 확인", Description: "{member_mention}님, {seconds}초 안에 활동이 없으면 서버에서 내보내집니다."}
	}
	member := subjectMember(subject)
	return &discordgo.MessageSend{
		Content: member.User.Mention(),
		Embeds:  []*discordgo.MessageEmbed{templateEmbed(tpl, member, int(grace/time.Second), colorAlert)},
	}
}

func (h monitorHooks) Finished(ctx context.Context, subject activity.Subject, state activity.State) {
	s := h.s
	final := Completed
	entry := audit.Entry{
		Level:   audit.LevelInfo,
		GuildID: subject.Key.GuildID,
		UserID:  subject.Key.UserID,
		RunID:   subject.RunID,
		Details: "channel=" + subject.ChannelID,
	}
	switch state {
	case activity.Completed:
		entry.Event = "activity_confirmed"
	case activity.Kicked:
		final = Kicked
		entry.Level = audit.LevelCrit
		entry.Event = "member_kicked"
	case activity.KickFailed:
		final = KickFailed
		entry.Level = audit.LevelWarn
		entry.Event = "kick_failed"
	default:
		final = Aborted
		entry.Event = "activity_watch_abandoned"
	}
	s.audit.Record(ctx, entry)
	if state == activity.Abandoned {
		if _, err := s.client.Member(ctx, subject.Key.GuildID, subject.Key.UserID); errors.Is(err, platform.ErrNotFound) {
			s.discardChannel(ctx, subject.Key, subject.ChannelID, "member_left_during_activity_check")
		}
	}
	s.audit.Transition(ctx, storage.OnboardingRun{
		RunID:     subject.RunID,
		GuildID:   subject.Key.GuildID,
		UserID:    subject.Key.UserID,
		ChannelID: subject.ChannelID,
		State:     final.String(),
	})
}

// subjectMember builds a mention-only member for templates.
func subjectMember(subject activity.Subject) *discordgo.Member {
	return &discordgo.Member{GuildID: subject.Key.GuildID, User: &discordgo.User{ID: subject.Key.UserID}}
}

// Delivery counts admin direct messages for one notification.
type Delivery struct {
	Sent   int
	Failed int
}

// NotifyAdmins sends msg to every configured admin. Failures are counted,
// never returned.
func (s *Service) NotifyAdmins(ctx context.Context, msg *discordgo.MessageSend) Delivery {
	var delivery Delivery
	for _, userID := range s.opts.AdminUserIDs {
		if userID == "" {
			continue
		}
		if err := s.client.SendDirectMessage(ctx, userID, msg); err != nil {
			delivery.Failed++
			s.logger.Debug("admin notification failed", zap.String("admin_id", userID), zap.Error(err))
			continue
		}
		delivery.Sent++
	}
	return delivery
}

// notifyAudit forwards WARN and CRIT journal entries to admins.
func (s *Service) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if len(s.opts.AdminUserIDs) == 0 {
		return
	}
	color := colorNotice
	if entry.Level == audit.LevelCrit {
		color = colorAlert
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "멤버", Value: "<@" + entry.UserID + ">", Inline: true},
		{Name: "이벤트", Value: eventLabel(entry.Event), Inline: true},
	}
	if entry.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "상세", Value: entry.Details})
	}
	delivery := s.NotifyAdmins(ctx, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
		Title:     "🔔 환영 봇 알림",
		Color:     color,
		Fields:    fields,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
	}}})
	s.logger.Info("admin notification delivered",
		zap.String("event", entry.Event),
		zap.String("guild_id", entry.GuildID),
		zap.String("user_id", entry.UserID),
		zap.Int("sent", delivery.Sent),
		zap.Int("failed", delivery.Failed))
}

func eventLabel(event string) string {
	switch event {
	case "member_rejoin":
		return "24시간 내 재입장"
	case "member_kicked":
		return "활동 없음으로 추방"
	case "kick_failed":
		return "추방 실패"
	default:
		return event
	}
}
