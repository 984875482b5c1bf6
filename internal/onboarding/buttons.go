package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"welcome-gate/internal/modules/access"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/modules/nickname"
	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const customIDPrefix = "welcome"

// Button actions. Delete and preserve sit on the first notice and are
// admin-only; dismiss and adapted sit on the second and belong to the member.
const (
	ActionDelete   = "delete"
	ActionPreserve = "preserve"
	ActionDismiss  = "dismiss"
	ActionAdapted  = "adapted"
)

func CustomID(action, userID string) string {
	return customIDPrefix + ":" + action + ":" + userID
}

func ParseCustomID(id string) (action, userID string, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case ActionDelete, ActionPreserve, ActionDismiss, ActionAdapted:
		return parts[1], parts[2], true
	}
	return "", "", false
}

// ButtonPress is a component interaction on a welcome notice.
type ButtonPress struct {
	GuildID   string
	ChannelID string
	CustomID  string
	Member    *discordgo.Member
}

// Reply is the ephemeral answer to a button press. Handled is false for
// custom ids this service does not own.
type Reply struct {
	Content string
	Handled bool
}

func (s *Service) HandleButton(ctx context.Context, press ButtonPress) Reply {
	action, targetID, ok := ParseCustomID(press.CustomID)
	if !ok {
		return Reply{}
	}
	if press.Member == nil || press.Member.User == nil || press.GuildID == "" {
		return Reply{Handled: true, Content: "❌ 서버 안에서만 사용할 수 있습니다."}
	}

	switch action {
	case ActionDelete, ActionPreserve:
		guild, err := s.client.Guild(ctx, press.GuildID)
		if err != nil {
			return Reply{Handled: true, Content: transportMessage(err)}
		}
		if !s.IsAdmin(guild, press.Member) {
			return Reply{Handled: true, Content: fmt.Sprintf("❌ %s 역할이 있는 사람만 사용할 수 있습니다.", s.opts.AdminRoleName)}
		}
	default:
		if press.Member.User.ID != targetID {
			return Reply{Handled: true, Content: "❌ 본인만 이 버튼을 사용할 수 있습니다."}
		}
	}

	switch action {
	case ActionDelete, ActionDismiss:
		s.scheduleDelete(press.ChannelID)
		s.audit.Record(ctx, audit.Entry{
			Level:   audit.LevelInfo,
			GuildID: press.GuildID,
			UserID:  targetID,
			Event:   "welcome_channel_delete_requested",
			Details: "by=" + press.Member.User.ID,
		})
		return Reply{Handled: true, Content: "✅ 채널 삭제 요청됨"}
	case ActionPreserve:
		return Reply{Handled: true, Content: s.preserve(ctx, press, targetID)}
	default:
		return Reply{Handled: true, Content: s.adapted(ctx, press)}
	}
}

func (s *Service) preserve(ctx context.Context, press ButtonPress, targetID string) string {
	if _, err := s.client.Member(ctx, press.GuildID, targetID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return "❌ 해당 멤버를 찾을 수 없습니다."
		}
		return transportMessage(err)
	}
	key := platform.MemberKey{GuildID: press.GuildID, UserID: targetID}
	s.monitor.Stop(key)

	categoryID, err := s.welcomeCategoryID(ctx, press.GuildID)
	if err != nil {
		return categoryMessage(err)
	}
	result, err := s.access.Apply(ctx, press.GuildID, targetID, access.GrantAll, categoryID)
	if err != nil {
		return transportMessage(err)
	}
	s.audit.Record(ctx, audit.Entry{
		Level:   audit.LevelInfo,
		GuildID: press.GuildID,
		UserID:  targetID,
		Event:   "member_preserved",
		Details: fmt.Sprintf("by=%s succeeded=%d failed=%d", press.Member.User.ID, result.Succeeded, result.Failed),
	})
	if !result.OK() {
		return fmt.Sprintf("⚠️ 채널 접근 권한을 부여하지 못했습니다. (실패 %d개)", result.Failed)
	}
	return "✅ 모든 채널 접근 권한이 부여되었습니다. 환영 채널이 보존되었습니다." + partialSuffix(result)
}

func (s *Service) adapted(ctx context.Context, press ButtonPress) string {
	userID := press.Member.User.ID
	key := platform.MemberKey{GuildID: press.GuildID, UserID: userID}
	s.tracker.Touch(key, press.ChannelID, s.clock.Now())

	var b strings.Builder
	nick, err := s.nick.Apply(ctx, s.client, press.GuildID, userID)
	b.WriteString(s.NicknameOutcome(nick, err))
	b.WriteString("\n")

	var result access.Result
	categoryID, err := s.welcomeCategoryID(ctx, press.GuildID)
	if err != nil {
		b.WriteString(categoryMessage(err) + "\n")
	} else {
		result, err = s.access.Apply(ctx, press.GuildID, userID, access.GrantAll, categoryID)
		switch {
		case err != nil:
			b.WriteString(transportMessage(err) + "\n")
		case result.OK():
			b.WriteString("✅ 모든 채널 접근 권한이 부여되었습니다." + partialSuffix(result) + "\n")
		default:
			b.WriteString(fmt.Sprintf("⚠️ 채널 접근 권한을 부여하지 못했습니다. (실패 %d개)\n", result.Failed))
		}
	}
	b.WriteString("🎉 환영 과정이 완료되었습니다!")

	s.audit.Record(ctx, audit.Entry{
		Level:   audit.LevelInfo,
		GuildID: press.GuildID,
		UserID:  userID,
		Event:   "member_adapted",
		Details: fmt.Sprintf("nick=%q succeeded=%d failed=%d", nick, result.Succeeded, result.Failed),
	})
	return b.String()
}

// NicknameOutcome renders the result of a nickname change for the member or
// admin who asked for it.
func (s *Service) NicknameOutcome(nick string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("✨ 닉네임이 %s(으)로 변경되었습니다.", nick)
	case errors.Is(err, nickname.ErrAlreadyPrefixed):
		return "이미 접두사가 포함된 닉네임입니다."
	case errors.Is(err, nickname.ErrNoGenderRole):
		settings := s.messages.Settings
		return fmt.Sprintf("⚠️ 성별 역할(%s/%s)이 없어서 닉네임 변경을 건너뜁니다.", settings.MaleRoleName, settings.FemaleRoleName)
	case errors.Is(err, nickname.ErrServerOwner):
		return "⚠️ 서버 소유자의 닉네임은 변경할 수 없습니다."
	case errors.Is(err, nickname.ErrNoPermission):
		return "❌ 봇에 닉네임 관리 권한이 없습니다. 관리자에게 문의해주세요."
	case errors.Is(err, nickname.ErrHierarchy):
		return "❌ 봇 역할이 대상 멤버의 역할보다 낮아 닉네임을 변경할 수 없습니다. 봇 역할을 위로 옮겨주세요."
	case errors.Is(err, platform.ErrForbidden):
		return "❌ 닉네임 변경 권한이 거부되었습니다. 관리자에게 문의해주세요."
	default:
		return "❌ 닉네임 변경에 실패했습니다. 잠시 후 다시 시도해주세요."
	}
}

func transportMessage(err error) string {
	if errors.Is(err, platform.ErrForbidden) {
		return "❌ 봇에 필요한 권한이 없습니다. 관리자에게 문의해주세요."
	}
	return "❌ 요청을 처리하지 못했습니다. 잠시 후 다시 시도해주세요."
}

func partialSuffix(result access.Result) string {
	if result.Failed == 0 {
		return ""
	}
	return fmt.Sprintf(" (일부 채널 %d개 실패)", result.Failed)
}

// welcomeCategoryID resolves the category whose channels GrantAll must skip.
// Granting without it would open every other member's welcome channel, so a
// missing category is an error.
func (s *Service) welcomeCategoryID(ctx context.Context, guildID string) (string, error) {
	category, err := s.findCategory(ctx, guildID)
	if err != nil {
		return "", err
	}
	if category == nil {
		return "", platform.ErrNotFound
	}
	return category.ID, nil
}

func categoryMessage(err error) string {
	if errors.Is(err, platform.ErrNotFound) {
		return "⚠️ 환영 카테고리를 찾을 수 없어 채널 권한을 변경하지 않았습니다."
	}
	return transportMessage(err)
}

// scheduleDelete removes the channel after the grace period so the
// ephemeral confirmation can render first.
func (s *Service) scheduleDelete(channelID string) {
	s.deletesMu.Lock()
	defer s.deletesMu.Unlock()
	if _, pending := s.deletes[channelID]; pending {
		return
	}
	s.deletes[channelID] = s.clock.AfterFunc(s.opts.DeleteGrace, func() {
		s.deletesMu.Lock()
		delete(s.deletes, channelID)
		s.deletesMu.Unlock()

		if err := s.client.DeleteChannel(context.Background(), channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			s.logger.Warn("welcome channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
		s.HandleChannelDelete(channelID)
	})
}

// IsAdmin reports whether member holds the admin role or the Administrator
// permission.
func (s *Service) IsAdmin(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	if role := platform.RoleByName(guild, s.opts.AdminRoleName); role != nil && platform.HasRole(member, role.ID) {
		return true
	}
	return platform.GuildPermissions(guild, member)&discordgo.PermissionAdministrator != 0
}
