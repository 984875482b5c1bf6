package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"welcome-gate/internal/analytics"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorInfo  = 0x5865F2
	colorOK    = 0x57F287
	colorError = 0xED4245

	historyLimit = 10
)

type command struct {
	name string
	args []string
}

func parseCommand(prefix, content string) (command, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// parseMention accepts <@id>, <@!id> or a bare snowflake.
func parseMention(arg string) (string, bool) {
	if strings.HasPrefix(arg, "<@") && strings.HasSuffix(arg, ">") {
		arg = strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(arg, "<@"), ">"), "!")
	}
	if arg == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
		return "", false
	}
	return arg, true
}

type commandFunc func(ctx context.Context, msg *discordgo.Message, args []string) *discordgo.MessageEmbed

func (b *Bot) lookupCommand(name string) (commandFunc, bool) {
	switch name {
	case "status", "상태":
		return b.cmdStatus, true
	case "history", "기록":
		return b.cmdHistory, true
	case "permcheck", "권한확인":
		return b.cmdPermCheck, true
	case "setnick", "닉네임":
		return b.cmdSetNick, true
	case "prefix", "접두사":
		return b.cmdPrefix, true
	case "report", "통계":
		return b.cmdReport, true
	case "help", "도움말":
		return b.cmdHelp, true
	}
	return nil, false
}

// handleCommand runs an admin text command and posts the reply embed in the
// same channel. Unknown commands are ignored.
func (b *Bot) handleCommand(ctx context.Context, msg *discordgo.Message) {
	cmd, ok := parseCommand(b.cfg.CommandPrefix, msg.Content)
	if !ok || msg.GuildID == "" || msg.Author == nil {
		return
	}
	run, ok := b.lookupCommand(cmd.name)
	if !ok {
		return
	}
	logger := b.logger.With(
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.Author.ID),
		zap.String("command", cmd.name))

	var embed *discordgo.MessageEmbed
	if allowed, err := b.isAdmin(ctx, msg.GuildID, msg.Author.ID); err != nil {
		logger.Warn("admin check failed", zap.Error(err))
		embed = commandEmbed("❌ 오류", "권한을 확인하지 못했습니다. 잠시 후 다시 시도해주세요.", colorError, nil)
	} else if !allowed {
		embed = commandEmbed("❌ 권한 없음", fmt.Sprintf("%s 역할이 있는 사람만 사용할 수 있습니다.", b.cfg.AdminRoleName), colorError, nil)
	} else {
		embed = run(ctx, msg, cmd.args)
	}

	if err := b.client.SendMessage(ctx, msg.ChannelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		logger.Warn("command reply failed", zap.Error(err))
		return
	}
	logger.Debug("command handled")
}

func (b *Bot) isAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	guild, err := b.client.Guild(ctx, guildID)
	if err != nil {
		return false, err
	}
	member, err := b.client.Member(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	return b.onboarding.IsAdmin(guild, member), nil
}

func failure(title string, err error) *discordgo.MessageEmbed {
	description := "요청을 처리하지 못했습니다. 잠시 후 다시 시도해주세요."
	switch {
	case errors.Is(err, platform.ErrNotFound):
		description = "대상을 찾을 수 없습니다."
	case errors.Is(err, platform.ErrForbidden):
		description = "봇에 필요한 권한이 없습니다."
	}
	return commandEmbed("❌ "+title, description, colorError, nil)
}

func usage(title, text string) *discordgo.MessageEmbed {
	return commandEmbed("❌ "+title, "사용법: `"+text+"`", colorError, nil)
}

func (b *Bot) cmdStatus(ctx context.Context, msg *discordgo.Message, _ []string) *discordgo.MessageEmbed {
	status, err := b.onboarding.Status(ctx, msg.GuildID)
	if err != nil {
		return failure("봇 상태", err)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "서버", Value: status.GuildName, Inline: true},
		{Name: "멤버 수", Value: strconv.Itoa(status.MemberCount), Inline: true},
		{Name: "채널 수", Value: strconv.Itoa(status.ChannelCount), Inline: true},
		{Name: "처리 중인 입장", Value: strconv.Itoa(status.Processing), Inline: true},
		{Name: "활동 확인 중", Value: strconv.Itoa(status.Monitoring), Inline: true},
		{Name: "환영 채널", Value: strconv.Itoa(status.Channels), Inline: true},
	}
	if b.analytics != nil {
		summary, err := b.analytics.Onboarding(ctx, msg.GuildID, time.Now().Add(-24*time.Hour))
		if err != nil {
			b.logger.Warn("onboarding summary failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		} else {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:  "최근 24시간",
				Value: fmt.Sprintf("입장 %d · 재입장 %d · 추방 %d", summary.Runs, summary.Returning, summary.ByState["kicked"]),
			})
		}
	}
	return commandEmbed("🤖 봇 상태", "환영 봇이 정상 작동 중입니다.", colorInfo, fields)
}

func (b *Bot) cmdHistory(ctx context.Context, msg *discordgo.Message, args []string) *discordgo.MessageEmbed {
	if len(args) < 1 {
		return usage("입장 기록", b.cfg.CommandPrefix+"history @멤버")
	}
	userID, ok := parseMention(args[0])
	if !ok {
		return usage("입장 기록", b.cfg.CommandPrefix+"history @멤버")
	}

	joins := b.onboarding.JoinHistory(msg.GuildID, userID)
	joinLines := make([]string, 0, len(joins))
	for _, at := range joins {
		joinLines = append(joinLines, fmt.Sprintf("<t:%d:R>", at.Unix()))
	}
	if len(joinLines) == 0 {
		joinLines = append(joinLines, "없음")
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "멤버", Value: "<@" + userID + ">", Inline: true},
		{Name: fmt.Sprintf("%d시간 내 입장 (%d회)", int(b.onboarding.RejoinWindow().Hours()), len(joins)), Value: strings.Join(joinLines, "\n"), Inline: true},
	}

	logs, err := b.audit.Member(ctx, msg.GuildID, userID, historyLimit)
	if err != nil {
		b.logger.Warn("member journal lookup failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}
	if len(logs) > 0 {
		lines := make([]string, 0, len(logs))
		for _, entry := range logs {
			lines = append(lines, fmt.Sprintf("<t:%d:f> `%s` %s", entry.CreatedAt.Unix(), entry.Level, entry.Event))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "최근 기록", Value: strings.Join(lines, "\n")})
	}
	return commandEmbed("📜 입장 기록", "", colorInfo, fields)
}

func (b *Bot) cmdPermCheck(ctx context.Context, msg *discordgo.Message, _ []string) *discordgo.MessageEmbed {
	report, err := b.onboarding.PermissionCheck(ctx, msg.GuildID)
	if err != nil {
		return failure("권한 확인", err)
	}
	lines := make([]string, 0, len(report.Capabilities))
	for _, capability := range report.Capabilities {
		mark := "✅"
		if !capability.Granted {
			mark = "❌"
		}
		lines = append(lines, mark+" "+capability.Name)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "봇 권한", Value: strings.Join(lines, "\n")},
		{Name: "봇 최고 역할 위치", Value: strconv.Itoa(report.BotTopRole), Inline: true},
		{Name: b.cfg.AdminRoleName + " 역할", Value: presence(report.AdminRolePresent), Inline: true},
		{Name: "환영 카테고리", Value: presence(report.CategoryPresent), Inline: true},
	}
	color, description := colorOK, "필요한 권한이 모두 있습니다."
	if missing := report.Missing(); len(missing) > 0 {
		color = colorError
		description = "부족한 권한: " + strings.Join(missing, ", ")
	}
	return commandEmbed("🔐 권한 확인", description, color, fields)
}

func presence(ok bool) string {
	if ok {
		return "✅ 있음"
	}
	return "❌ 없음"
}

func (b *Bot) cmdSetNick(ctx context.Context, msg *discordgo.Message, args []string) *discordgo.MessageEmbed {
	if len(args) < 2 {
		return usage("닉네임 변경", b.cfg.CommandPrefix+"setnick @멤버 닉네임")
	}
	userID, ok := parseMention(args[0])
	if !ok {
		return usage("닉네임 변경", b.cfg.CommandPrefix+"setnick @멤버 닉네임")
	}
	nick := strings.Join(args[1:], " ")
	err := b.onboarding.ForceNickname(ctx, msg.GuildID, userID, nick, msg.Author.ID)
	return nicknameEmbed(b.onboarding.NicknameOutcome(nick, err), err)
}

func (b *Bot) cmdPrefix(ctx context.Context, msg *discordgo.Message, args []string) *discordgo.MessageEmbed {
	if len(args) < 1 {
		return usage("접두사 적용", b.cfg.CommandPrefix+"prefix @멤버")
	}
	userID, ok := parseMention(args[0])
	if !ok {
		return usage("접두사 적용", b.cfg.CommandPrefix+"prefix @멤버")
	}
	nick, err := b.onboarding.ApplyPrefix(ctx, msg.GuildID, userID, msg.Author.ID)
	return nicknameEmbed(b.onboarding.NicknameOutcome(nick, err), err)
}

func nicknameEmbed(outcome string, err error) *discordgo.MessageEmbed {
	if err != nil {
		return commandEmbed("닉네임", outcome, colorError, nil)
	}
	return commandEmbed("닉네임", outcome, colorOK, nil)
}

func (b *Bot) cmdReport(ctx context.Context, msg *discordgo.Message, args []string) *discordgo.MessageEmbed {
	if b.analytics == nil {
		return commandEmbed("❌ 통계", "기록 저장소가 설정되지 않았습니다.", colorError, nil)
	}
	period, label := 24*time.Hour, "최근 24시간"
	if len(args) > 0 && (args[0] == "week" || args[0] == "주간") {
		period, label = 7*24*time.Hour, "최근 7일"
	}
	report, err := b.analytics.Report(ctx, msg.GuildID, time.Now().Add(-period))
	if err != nil {
		return failure("통계", err)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "전체", Value: strconv.Itoa(report.Total), Inline: true},
		{Name: audit.LevelInfo, Value: strconv.Itoa(report.ByLevel[audit.LevelInfo]), Inline: true},
		{Name: audit.LevelWarn, Value: strconv.Itoa(report.ByLevel[audit.LevelWarn]), Inline: true},
		{Name: audit.LevelCrit, Value: strconv.Itoa(report.ByLevel[audit.LevelCrit]), Inline: true},
	}
	if events := formatEvents(report); events != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "이벤트", Value: events})
	}
	return commandEmbed("📊 "+label+" 통계", "", colorInfo, fields)
}

func formatEvents(report analytics.Report) string {
	var lines []string
	for _, event := range analytics.Keys(report.ByEvent) {
		lines = append(lines, fmt.Sprintf("`%s` %d", event, report.ByEvent[event]))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdHelp(_ context.Context, _ *discordgo.Message, _ []string) *discordgo.MessageEmbed {
	p := b.cfg.CommandPrefix
	lines := []string{
		"`" + p + "status` 봇 상태",
		"`" + p + "history @멤버` 입장 기록",
		"`" + p + "permcheck` 봇 권한 확인",
		"`" + p + "setnick @멤버 닉네임` 닉네임 변경",
		"`" + p + "prefix @멤버` 성별 접두사 적용",
		"`" + p + "report [week]` 기록 통계",
	}
	return commandEmbed("📖 명령어", strings.Join(lines, "\n"), colorInfo, nil)
}
