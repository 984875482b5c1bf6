package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"welcome-gate/internal/config"
	"welcome-gate/internal/modules/access"
	"welcome-gate/internal/modules/activity"
	"welcome-gate/internal/modules/audit"
	"welcome-gate/internal/modules/guard"
	"welcome-gate/internal/modules/nickname"
	"welcome-gate/internal/modules/rejoin"
	"welcome-gate/internal/platform"
	"welcome-gate/internal/storage"
	"welcome-gate/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	botChannelAllow    = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageChannels
	memberChannelAllow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory
)

type Options struct {
	ChannelPrefix   string
	AdminRoleName   string
	AdminUserIDs    []string
	FollowUpDelay   time.Duration
	DeleteGrace     time.Duration
	ActivityEnabled bool
	Timings         activity.Timings
}

type Deps struct {
	Rejoin   *rejoin.Module
	Guard    *guard.Guard
	Tracker  *activity.Tracker
	Nickname *nickname.Normalizer
	Access   *access.Synchronizer
	Audit    *audit.Logger
}

// Service runs the onboarding sequence for joining members and owns the
// in-memory tables it needs.
type Service struct {
	client   platform.Client
	opts     Options
	messages config.Messages
	logger   *zap.Logger
	clock    utils.Clock

	rejoin  *rejoin.Module
	guard   *guard.Guard
	tracker *activity.Tracker
	monitor *activity.Monitor
	nick    *nickname.Normalizer
	access  *access.Synchronizer
	audit   *audit.Logger

	registry   *registry
	categories singleflight.Group
	newRunID   func() string

	deletesMu sync.Mutex
	deletes   map[string]utils.Timer

	activeMu sync.Mutex
	active   map[platform.MemberKey]*activeRun
}

// activeRun is the in-flight onboarding of one member. A leave cancels it;
// a rejoin suppressed while it winds down is parked in pending and resumed
// once the guard is released.
type activeRun struct {
	cancel  context.CancelFunc
	left    bool
	pending *runState
}

func New(client platform.Client, opts Options, messages config.Messages, deps Deps, logger *zap.Logger) *Service {
	if opts.FollowUpDelay <= 0 {
		opts.FollowUpDelay = 5 * time.Second
	}
	if opts.DeleteGrace <= 0 {
		opts.DeleteGrace = 3 * time.Second
	}
	if deps.Rejoin == nil {
		deps.Rejoin = rejoin.New(0)
	}
	if deps.Guard == nil {
		deps.Guard = guard.New()
	}
	if deps.Tracker == nil {
		deps.Tracker = activity.NewTracker()
	}
	if deps.Access == nil {
		deps.Access = access.New(client, logger, 0)
	}
	if deps.Nickname == nil {
		deps.Nickname = nickname.New(RulesFrom(messages.Settings), logger)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(nil, logger)
	}

	s := &Service{
		client:   client,
		opts:     opts,
		messages: messages,
		logger:   logger,
		clock:    utils.RealClock(),
		rejoin:   deps.Rejoin,
		guard:    deps.Guard,
		tracker:  deps.Tracker,
		nick:     deps.Nickname,
		access:   deps.Access,
		audit:    deps.Audit,
		registry: newRegistry(),
		newRunID: uuid.NewString,
		deletes:  make(map[string]utils.Timer),
		active:   make(map[platform.MemberKey]*activeRun),
	}
	s.monitor = activity.NewMonitor(client, s.tracker, monitorHooks{s: s}, opts.Timings, logger)
	s.audit.SetNotifier(s.notifyAudit)
	return s
}

// RulesFrom maps the message settings onto nickname rules.
func RulesFrom(settings config.Settings) []nickname.Rule {
	return []nickname.Rule{
		{RoleName: settings.MaleRoleName, Prefix: settings.MalePrefix},
		{RoleName: settings.FemaleRoleName, Prefix: settings.FemalePrefix},
	}
}

func (s *Service) WithClock(clock utils.Clock) {
	s.clock = clock
	s.monitor.WithClock(clock)
	s.audit.WithClock(clock)
}

// Close stops pending watches and delayed deletions.
func (s *Service) Close() {
	s.monitor.Close()
	s.deletesMu.Lock()
	defer s.deletesMu.Unlock()
	for id, timer := range s.deletes {
		timer.Stop()
		delete(s.deletes, id)
	}
}

func (s *Service) ChannelNameFor(member *discordgo.Member) string {
	if member == nil || member.User == nil {
		return ""
	}
	return ChannelName(s.opts.ChannelPrefix, member.User.Username)
}

// HandleJoin runs the onboarding sequence for a new member and returns the
// state it ended in. It never panics and never returns an error; failures
// are logged and journaled.
func (s *Service) HandleJoin(ctx context.Context, member *discordgo.Member) State {
	if member == nil || member.User == nil || member.User.Bot {
		return Ignored
	}
	run := s.newRun(member)
	key := platform.KeyOf(member)

	run.Returning = s.rejoin.RecordJoin(key, run.StartedAt)
	if run.Returning {
		s.audit.Record(ctx, audit.Entry{
			Level:   audit.LevelWarn,
			GuildID: key.GuildID,
			UserID:  key.UserID,
			RunID:   run.RunID,
			Event:   "member_rejoin",
			Details: fmt.Sprintf("joins_in_window=%d", len(s.rejoin.History(key, run.StartedAt))),
		})
	} else {
		s.audit.Record(ctx, audit.Entry{Level: audit.LevelInfo, GuildID: key.GuildID, UserID: key.UserID, RunID: run.RunID, Event: "member_join"})
	}
	return s.start(ctx, run)
}

func (s *Service) newRun(member *discordgo.Member) *runState {
	key := platform.KeyOf(member)
	run := &runState{
		OnboardingRun: storage.OnboardingRun{
			RunID:     s.newRunID(),
			GuildID:   key.GuildID,
			UserID:    key.UserID,
			StartedAt: s.clock.Now(),
		},
		member: member,
		name:   s.ChannelNameFor(member),
	}
	run.logger = s.logger.With(
		zap.String("guild_id", key.GuildID),
		zap.String("user_id", key.UserID),
		zap.String("run_id", run.RunID),
	)
	return run
}

// start admits the run through the guard and drives it to a final state.
// A run that was left and rejoined during its sequence hands over to the
// parked rejoin when it finishes.
func (s *Service) start(ctx context.Context, run *runState) State {
	key := run.key()
	exists := s.channelExists(ctx, key.GuildID, run.name)

	s.activeMu.Lock()
	admitted := s.guard.TryAdmit(key, run.name, func() bool { return exists })
	if !admitted {
		if active := s.active[key]; active != nil && active.left {
			active.pending = run
			run.logger.Info("rejoin parked until the previous run winds down")
		} else {
			run.logger.Debug("duplicate join suppressed", zap.String("channel", run.name))
		}
		s.activeMu.Unlock()
		return Suppressed
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.active[key] = &activeRun{cancel: cancel}
	s.activeMu.Unlock()

	state := s.execute(runCtx, run)

	s.activeMu.Lock()
	s.guard.Release(key, run.name)
	pending := s.active[key].pending
	delete(s.active, key)
	s.activeMu.Unlock()
	cancel()

	if pending != nil {
		if _, err := s.client.Member(ctx, key.GuildID, key.UserID); err != nil {
			pending.logger.Info("parked rejoin dropped, member gone", zap.Error(err))
			return state
		}
		s.start(ctx, pending)
	}
	return state
}

func (s *Service) execute(ctx context.Context, run *runState) (state State) {
	var catcher panics.Catcher
	catcher.Try(func() { state = s.onboard(ctx, run) })
	if recovered := catcher.Recovered(); recovered != nil {
		run.logger.Error("onboarding panicked", zap.Error(recovered.AsError()))
		state = Failed
	}
	s.transition(ctx, run, state)
	return state
}

type runState struct {
	storage.OnboardingRun
	member *discordgo.Member
	name   string
	logger *zap.Logger
}

func (r *runState) key() platform.MemberKey {
	return platform.MemberKey{GuildID: r.GuildID, UserID: r.UserID}
}

func (s *Service) onboard(ctx context.Context, run *runState) State {
	guildID, userID := run.GuildID, run.UserID
	s.transition(ctx, run, Joined)

	category, err := s.ensureCategory(ctx, guildID)
	if err != nil {
		run.logger.Error("welcome category unavailable", zap.Error(err))
		return Failed
	}
	s.transition(ctx, run, CategoryEnsured)

	if _, err := s.access.Apply(ctx, guildID, userID, access.DenyAll, category.ID); err != nil {
		run.logger.Warn("channel access restriction failed", zap.Error(err))
	}

	if s.channelExists(ctx, guildID, run.name) {
		run.logger.Info("welcome channel appeared before creation", zap.String("channel", run.name))
		return Aborted
	}
	if !s.stillPresent(ctx, run) {
		run.logger.Info("member left before channel creation")
		return Aborted
	}

	channel, err := s.client.CreateChannel(ctx, guildID, s.channelData(ctx, run, category.ID))
	if err != nil {
		run.logger.Error("welcome channel creation failed", zap.Error(err))
		return Failed
	}
	run.ChannelID = channel.ID
	run.logger = run.logger.With(zap.String("channel_id", channel.ID))
	s.registry.Put(run.key(), channel.ID)
	if !s.stillPresent(ctx, run) {
		run.logger.Info("member left while the welcome channel was created")
		s.discardChannel(ctx, run.key(), channel.ID, "member_left_during_creation")
		return Aborted
	}
	s.transition(ctx, run, ChannelCreated)

	if err := s.client.SendMessage(ctx, channel.ID, s.firstNotice(run.member)); err != nil {
		return s.sendFailure(run, "first notice", err)
	}
	s.transition(ctx, run, FirstNoticePosted)

	if err := s.clock.Sleep(ctx, s.opts.FollowUpDelay); err != nil {
		run.logger.Info("onboarding cancelled", zap.Error(err))
		return Aborted
	}

	if err := s.client.SendMessage(ctx, channel.ID, s.secondNotice(run.member)); err != nil {
		return s.sendFailure(run, "second notice", err)
	}
	s.transition(ctx, run, SecondNoticePosted)

	if !s.opts.ActivityEnabled {
		return SecondNoticePosted
	}
	if ctx.Err() != nil {
		run.logger.Info("member left before the activity check started")
		return Aborted
	}
	s.monitor.Start(activity.Subject{
		Key:       platform.MemberKey{GuildID: guildID, UserID: userID},
		ChannelID: channel.ID,
		RunID:     run.RunID,
	})
	return ActivityMonitoring
}

// stillPresent reports whether the run has not been cancelled by a leave and
// the member is still in the guild.
func (s *Service) stillPresent(ctx context.Context, run *runState) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := s.client.Member(ctx, run.GuildID, run.UserID)
	return err == nil
}

// discardChannel deletes a welcome channel whose member is gone.
func (s *Service) discardChannel(ctx context.Context, key platform.MemberKey, channelID, reason string) {
	ctx = context.WithoutCancel(ctx)
	s.registry.ForgetChannel(channelID)
	if err := s.client.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		s.logger.Warn("welcome channel delete failed",
			zap.String("guild_id", key.GuildID),
			zap.String("user_id", key.UserID),
			zap.String("channel_id", channelID),
			zap.Error(err))
		return
	}
	s.audit.Record(ctx, audit.Entry{Level: audit.LevelInfo, GuildID: key.GuildID, UserID: key.UserID, Event: "welcome_channel_deleted", Details: reason})
}

func (s *Service) sendFailure(run *runState, what string, err error) State {
	if errors.Is(err, platform.ErrNotFound) {
		run.logger.Info("welcome channel vanished", zap.String("stage", what))
		return Aborted
	}
	run.logger.Error("welcome message failed", zap.String("stage", what), zap.Error(err))
	return Failed
}

func (s *Service) channelData(ctx context.Context, run *runState, categoryID string) discordgo.GuildChannelCreateData {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: run.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: s.client.BotUserID(), Type: discordgo.PermissionOverwriteTypeMember, Allow: botChannelAllow},
		{ID: run.UserID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberChannelAllow},
	}
	if guild, err := s.client.Guild(ctx, run.GuildID); err == nil {
		if role := platform.RoleByName(guild, s.opts.AdminRoleName); role != nil {
			overwrites = append(overwrites, &discordgo.PermissionOverwrite{
				ID: role.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: memberChannelAllow,
			})
		}
	} else {
		run.logger.Warn("guild lookup failed, admin role not granted", zap.Error(err))
	}
	return discordgo.GuildChannelCreateData{
		Name:                 run.name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("%s님의 환영 채널", run.member.User.Username),
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	}
}

// ensureCategory returns the welcome category, creating it once per guild
// even when joins race.
func (s *Service) ensureCategory(ctx context.Context, guildID string) (*discordgo.Channel, error) {
	v, err, _ := s.categories.Do(guildID, func() (any, error) {
		if category, err := s.findCategory(ctx, guildID); err != nil || category != nil {
			return category, err
		}
		s.logger.Info("creating welcome category",
			zap.String("guild_id", guildID),
			zap.String("name", s.messages.Settings.WelcomeCategory))
		return s.client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
			Name: s.messages.Settings.WelcomeCategory,
			Type: discordgo.ChannelTypeGuildCategory,
		})
	})
	if err != nil {
		return nil, err
	}
	category, _ := v.(*discordgo.Channel)
	if category == nil {
		return nil, platform.ErrNotFound
	}
	return category, nil
}

func (s *Service) findCategory(ctx context.Context, guildID string) (*discordgo.Channel, error) {
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		if channel != nil && channel.Type == discordgo.ChannelTypeGuildCategory && channel.Name == s.messages.Settings.WelcomeCategory {
			return channel, nil
		}
	}
	return nil, nil
}

func (s *Service) findChannelByName(ctx context.Context, guildID, name string) (*discordgo.Channel, error) {
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		if channel != nil && channel.Type != discordgo.ChannelTypeGuildCategory && channel.Name == name {
			return channel, nil
		}
	}
	return nil, nil
}

// channelExists treats lookup failures as absence; the guard still blocks
// concurrent creation of the same name.
func (s *Service) channelExists(ctx context.Context, guildID, name string) bool {
	channel, err := s.findChannelByName(ctx, guildID, name)
	if err != nil {
		s.logger.Debug("channel lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	return channel != nil
}

// HandleLeave deletes the member's welcome channel and clears their state.
func (s *Service) HandleLeave(ctx context.Context, member *discordgo.Member) {
	if member == nil || member.User == nil || member.User.Bot {
		return
	}
	key := platform.KeyOf(member)
	s.activeMu.Lock()
	if active := s.active[key]; active != nil {
		active.left = true
		active.pending = nil
		active.cancel()
	}
	s.activeMu.Unlock()
	s.monitor.Stop(key)
	s.tracker.Forget(key)

	channelID, ok := s.registry.Take(key)
	if !ok {
		channel, err := s.findChannelByName(ctx, key.GuildID, s.ChannelNameFor(member))
		if err != nil {
			s.logger.Warn("welcome channel lookup failed", zap.String("guild_id", key.GuildID), zap.String("user_id", key.UserID), zap.Error(err))
			return
		}
		if channel == nil {
			return
		}
		channelID = channel.ID
	}

	if err := s.client.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		s.logger.Warn("welcome channel delete failed",
			zap.String("guild_id", key.GuildID),
			zap.String("user_id", key.UserID),
			zap.String("channel_id", channelID),
			zap.Error(err))
		return
	}
	s.audit.Record(ctx, audit.Entry{Level: audit.LevelInfo, GuildID: key.GuildID, UserID: key.UserID, Event: "welcome_channel_deleted", Details: "member_left"})
}

// HandleChannelDelete forgets registry entries for a deleted channel.
func (s *Service) HandleChannelDelete(channelID string) {
	key, ok := s.registry.ForgetChannel(channelID)
	if !ok {
		return
	}
	s.monitor.Stop(key)
	s.logger.Debug("welcome channel removed",
		zap.String("guild_id", key.GuildID),
		zap.String("user_id", key.UserID),
		zap.String("channel_id", channelID))
}

// HandleMessage records activity for messages a member posts in their own
// welcome channel.
func (s *Service) HandleMessage(ctx context.Context, msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return false
	}
	key := platform.MemberKey{GuildID: msg.GuildID, UserID: msg.Author.ID}
	channelID, ok := s.registry.Get(key)
	if !ok || channelID != msg.ChannelID {
		return false
	}
	s.tracker.Touch(key, msg.ChannelID, s.clock.Now())
	return true
}

// HandleVoice records activity when a member is in any voice channel.
func (s *Service) HandleVoice(ctx context.Context, state *discordgo.VoiceState) bool {
	if state == nil || state.GuildID == "" || state.UserID == "" || state.ChannelID == "" {
		return false
	}
	if state.Member != nil && state.Member.User != nil && state.Member.User.Bot {
		return false
	}
	s.tracker.Touch(platform.MemberKey{GuildID: state.GuildID, UserID: state.UserID}, state.ChannelID, s.clock.Now())
	return true
}

func (s *Service) transition(ctx context.Context, run *runState, state State) {
	run.State = state.String()
	run.UpdatedAt = s.clock.Now()
	s.audit.Transition(context.WithoutCancel(ctx), run.OnboardingRun)
	run.logger.Debug("onboarding state", zap.String("state", run.State))
}
