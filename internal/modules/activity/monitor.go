package activity

import (
	"context"
	"sync"
	"time"

	"welcome-gate/internal/platform"
	"welcome-gate/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type State int

const (
	Abandoned State = iota
	Completed
	Kicked
	KickFailed
)

func (s State) String() string {
	switch s {
	case Completed:
		return "completed"
	case Kicked:
		return "kicked"
	case KickFailed:
		return "kick_failed"
	default:
		return "abandoned"
	}
}

// Timings are the three watch stages: reminder, warning and kick.
type Timings struct {
	Reminder time.Duration
	Warning  time.Duration
	Kick     time.Duration
}

func DefaultTimings() Timings {
	return Timings{Reminder: 10 * time.Second, Warning: 7 * time.Second, Kick: 15 * time.Second}
}

// Subject is one member under observation in their welcome channel.
type Subject struct {
	Key       platform.MemberKey
	ChannelID string
	RunID     string
}

// Hooks supplies the messages posted by a watch and observes its end.
type Hooks interface {
	Reminder(s Subject) *discordgo.MessageSend
	Warning(s Subject, grace time.Duration) *discordgo.MessageSend
	Finished(ctx context.Context, s Subject, state State)
}

const (
	recentMessageLimit = 50
	stageTimeout       = 15 * time.Second
	kickReason         = "No activity in the welcome channel"
)

type watch struct {
	subject Subject
	timer   utils.Timer
}

type Monitor struct {
	client  platform.Client
	tracker *Tracker
	clock   utils.Clock
	hooks   Hooks
	timings Timings
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[platform.MemberKey]*watch
}

func NewMonitor(client platform.Client, tracker *Tracker, hooks Hooks, timings Timings, logger *zap.Logger) *Monitor {
	defaults := DefaultTimings()
	if timings.Reminder <= 0 {
		timings.Reminder = defaults.Reminder
	}
	if timings.Warning <= 0 {
		timings.Warning = defaults.Warning
	}
	if timings.Kick <= 0 {
		timings.Kick = defaults.Kick
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		client:  client,
		tracker: tracker,
		clock:   utils.RealClock(),
		hooks:   hooks,
		timings: timings,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		watches: make(map[platform.MemberKey]*watch),
	}
}

func (m *Monitor) WithClock(clock utils.Clock) {
	m.clock = clock
}

// Start schedules the watch for a member. It returns false when one is
// already running for the same key.
func (m *Monitor) Start(subject Subject) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return false
	}
	if _, ok := m.watches[subject.Key]; ok {
		return false
	}
	p := &watch{subject: subject}
	p.timer = m.clock.AfterFunc(m.timings.Reminder, func() { m.remind(p) })
	m.watches[subject.Key] = p
	m.logFields(subject).Debug("activity watch started")
	return true
}

// Stop cancels a watch whose timer has not fired yet.
func (m *Monitor) Stop(key platform.MemberKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.watches[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(m.watches, key)
	return true
}

func (m *Monitor) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.watches {
		p.timer.Stop()
		delete(m.watches, key)
	}
	m.cancel()
}

func (m *Monitor) remind(p *watch) {
	if !m.current(p) {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, stageTimeout)
	defer cancel()

	if !m.present(ctx, p.subject) {
		m.finish(ctx, p, Abandoned)
		return
	}
	if msg := m.hooks.Reminder(p.subject); msg != nil {
		if err := m.client.SendMessage(ctx, p.subject.ChannelID, msg); err != nil {
			m.logFields(p.subject).Warn("activity reminder failed", zap.Error(err))
		}
	}
	m.schedule(p, m.timings.Warning, m.warn)
}

func (m *Monitor) warn(p *watch) {
	if !m.current(p) {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, stageTimeout)
	defer cancel()

	if !m.present(ctx, p.subject) {
		m.finish(ctx, p, Abandoned)
		return
	}
	since := m.clock.Now().Add(-(m.timings.Reminder + m.timings.Warning))
	if m.active(ctx, p.subject, since) {
		m.finish(ctx, p, Completed)
		return
	}
	if msg := m.hooks.Warning(p.subject, m.timings.Kick); msg != nil {
		if err := m.client.SendMessage(ctx, p.subject.ChannelID, msg); err != nil {
			m.logFields(p.subject).Warn("activity warning failed", zap.Error(err))
		}
	}
	m.schedule(p, m.timings.Kick, m.expire)
}

func (m *Monitor) expire(p *watch) {
	if !m.current(p) {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, stageTimeout)
	defer cancel()

	if !m.present(ctx, p.subject) {
		m.finish(ctx, p, Abandoned)
		return
	}
	since := m.clock.Now().Add(-(m.timings.Reminder + m.timings.Warning + m.timings.Kick))
	if m.active(ctx, p.subject, since) {
		m.finish(ctx, p, Completed)
		return
	}
	if err := m.client.Kick(ctx, p.subject.Key.GuildID, p.subject.Key.UserID, kickReason); err != nil {
		m.logFields(p.subject).Warn("inactive member kick failed", zap.Error(err))
		m.finish(ctx, p, KickFailed)
		return
	}
	m.finish(ctx, p, Kicked)
}

func (m *Monitor) schedule(p *watch, d time.Duration, next func(*watch)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watches[p.subject.Key] != p {
		return
	}
	p.timer = m.clock.AfterFunc(d, func() { next(p) })
}

func (m *Monitor) current(p *watch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches[p.subject.Key] == p
}

func (m *Monitor) finish(ctx context.Context, p *watch, state State) {
	m.mu.Lock()
	if m.watches[p.subject.Key] != p {
		m.mu.Unlock()
		return
	}
	delete(m.watches, p.subject.Key)
	m.mu.Unlock()

	m.logFields(p.subject).Info("activity watch finished", zap.String("state", state.String()))
	if m.hooks != nil {
		m.hooks.Finished(ctx, p.subject, state)
	}
}

// present re-fetches the member and the welcome channel. Any lookup error
// counts as absence.
func (m *Monitor) present(ctx context.Context, s Subject) bool {
	if _, err := m.client.Member(ctx, s.Key.GuildID, s.Key.UserID); err != nil {
		m.logFields(s).Debug("member lookup failed", zap.Error(err))
		return false
	}
	if _, err := m.client.Channel(ctx, s.ChannelID); err != nil {
		m.logFields(s).Debug("channel lookup failed", zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) active(ctx context.Context, s Subject, since time.Time) bool {
	if m.tracker != nil && m.tracker.ActiveSince(s.Key, since) {
		return true
	}
	msgs, err := m.client.RecentMessages(ctx, s.ChannelID, recentMessageLimit)
	if err != nil {
		m.logFields(s).Debug("recent messages unavailable", zap.Error(err))
	}
	for _, msg := range msgs {
		if msg == nil || msg.Author == nil || msg.Author.ID != s.Key.UserID {
			continue
		}
		if !msg.Timestamp.Before(since) {
			return true
		}
	}
	voiceChannel, err := m.client.VoiceChannelID(ctx, s.Key.GuildID, s.Key.UserID)
	if err != nil {
		m.logFields(s).Debug("voice state unavailable", zap.Error(err))
		return false
	}
	return voiceChannel != ""
}

func (m *Monitor) logFields(s Subject) *zap.Logger {
	return m.logger.With(
		zap.String("guild_id", s.Key.GuildID),
		zap.String("user_id", s.Key.UserID),
		zap.String("channel_id", s.ChannelID),
		zap.String("run_id", s.RunID),
	)
}
