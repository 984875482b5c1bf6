package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"welcome-gate/internal/platform"
	"welcome-gate/internal/platform/platformtest"
	"welcome-gate/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHooks struct {
	mu       sync.Mutex
	finished []State
	graces   []time.Duration
}

func (h *recordingHooks) Reminder(s Subject) *discordgo.MessageSend {
	return &discordgo.MessageSend{Content: "reminder"}
}

func (h *recordingHooks) Warning(s Subject, grace time.Duration) *discordgo.MessageSend {
	h.mu.Lock()
	h.graces = append(h.graces, grace)
	h.mu.Unlock()
	return &discordgo.MessageSend{Content: "warning"}
}

func (h *recordingHooks) Finished(ctx context.Context, s Subject, state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, state)
}

func (h *recordingHooks) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.finished...)
}

type fixture struct {
	fake    *platformtest.Fake
	clock   *utils.ManualClock
	tracker *Tracker
	hooks   *recordingHooks
	monitor *Monitor
	subject Subject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := platformtest.New("bot")
	fake.AddMember(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1", Username: "newbie"}})
	fake.AddChannel(&discordgo.Channel{ID: "welcome", GuildID: "g1", Type: discordgo.ChannelTypeGuildText})

	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	tracker := NewTracker()
	hooks := &recordingHooks{}
	monitor := NewMonitor(fake, tracker, hooks, DefaultTimings(), zap.NewNop())
	monitor.WithClock(clock)
	t.Cleanup(monitor.Close)

	return &fixture{
		fake:    fake,
		clock:   clock,
		tracker: tracker,
		hooks:   hooks,
		monitor: monitor,
		subject: Subject{Key: platform.MemberKey{GuildID: "g1", UserID: "u1"}, ChannelID: "welcome", RunID: "run"},
	}
}

func TestMonitorCompletesOnMessageBeforeWarning(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.monitor.Start(f.subject))

	f.clock.Advance(10 * time.Second)
	assert.Len(t, f.fake.SentTo("welcome"), 1)

	f.clock.Advance(2 * time.Second)
	f.tracker.Touch(f.subject.Key, "welcome", f.clock.Now())

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, []State{Completed}, f.hooks.states())
	assert.Zero(t, f.fake.KickCount())
	assert.Zero(t, f.monitor.Running())
	assert.Len(t, f.fake.SentTo("welcome"), 1)
}

func TestMonitorKicksInactiveMember(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.monitor.Start(f.subject))

	f.clock.Advance(31 * time.Second)
	assert.Zero(t, f.fake.KickCount())
	assert.Len(t, f.fake.SentTo("welcome"), 2)

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.fake.KickCount())
	assert.Equal(t, []State{Kicked}, f.hooks.states())
	assert.Equal(t, []time.Duration{15 * time.Second}, f.hooks.graces)
}

func TestMonitorAbandonsWhenMemberLeft(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.monitor.Start(f.subject))

	f.fake.RemoveMember("g1", "u1")
	f.clock.Advance(10 * time.Second)

	assert.Equal(t, []State{Abandoned}, f.hooks.states())
	assert.Empty(t, f.fake.SentTo("welcome"))
	assert.Zero(t, f.clock.Pending())
}

func TestMonitorCountsChannelMessagesAndVoice(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.monitor.Start(f.subject))
	f.clock.Advance(20 * time.Second)
	f.fake.AddMessage("welcome", &discordgo.Message{
		ChannelID: "welcome",
		Author:    &discordgo.User{ID: "u1"},
		Timestamp: f.clock.Now(),
	})
	f.clock.Advance(12 * time.Second)
	assert.Equal(t, []State{Completed}, f.hooks.states())

	g := newFixture(t)
	require.True(t, g.monitor.Start(g.subject))
	g.fake.SetVoice("g1", "u1", "lounge")
	g.clock.Advance(17 * time.Second)
	assert.Equal(t, []State{Completed}, g.hooks.states())
}

func TestMonitorKickFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.KickErr = platform.ErrForbidden
	require.True(t, f.monitor.Start(f.subject))

	f.clock.Advance(32 * time.Second)
	assert.Equal(t, []State{KickFailed}, f.hooks.states())
}

func TestMonitorStartIsExclusiveAndStoppable(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.monitor.Start(f.subject))
	assert.False(t, f.monitor.Start(f.subject))
	assert.Equal(t, 1, f.monitor.Running())

	assert.True(t, f.monitor.Stop(f.subject.Key))
	assert.False(t, f.monitor.Stop(f.subject.Key))
	f.clock.Advance(time.Minute)
	assert.Empty(t, f.hooks.states())
	assert.Zero(t, f.fake.KickCount())
}
