package audit

import (
	"context"
	"testing"
	"time"

	"welcome-gate/internal/storage"
	"welcome-gate/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())
	return store
}

func TestRecordJournalsAndNotifies(t *testing.T) {
	store := newStore(t)
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	logger := NewLogger(store, zap.NewNop())
	logger.WithClock(clock)

	var notified []storage.AuditLog
	logger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		notified = append(notified, entry)
	})

	ctx := context.Background()
	logger.Log(ctx, LevelInfo, "g1", "u1", "member_join", "")
	logger.Record(ctx, Entry{Level: LevelWarn, GuildID: "g1", UserID: "u1", RunID: "r1", Event: "member_rejoin"})

	logs, err := logger.Member(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "r1", logs[0].RunID)
	require.Len(t, notified, 1)
	assert.Equal(t, "member_rejoin", notified[0].Event)
}

func TestTransitionAndPrune(t *testing.T) {
	store := newStore(t)
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	logger := NewLogger(store, zap.NewNop())
	logger.WithClock(clock)
	ctx := context.Background()

	logger.Transition(ctx, storage.OnboardingRun{RunID: "r1", GuildID: "g1", UserID: "u1", State: "joined"})
	run, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "joined", run.State)
	assert.True(t, clock.Now().Equal(run.StartedAt))

	logger.Log(ctx, LevelInfo, "g1", "u1", "member_join", "")
	clock.Advance(72 * time.Hour)
	logger.Prune(ctx, 1)

	logs, err := logger.Member(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestNilStoreIsSafe(t *testing.T) {
	logger := NewLogger(nil, zap.NewNop())
	logger.Log(context.Background(), LevelCrit, "g1", "u1", "member_kicked", "")
	logger.Transition(context.Background(), storage.OnboardingRun{RunID: "r1"})
	logs, err := logger.Member(context.Background(), "g1", "u1", 5)
	assert.NoError(t, err)
	assert.Nil(t, logs)
}
