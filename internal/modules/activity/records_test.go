package activity

import (
	"testing"
	"time"

	"welcome-gate/internal/platform"

	"github.com/stretchr/testify/assert"
)

func TestTrackerKeepsLatest(t *testing.T) {
	tracker := NewTracker()
	key := platform.MemberKey{GuildID: "g1", UserID: "u1"}
	base := time.Unix(1_700_000_000, 0)

	tracker.Touch(key, "c1", base.Add(5*time.Second))
	tracker.Touch(key, "c2", base)

	rec, ok := tracker.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "c1", rec.ChannelID)
	assert.True(t, tracker.ActiveSince(key, base.Add(5*time.Second)))
	assert.False(t, tracker.ActiveSince(key, base.Add(6*time.Second)))

	tracker.Forget(key)
	assert.False(t, tracker.ActiveSince(key, base))
	assert.Zero(t, tracker.Len())
}
