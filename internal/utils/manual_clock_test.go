package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClockFiresOnlyDueTimers(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var fired []string
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "ten") })
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "three") })

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"three"}, fired)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"three", "ten"}, fired)
	assert.Equal(t, time.Unix(10, 0), clock.Now())
}

func TestManualClockChainedTimers(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var at []time.Time
	clock.AfterFunc(10*time.Second, func() {
		at = append(at, clock.Now())
		clock.AfterFunc(7*time.Second, func() {
			at = append(at, clock.Now())
		})
	})

	clock.Advance(20 * time.Second)
	require.Len(t, at, 2)
	assert.Equal(t, time.Unix(10, 0), at[0])
	assert.Equal(t, time.Unix(17, 0), at[1])
	assert.Equal(t, time.Unix(20, 0), clock.Now())
}

func TestManualClockStop(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clock.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManualClockSleepHonoursContext(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
	assert.Equal(t, time.Unix(0, 0), clock.Now())

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	assert.Equal(t, time.Unix(1, 0), clock.Now())
}
