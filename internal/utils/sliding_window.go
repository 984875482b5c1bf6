package utils

import (
	"sync"
	"time"
)

// SlidingWindow keeps the hits younger than window, oldest first.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// Add prunes, records now and returns the number of hits including now.
func (w *SlidingWindow) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

// Snapshot prunes and returns a copy of the remaining hits.
func (w *SlidingWindow) Snapshot(now time.Time) []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	out := make([]time.Time, len(w.hits))
	copy(out, w.hits)
	return out
}

func (w *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}
