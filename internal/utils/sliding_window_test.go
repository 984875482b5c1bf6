package utils

import (
	"testing"
	"time"
)

func TestSlidingWindowAdd(t *testing.T) {
	window := NewSlidingWindow(2 * time.Second)
	now := time.Now()
	if count := window.Add(now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	window.Add(now.Add(500 * time.Millisecond))
	if count := len(window.Snapshot(now.Add(1 * time.Second))); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := len(window.Snapshot(now.Add(3 * time.Second))); count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestSlidingWindowBoundary(t *testing.T) {
	window := NewSlidingWindow(5 * time.Second)
	now := time.Unix(1000, 0)
	window.Add(now)
	// a hit exactly one window old is outside the window
	if count := window.Add(now.Add(5 * time.Second)); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	if count := window.Add(now.Add(9 * time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
}

func TestSlidingWindowSnapshot(t *testing.T) {
	window := NewSlidingWindow(time.Minute)
	now := time.Unix(0, 0)
	window.Add(now)
	window.Add(now.Add(30 * time.Second))

	snap := window.Snapshot(now.Add(70 * time.Second))
	if len(snap) != 1 || !snap[0].Equal(now.Add(30*time.Second)) {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	snap[0] = time.Time{}
	if got := window.Snapshot(now.Add(70 * time.Second)); got[0].IsZero() {
		t.Fatalf("snapshot must be a copy")
	}
}
