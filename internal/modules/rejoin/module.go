package rejoin

import (
	"sync"
	"time"

	"welcome-gate/internal/platform"
	"welcome-gate/internal/utils"
)

const DefaultWindow = 24 * time.Hour

type Module struct {
	mu      sync.Mutex
	window  time.Duration
	history map[platform.MemberKey]*utils.SlidingWindow
}

func New(window time.Duration) *Module {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Module{
		window:  window,
		history: make(map[platform.MemberKey]*utils.SlidingWindow),
	}
}

// RecordJoin appends now to the member's history and reports whether an
// earlier join is still inside the window.
func (m *Module) RecordJoin(key platform.MemberKey, now time.Time) bool {
	return m.getWindow(key).Add(now) > 1
}

func (m *Module) History(key platform.MemberKey, now time.Time) []time.Time {
	m.mu.Lock()
	window := m.history[key]
	m.mu.Unlock()
	if window == nil {
		return nil
	}
	return window.Snapshot(now)
}

func (m *Module) Window() time.Duration {
	return m.window
}

func (m *Module) getWindow(key platform.MemberKey) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.history[key]
	if window == nil {
		window = utils.NewSlidingWindow(m.window)
		m.history[key] = window
	}
	return window
}
