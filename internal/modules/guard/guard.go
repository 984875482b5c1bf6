package guard

import (
	"sync"

	"welcome-gate/internal/platform"
)

// Guard admits at most one onboarding per member and per channel name.
type Guard struct {
	mu         sync.Mutex
	processing map[platform.MemberKey]struct{}
	creating   map[string]struct{}
}

func New() *Guard {
	return &Guard{
		processing: make(map[platform.MemberKey]struct{}),
		creating:   make(map[string]struct{}),
	}
}

// TryAdmit reports whether the caller owns the onboarding of key. exists is
// consulted before the critical section so a slow lookup never blocks other
// admissions; the creating set covers the gap.
func (g *Guard) TryAdmit(key platform.MemberKey, channelName string, exists func() bool) bool {
	if exists != nil && exists() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.processing[key]; busy {
		return false
	}
	if _, busy := g.creating[channelName]; busy {
		return false
	}
	g.processing[key] = struct{}{}
	g.creating[channelName] = struct{}{}
	return true
}

func (g *Guard) Release(key platform.MemberKey, channelName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.processing, key)
	delete(g.creating, channelName)
}

func (g *Guard) Processing() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.processing)
}
