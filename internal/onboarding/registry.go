package onboarding

import (
	"sync"

	"welcome-gate/internal/platform"
)

// registry remembers which welcome channel was created for which member.
type registry struct {
	mu       sync.RWMutex
	channels map[platform.MemberKey]string
}

func newRegistry() *registry {
	return &registry{channels: make(map[platform.MemberKey]string)}
}

func (r *registry) Put(key platform.MemberKey, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[key] = channelID
}

func (r *registry) Get(key platform.MemberKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.channels[key]
	return id, ok
}

func (r *registry) Take(key platform.MemberKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.channels[key]
	delete(r.channels, key)
	return id, ok
}

// ForgetChannel drops the entry pointing at channelID and returns its owner.
func (r *registry) ForgetChannel(channelID string) (platform.MemberKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, id := range r.channels {
		if id == channelID {
			delete(r.channels, key)
			return key, true
		}
	}
	return platform.MemberKey{}, false
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
