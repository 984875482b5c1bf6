package activity

import (
	"sync"
	"time"

	"welcome-gate/internal/platform"
)

// Record is the last observed activity of a member.
type Record struct {
	At        time.Time
	ChannelID string
}

// Tracker keeps the latest Record per member. Entries live until Forget.
type Tracker struct {
	mu      sync.RWMutex
	records map[platform.MemberKey]Record
}

func NewTracker() *Tracker {
	return &Tracker{records: make(map[platform.MemberKey]Record)}
}

func (t *Tracker) Touch(key platform.MemberKey, channelID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.records[key]; ok && prev.At.After(at) {
		return
	}
	t.records[key] = Record{At: at, ChannelID: channelID}
}

func (t *Tracker) Get(key platform.MemberKey) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	return rec, ok
}

// ActiveSince reports whether the member was seen at or after since.
func (t *Tracker) ActiveSince(key platform.MemberKey, since time.Time) bool {
	rec, ok := t.Get(key)
	return ok && !rec.At.Before(since)
}

func (t *Tracker) Forget(key platform.MemberKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
