package rejoin

import (
	"testing"
	"time"

	"welcome-gate/internal/platform"

	"github.com/stretchr/testify/assert"
)

func TestRecordJoinWithinWindow(t *testing.T) {
	module := New(DefaultWindow)
	key := platform.MemberKey{GuildID: "g1", UserID: "u1"}
	start := time.Unix(0, 0)

	assert.False(t, module.RecordJoin(key, start))
	for i := 1; i <= 5; i++ {
		assert.True(t, module.RecordJoin(key, start.Add(time.Duration(i)*time.Hour)), "join %d", i)
	}
	assert.Len(t, module.History(key, start.Add(5*time.Hour)), 6)
}

func TestRecordJoinSpacedBeyondWindow(t *testing.T) {
	module := New(DefaultWindow)
	key := platform.MemberKey{GuildID: "g1", UserID: "u1"}
	at := time.Unix(0, 0)

	for i := 0; i < 4; i++ {
		assert.False(t, module.RecordJoin(key, at), "join %d", i)
		at = at.Add(DefaultWindow + time.Minute)
	}
}

func TestRecordJoinExactlyOneWindowApart(t *testing.T) {
	module := New(DefaultWindow)
	key := platform.MemberKey{GuildID: "g1", UserID: "u1"}
	at := time.Unix(0, 0)

	module.RecordJoin(key, at)
	assert.False(t, module.RecordJoin(key, at.Add(DefaultWindow)))
}

func TestRecordJoinKeysAreIndependent(t *testing.T) {
	module := New(DefaultWindow)
	now := time.Unix(0, 0)

	module.RecordJoin(platform.MemberKey{GuildID: "g1", UserID: "u1"}, now)
	assert.False(t, module.RecordJoin(platform.MemberKey{GuildID: "g2", UserID: "u1"}, now))
	assert.False(t, module.RecordJoin(platform.MemberKey{GuildID: "g1", UserID: "u2"}, now))
	assert.Nil(t, module.History(platform.MemberKey{GuildID: "g3", UserID: "u9"}, now))
}
