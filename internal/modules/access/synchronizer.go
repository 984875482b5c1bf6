package access

import (
	"context"
	"sync/atomic"

	"welcome-gate/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type Mode int

const (
	DenyAll Mode = iota
	GrantAll
)

func (m Mode) String() string {
	if m == GrantAll {
		return "grant_all"
	}
	return "deny_all"
}

const (
	messagingBits  = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	voiceDenyBits  = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect
	voiceAllowBits = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak
)

// Result counts per-channel outcomes. Partial application is a normal result.
type Result struct {
	Succeeded int
	Failed    int
	Skipped   int
}

func (r Result) OK() bool {
	return r.Succeeded > 0
}

type Synchronizer struct {
	client      platform.Client
	logger      *zap.Logger
	concurrency int
}

func New(client platform.Client, logger *zap.Logger, concurrency int) *Synchronizer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Synchronizer{client: client, logger: logger, concurrency: concurrency}
}

// Apply sets the member's overwrite on every channel outside exceptCategoryID.
// The error is reserved for failing to list channels.
func (s *Synchronizer) Apply(ctx context.Context, guildID, userID string, mode Mode, exceptCategoryID string) (Result, error) {
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return Result{}, err
	}

	var succeeded, failed, skipped atomic.Int64
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, channel := range channels {
		if channel == nil {
			continue
		}
		if exceptCategoryID != "" && (channel.ParentID == exceptCategoryID || channel.ID == exceptCategoryID) {
			skipped.Add(1)
			continue
		}
		allow, deny, ok := Overwrite(KindOf(channel), mode)
		if !ok {
			skipped.Add(1)
			continue
		}
		channel := channel
		p.Go(func() {
			if err := s.client.SetMemberPermissions(ctx, channel.ID, userID, allow, deny); err != nil {
				failed.Add(1)
				s.logger.Debug("channel permission failed",
					zap.String("guild_id", guildID),
					zap.String("channel_id", channel.ID),
					zap.String("user_id", userID),
					zap.String("mode", mode.String()),
					zap.Error(err))
				return
			}
			succeeded.Add(1)
		})
	}
	p.Wait()

	result := Result{Succeeded: int(succeeded.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}
	s.logger.Info("channel access synchronized",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("mode", mode.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Overwrite returns the member overwrite for a channel kind, ok=false when the
// kind carries neither messaging nor voice.
func Overwrite(kind Kind, mode Mode) (allow, deny int64, ok bool) {
	caps := kind.Capabilities()
	switch {
	case caps.Messaging && mode == GrantAll:
		return messagingBits, 0, true
	case caps.Messaging:
		return 0, messagingBits, true
	case caps.Voice && mode == GrantAll:
		return voiceAllowBits, 0, true
	case caps.Voice:
		return 0, voiceDenyBits, true
	default:
		return 0, 0, false
	}
}
