package audit

import (
	"context"

	"welcome-gate/internal/storage"
	"welcome-gate/internal/utils"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Entry is one journal line. RunID ties it to an onboarding run.
type Entry struct {
	Level   string
	GuildID string
	UserID  string
	RunID   string
	Event   string
	Details string
}

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	clock  utils.Clock
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, clock: utils.RealClock()}
}

func (l *Logger) WithClock(clock utils.Clock) {
	l.clock = clock
}

// SetNotifier registers a callback for WARN and CRIT entries.
func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	l.Record(ctx, Entry{Level: level, GuildID: guildID, UserID: userID, Event: event, Details: details})
}

func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.Level == "" {
		e.Level = LevelInfo
	}
	entry := storage.AuditLog{
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		RunID:     e.RunID,
		Level:     e.Level,
		Event:     e.Event,
		Details:   e.Details,
		CreatedAt: l.clock.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit journal write failed", zap.String("event", e.Event), zap.Error(err))
		}
	}
	if l.notify != nil && e.Level != LevelInfo {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("level", e.Level),
		zap.String("guild_id", e.GuildID),
		zap.String("user_id", e.UserID),
		zap.String("run_id", e.RunID),
		zap.String("event", e.Event),
		zap.String("details", e.Details))
}

// Transition journals the state of an onboarding run.
func (l *Logger) Transition(ctx context.Context, run storage.OnboardingRun) {
	if l.store == nil {
		return
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = l.clock.Now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.UpdatedAt
	}
	if err := l.store.SaveRun(ctx, run); err != nil {
		l.logger.Warn("onboarding run write failed",
			zap.String("run_id", run.RunID),
			zap.String("state", run.State),
			zap.Error(err))
	}
}

// Member returns the most recent journal lines for a member.
func (l *Logger) Member(ctx context.Context, guildID, userID string, limit int) ([]storage.AuditLog, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.ListMemberAuditLogs(ctx, guildID, userID, limit)
}

// Prune drops journal lines older than retentionDays.
func (l *Logger) Prune(ctx context.Context, retentionDays int) {
	if l.store == nil || retentionDays <= 0 {
		return
	}
	removed, err := l.store.CleanupAuditLogs(ctx, l.clock.Now(), retentionDays)
	if err != nil {
		l.logger.Warn("audit journal cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		l.logger.Info("audit journal pruned", zap.Int64("removed", removed))
	}
}

