package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// OnboardingRun is the last known state of one onboarding sequence.
type OnboardingRun struct {
	RunID     string
	GuildID   string
	UserID    string
	ChannelID string
	State     string
	Returning bool
	StartedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) GetRun(ctx context.Context, runID string) (OnboardingRun, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT run_id, guild_id, user_id, channel_id, state, is_returning, started_at, updated_at
		FROM onboarding_runs
		WHERE run_id = ?
	`), runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OnboardingRun{}, nil
		}
		return OnboardingRun{}, err
	}
	return run, nil
}

// SaveRun inserts the run or moves it to a new state.
func (s *Store) SaveRun(ctx context.Context, run OnboardingRun) error {
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.StartedAt
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO onboarding_runs (run_id, guild_id, user_id, channel_id, state, is_returning, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			channel_id = CASE WHEN excluded.channel_id = '' THEN onboarding_runs.channel_id ELSE excluded.channel_id END,
			state = excluded.state,
			updated_at = excluded.updated_at
	`), run.RunID, run.GuildID, run.UserID, run.ChannelID, run.State, boolToInt(run.Returning), run.StartedAt.Unix(), run.UpdatedAt.Unix())
	return err
}

func (s *Store) ListRuns(ctx context.Context, guildID string, since time.Time) ([]OnboardingRun, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT run_id, guild_id, user_id, channel_id, state, is_returning, started_at, updated_at
		FROM onboarding_runs
		WHERE guild_id = ? AND started_at >= ?
		ORDER BY started_at DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []OnboardingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (OnboardingRun, error) {
	var run OnboardingRun
	var returning int
	var started, updated int64
	if err := row.Scan(&run.RunID, &run.GuildID, &run.UserID, &run.ChannelID, &run.State, &returning, &started, &updated); err != nil {
		return OnboardingRun{}, err
	}
	run.Returning = returning == 1
	run.StartedAt = time.Unix(started, 0)
	run.UpdatedAt = time.Unix(updated, 0)
	return run, nil
}
