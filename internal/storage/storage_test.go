package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateTwice(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestPingAfterClose(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping open store: %v", err)
	}
	store.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping on closed store to fail")
	}
}

func TestAuditLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	entries := []AuditLog{
		{GuildID: "g1", UserID: "u1", RunID: "r1", Level: "INFO", Event: "member_join", CreatedAt: now.Add(-48 * time.Hour)},
		{GuildID: "g1", UserID: "u1", RunID: "r2", Level: "WARN", Event: "member_rejoin", CreatedAt: now.Add(-time.Hour)},
		{GuildID: "g1", UserID: "u2", Level: "CRIT", Event: "member_kicked", Details: "inactive", CreatedAt: now},
		{GuildID: "g2", UserID: "u1", Level: "INFO", Event: "member_join", CreatedAt: now},
	}
	for _, entry := range entries {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add audit log: %v", err)
		}
	}

	logs, err := store.ListAuditLogs(ctx, "g1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Event != "member_kicked" || logs[0].Details != "inactive" {
		t.Fatalf("expected newest first, got %+v", logs[0])
	}

	member, err := store.ListMemberAuditLogs(ctx, "g1", "u1", 10)
	if err != nil {
		t.Fatalf("list member logs: %v", err)
	}
	if len(member) != 2 || member[0].RunID != "r2" {
		t.Fatalf("unexpected member logs: %+v", member)
	}

	removed, err := store.CleanupAuditLogs(ctx, now, 1)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed row, got %d", removed)
	}
}

func TestSaveRunTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Unix(1_700_000_000, 0)

	run := OnboardingRun{RunID: "r1", GuildID: "g1", UserID: "u1", State: "joined", Returning: true, StartedAt: started}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.ChannelID = "c1"
	run.State = "channel_created"
	run.UpdatedAt = started.Add(time.Second)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}
	run.ChannelID = ""
	run.State = "kicked"
	run.UpdatedAt = started.Add(time.Minute)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.State != "kicked" || got.ChannelID != "c1" || !got.Returning {
		t.Fatalf("unexpected run: %+v", got)
	}
	if !got.UpdatedAt.Equal(started.Add(time.Minute)) {
		t.Fatalf("unexpected updated_at %v", got.UpdatedAt)
	}

	runs, err := store.ListRuns(ctx, "g1", started.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	missing, err := store.GetRun(ctx, "nope")
	if err != nil || missing.RunID != "" {
		t.Fatalf("expected empty run, got %+v (%v)", missing, err)
	}
}

func TestDialectAndRebind(t *testing.T) {
	if DialectOf("postgres://user@localhost/db") != DialectPostgres {
		t.Fatalf("expected postgres dialect")
	}
	if DialectOf("file:welcome.db") != DialectSQLite {
		t.Fatalf("expected sqlite dialect")
	}

	pg := &Store{dialect: DialectPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind %q", got)
	}
	lite := &Store{dialect: DialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query rewritten: %q", got)
	}
}
