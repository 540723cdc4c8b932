package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/phantom/internal/terminal"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phantom-test.db")
	database, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
	return database, path
}

func assertTableExists(t *testing.T, conn *sql.DB, table string) {
	t.Helper()
	var count int
	err := conn.QueryRow(`SELECT count(1) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master error: %v", err)
	}
	if count != 1 {
		t.Fatalf("table %q not found", table)
	}
}

func TestOpenCreatesDBFileAndRunsMigrations(t *testing.T) {
	database, path := openTestDB(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected DB file at %q: %v", path, err)
	}
	assertTableExists(t, database.SQL(), "_meta")
	assertTableExists(t, database.SQL(), "sessions")
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database, _ := openTestDB(t)

	if err := RunMigrations(context.Background(), database.SQL()); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}

	var version string
	if err := database.SQL().QueryRow(`SELECT value FROM _meta WHERE key='schema_version'`).Scan(&version); err != nil {
		t.Fatalf("read schema version error = %v", err)
	}
	if version != "1" {
		t.Fatalf("schema version = %s, want 1", version)
	}
}

func TestSessionRepoLifecycle(t *testing.T) {
	database, _ := openTestDB(t)
	repo := database.Sessions()
	ctx := context.Background()

	s := &Session{SessionID: 3, Command: "bash -l", WorkingDir: "/tmp", Cols: 80, Rows: 24}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" || s.Status != StatusRunning {
		t.Fatalf("Create() left session = %#v", s)
	}

	if err := repo.SetTitle(ctx, s.ID, "vim main.go"); err != nil {
		t.Fatalf("SetTitle() error = %v", err)
	}
	code := 2
	if err := repo.MarkExited(ctx, s.ID, &code, time.Now()); err != nil {
		t.Fatalf("MarkExited() error = %v", err)
	}
	if err := repo.MarkClosed(ctx, s.ID, time.Now()); err != nil {
		t.Fatalf("MarkClosed() error = %v", err)
	}

	got, err := repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Title != "vim main.go" || got.Status != StatusExited {
		t.Fatalf("Get() = %#v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 2 || got.EndedAt == nil {
		t.Fatalf("exit not recorded: %#v", got)
	}
	if got.SessionID != 3 || got.Cols != 80 || got.Rows != 24 {
		t.Fatalf("fields not round-tripped: %#v", got)
	}

	missing, err := repo.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %#v, %v", missing, err)
	}
	if err := repo.SetTitle(ctx, "nope", "x"); err == nil {
		t.Fatal("SetTitle(missing) expected error")
	}
}

func TestSessionRepoListAndMarkLost(t *testing.T) {
	database, _ := openTestDB(t)
	repo := database.Sessions()
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s := &Session{SessionID: uint64(i + 1), Command: "sh", Cols: 80, Rows: 24, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if i == 0 {
			if err := repo.MarkExited(ctx, s.ID, nil, base); err != nil {
				t.Fatalf("MarkExited() error = %v", err)
			}
		}
	}

	all, err := repo.List(ctx, SessionFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].SessionID != 3 {
		t.Fatalf("List() order = %#v", all)
	}

	limited, err := repo.List(ctx, SessionFilter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("List(limit 1) = %d, %v", len(limited), err)
	}

	n, err := repo.MarkLost(ctx)
	if err != nil {
		t.Fatalf("MarkLost() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("MarkLost() = %d, want 2", n)
	}
	lost, err := repo.List(ctx, SessionFilter{Status: StatusLost})
	if err != nil || len(lost) != 2 {
		t.Fatalf("List(lost) = %d, %v", len(lost), err)
	}

	pruned, err := repo.Prune(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 2 {
		t.Fatalf("Prune() = %d, want 2", pruned)
	}
}

func TestRecorderTracksSession(t *testing.T) {
	database, _ := openTestDB(t)
	repo := database.Sessions()
	rec := NewRecorder(repo)
	ctx := context.Background()

	err := rec.SessionStarted(ctx, terminal.Record{
		ID:        42,
		Command:   "htop",
		Cols:      120,
		Rows:      40,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("SessionStarted() error = %v", err)
	}
	if err := rec.SessionTitle(ctx, 42, "htop - load"); err != nil {
		t.Fatalf("SessionTitle() error = %v", err)
	}
	if err := rec.SessionClosed(ctx, 42); err != nil {
		t.Fatalf("SessionClosed() error = %v", err)
	}
	if err := rec.SessionExited(ctx, 42, nil); err == nil {
		t.Fatal("SessionExited() after close expected error")
	}

	list, err := repo.List(ctx, SessionFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() len = %d", len(list))
	}
	got := list[0]
	if got.SessionID != 42 || got.Title != "htop - load" || got.Status != StatusClosed {
		t.Fatalf("recorded = %#v", got)
	}
}
