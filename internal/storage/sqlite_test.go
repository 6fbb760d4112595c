package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the ledger indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_runs_ticker", "idx_runs_finished", "idx_run_attempts_run"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func testRun(id, ticker string, finished time.Time) Run {
	return Run{
		ID:            id,
		Ticker:        ticker,
		FilerCode:     "1023",
		StartDate:     "2024-01-01",
		EndDate:       "2024-12-31",
		Status:        "succeeded",
		AttemptCount:  4,
		ArtifactCount: 1,
		StartedAt:     finished.Add(-time.Minute),
		FinishedAt:    finished,
	}
}

// TestSaveAndGetRun saves a run with attempts and retrieves both.
func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := testRun("run-001", "BBAS3", now)
	attempts := []RunAttempt{
		{Step: "search", Number: 1, Outcome: "failure", Error: "portal 502", At: now.Add(-50 * time.Second)},
		{Step: "search", Number: 2, Outcome: "success", At: now.Add(-40 * time.Second)},
		{Step: "download", Number: 1, Outcome: "success", At: now.Add(-10 * time.Second)},
	}

	if err := s.SaveRun(want, attempts); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun("run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Ticker != want.Ticker || got.Status != want.Status || got.AttemptCount != want.AttemptCount {
		t.Errorf("GetRun = %+v, want %+v", got, want)
	}
	if !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, want.FinishedAt)
	}

	gotAttempts, err := s.ListAttempts("run-001")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(gotAttempts) != len(attempts) {
		t.Fatalf("got %d attempts, want %d", len(gotAttempts), len(attempts))
	}
	for i, a := range gotAttempts {
		if a.Step != attempts[i].Step || a.Number != attempts[i].Number || a.Outcome != attempts[i].Outcome {
			t.Errorf("attempt %d = %+v, want %+v", i, a, attempts[i])
		}
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetRun("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun = %v, want ErrNotFound", err)
	}
}

// TestListRuns verifies ordering (newest first), ticker filtering, and limit.
func TestListRuns(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		ticker := "BBAS3"
		if i == 1 {
			ticker = "PETR4"
		}
		run := testRun(fmt.Sprintf("run-%03d", i), ticker, base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveRun(run, nil); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	all, err := s.ListRuns("", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d runs, want 3", len(all))
	}
	if all[0].ID != "run-002" || all[2].ID != "run-000" {
		t.Errorf("order = [%s %s %s], want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	bbas, err := s.ListRuns("BBAS3", 10)
	if err != nil {
		t.Fatalf("ListRuns(BBAS3): %v", err)
	}
	if len(bbas) != 2 {
		t.Errorf("got %d BBAS3 runs, want 2", len(bbas))
	}

	limited, err := s.ListRuns("", 1)
	if err != nil {
		t.Fatalf("ListRuns(limit 1): %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-002" {
		t.Errorf("limited = %+v, want only the newest run", limited)
	}
}
