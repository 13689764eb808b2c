package store

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

func sampleResult() models.Result {
	return models.Result{Label: models.LabelGood, LabelName: "Good sleep", Advice: "keep going", CreatedAt: time.Now()}
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	got, err := b.GetResult(ctx, "u-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result for unknown user, got %+v", got)
	}

	if err := b.SaveResult(ctx, "u1", sampleResult()); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	replaced := sampleResult()
	replaced.Label = models.LabelBad
	replaced.LabelName = "Bad sleep"
	if err := b.SaveResult(ctx, "u1", replaced); err != nil {
		t.Fatalf("SaveResult overwrite failed: %v", err)
	}
	got, err = b.GetResult(ctx, "u1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got == nil || got.Label != models.LabelBad || got.LabelName != "Bad sleep" || got.Advice != "keep going" {
		t.Errorf("result not stored or overwritten correctly: %+v", got)
	}

	fresh, err := b.RecordInbound("msg-1", "u1")
	if err != nil || !fresh {
		t.Fatalf("expected first RecordInbound to be fresh, got %v, %v", fresh, err)
	}
	fresh, err = b.RecordInbound("msg-1", "u1")
	if err != nil || fresh {
		t.Errorf("expected duplicate RecordInbound to return false, got %v, %v", fresh, err)
	}
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewInMemoryStore()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exerciseBackend(t, s)
}

func TestInMemoryStore_CapacityEviction(t *testing.T) {
	s, err := NewInMemoryStore(WithCapacity(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveResult(ctx, id, sampleResult()); err != nil {
			t.Fatalf("SaveResult(%s) failed: %v", id, err)
		}
	}
	if s.ResultCount() != 2 {
		t.Errorf("expected 2 cached results, got %d", s.ResultCount())
	}
	if got, _ := s.GetResult(ctx, "a"); got != nil {
		t.Error("expected oldest entry to be evicted")
	}
	if got, _ := s.GetResult(ctx, "c"); got == nil {
		t.Error("expected newest entry to be present")
	}
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	s, err := NewInMemoryStore(WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	old := sampleResult()
	old.CreatedAt = time.Now().Add(-2 * time.Minute)
	if err := s.SaveResult(ctx, "u1", old); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if got, _ := s.GetResult(ctx, "u1"); got != nil {
		t.Errorf("expected expired result to be hidden, got %+v", got)
	}
	if s.ResultCount() != 0 {
		t.Errorf("expected expired result to be dropped, count=%d", s.ResultCount())
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sleepadvisor.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	exerciseBackend(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepadvisor.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.SaveResult(context.Background(), "u1", sampleResult()); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetResult(context.Background(), "u1")
	if err != nil || got == nil {
		t.Fatalf("expected persisted result, got %+v, %v", got, err)
	}
	if got.Label != models.LabelGood {
		t.Errorf("expected label %d, got %d", models.LabelGood, got.Label)
	}
}

func TestSQLiteStore_NoDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error when DSN is not set")
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	pgStore.db.Exec("DELETE FROM results")
	pgStore.db.Exec("DELETE FROM inbound_dedup")
	exerciseBackend(t, pgStore)
}

func TestNew_SelectsBackend(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*InMemoryStore); !ok {
		t.Errorf("expected in-memory backend by default, got %T", b)
	}

	b, err = New(WithSQLiteDSN(filepath.Join(t.TempDir(), "x.db")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*SQLiteStore); !ok {
		t.Errorf("expected SQLite backend, got %T", b)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@localhost/db":  "postgres",
		"postgresql://localhost/db":        "postgres",
		"host=localhost dbname=sleep":      "postgres",
		"/var/lib/sleepadvisor/results.db": "sqlite3",
		"file:results.db?_foreign_keys=on": "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

func seedForPrune(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	old := sampleResult()
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	if err := b.SaveResult(ctx, "old", old); err != nil {
		t.Fatalf("SaveResult old: %v", err)
	}
	if err := b.SaveResult(ctx, "fresh", sampleResult()); err != nil {
		t.Fatalf("SaveResult fresh: %v", err)
	}
}

func TestInMemoryStore_Prune(t *testing.T) {
	s, err := NewInMemoryStore(WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seedForPrune(t, s)

	removed, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 || s.ResultCount() != 1 {
		t.Errorf("removed=%d count=%d, want 1/1", removed, s.ResultCount())
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "prune.db")), WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	seedForPrune(t, s)

	if _, err := s.db.Exec(`INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)`,
		"ancient", "u1", time.Now().Add(-2*DedupRetention).UTC()); err != nil {
		t.Fatalf("seed dedup row: %v", err)
	}
	if fresh, err := s.RecordInbound("recent", "u1"); err != nil || !fresh {
		t.Fatalf("RecordInbound: %v, %v", fresh, err)
	}

	removed, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2 (one result, one dedup row)", removed)
	}
	if got, _ := s.GetResult(ctx, "fresh"); got == nil {
		t.Error("fresh result pruned")
	}
	// A pruned message id is accepted again; a recent one is still a duplicate.
	if fresh, _ := s.RecordInbound("ancient", "u1"); !fresh {
		t.Error("pruned dedup id still recorded")
	}
	if fresh, _ := s.RecordInbound("recent", "u1"); fresh {
		t.Error("recent dedup id was pruned")
	}
}

func TestCutoffs(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	results, dedup := cutoffs(now, time.Hour)
	if !results.Equal(now.Add(-time.Hour)) {
		t.Errorf("result cutoff = %v", results)
	}
	if !dedup.Equal(now.Add(-DedupRetention)) {
		t.Errorf("dedup cutoff = %v", dedup)
	}
	if results, _ := cutoffs(now, 0); !results.IsZero() {
		t.Errorf("zero ttl should disable result pruning, got %v", results)
	}
}
