package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"restart/internal/adapters/http/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestQueryLabel tests statement classification for timing labels.
func TestQueryLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"INSERT INTO audit_event (id) VALUES (?)", "INSERT audit_event"},
		{"insert or replace into kiosk_device(id) values (?)", "INSERT kiosk_device"},
		{"SELECT id, timestamp FROM audit_event WHERE 1=1", "SELECT audit_event"},
		{"\n\tSELECT COUNT(*) FROM sqlite_master", "SELECT sqlite_master"},
		{"UPDATE kiosk_device SET last_seen_at = ?", "UPDATE kiosk_device"},
		{"DELETE FROM audit_event WHERE timestamp < ?", "DELETE audit_event"},
		{"SELECT 1", "SELECT"},
		{"PRAGMA journal_mode=WAL", "PRAGMA"},
		{"   ", "EMPTY"},
	}
	for _, tt := range tests {
		if got := QueryLabel(tt.query); got != tt.want {
			t.Errorf("QueryLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

// TestTimedDB_RecordsEveryCall verifies each wrapped call reaches the collector
// and the observer under its label.
func TestTimedDB_RecordsEveryCall(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	var mu sync.Mutex
	seen := map[string]int{}
	observe := func(label string, d time.Duration) {
		mu.Lock()
		seen[label]++
		mu.Unlock()
	}
	tdb := NewTimedDB(db, collector, observe, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT id, val FROM test")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()
	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if val != "hello" {
		t.Errorf("val = %q, want hello", val)
	}
	tx, err := tdb.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	tx.Rollback()

	if collector.TotalRecorded() != 4 {
		t.Errorf("TotalRecorded = %d, want 4", collector.TotalRecorded())
	}
	if seen["INSERT test"] != 1 || seen["SELECT test"] != 2 || seen["BEGIN"] != 1 {
		t.Errorf("observer labels = %v", seen)
	}

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.Queries.Slowest) != 3 {
		t.Errorf("Slowest = %+v, want 3 labels", snap.Queries.Slowest)
	}
}

// TestTimedDB_NilSinks verifies TimedDB works without a collector or observer.
func TestTimedDB_NilSinks(t *testing.T) {
	db := openTimedTestDB(t)
	tdb := NewTimedDB(db, nil, nil, 0)

	if _, err := tdb.ExecContext(context.Background(), "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext with nil sinks: %v", err)
	}
	if tdb.threshold != DefaultSlowQuery {
		t.Errorf("threshold = %v, want %v", tdb.threshold, DefaultSlowQuery)
	}
	if tdb.RawDB() != db {
		t.Error("RawDB() should return the original *sql.DB")
	}
}

// TestTimedDB_ErrorPassthrough verifies SQL errors are returned unchanged and
// timing is still recorded.
func TestTimedDB_ErrorPassthrough(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector, nil, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO nonexistent_table VALUES (?)", 1); err == nil {
		t.Fatal("expected error from invalid SQL, got nil")
	}
	if _, err := tdb.QueryContext(ctx, "SELECT * FROM nonexistent_table"); err == nil {
		t.Fatal("expected error from invalid SQL, got nil")
	}
	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "missing").Scan(&val); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
	if collector.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3 (must record even on error)", collector.TotalRecorded())
	}
}

// TestTimedDB_CancelledContext verifies that a cancelled context returns an error
// and timing is still recorded.
func TestTimedDB_CancelledContext(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1", collector.TotalRecorded())
	}
}

// BenchmarkTimedDB_QueryRow measures the instrumentation overhead per call.
func BenchmarkTimedDB_QueryRow(b *testing.B) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	db.Exec("CREATE TABLE bench (id INTEGER PRIMARY KEY, val TEXT)")
	db.Exec("INSERT INTO bench VALUES (1, 'x')")
	tdb := NewTimedDB(db, perf.NewCollector(perf.DefaultRingSize), nil, 0)

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tdb.QueryRowContext(ctx, "SELECT val FROM bench WHERE id = 1")
	}
}
