package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"byb/internal/kv"
)

var (
	_ kv.Store = (*SQLiteRepository)(nil)
	_ kv.Store = (*DiskStore)(nil)
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "byb.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, ok, err := repo.Get(ctx, kv.StatsKey); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := repo.Set(ctx, kv.StatsKey, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, kv.StatsKey, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok, err := repo.Get(ctx, kv.StatsKey)
	if err != nil || !ok || string(got) != `{"a":2}` {
		t.Fatalf("unexpected value %q ok=%v err=%v", got, ok, err)
	}

	_ = repo.Set(ctx, "byb:todos:2025-01-02", []byte("{}"))
	_ = repo.Set(ctx, "byb:todos:2025-01-01", []byte("{}"))
	keys, err := repo.Keys(ctx, "byb:todos:")
	if err != nil || len(keys) != 2 || keys[0] != "byb:todos:2025-01-01" {
		t.Fatalf("unexpected keys %v err=%v", keys, err)
	}

	if err := repo.Delete(ctx, kv.StatsKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, kv.StatsKey); ok {
		t.Fatal("key still present after delete")
	}
}

func TestOutboxIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rows := []OutboxRecord{
		{Key: "plan:daily:0", Payload: []byte(`{"task":"a"}`)},
		{Key: "plan:daily:1", Payload: []byte(`{"task":"b"}`)},
	}
	n, err := repo.EnqueueRecords(ctx, TodosTable, rows)
	if err != nil || n != 2 {
		t.Fatalf("first enqueue: n=%d err=%v", n, err)
	}
	n, err = repo.EnqueueRecords(ctx, TodosTable, rows)
	if err != nil || n != 0 {
		t.Fatalf("second enqueue should skip duplicates: n=%d err=%v", n, err)
	}
	// Same key in a different table is a different record.
	if n, _ := repo.EnqueueRecords(ctx, GoalPlansTable, rows[:1]); n != 1 {
		t.Fatalf("expected goal row queued, got %d", n)
	}

	pending, err := repo.GetPendingRecords(ctx, TodosTable, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending: %v err=%v", pending, err)
	}
	if pending[0].Key != "plan:daily:0" || string(pending[0].Payload) != `{"task":"a"}` {
		t.Fatalf("unexpected first pending row: %+v", pending[0])
	}

	if err := repo.MarkSynced(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, "quota", pending[1].ID); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	pending, _ = repo.GetPendingRecords(ctx, TodosTable, 10)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected one retryable row, got %+v", pending)
	}

	count, err := repo.PendingCount(ctx)
	if err != nil || count != 2 {
		t.Fatalf("pending count = %d err=%v", count, err)
	}
}

func TestOutboxGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, _ = repo.EnqueueRecords(ctx, GoalPlansTable, []OutboxRecord{{Key: "p", Payload: []byte("{}")}})
	pending, _ := repo.GetPendingRecords(ctx, GoalPlansTable, 1)
	for i := 0; i < MaxSyncAttempts; i++ {
		_ = repo.MarkSyncError(ctx, "down", pending[0].ID)
	}
	if rest, _ := repo.GetPendingRecords(ctx, GoalPlansTable, 1); len(rest) != 0 {
		t.Fatalf("expected row to be abandoned, got %+v", rest)
	}
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	s := NewDiskStore(t.TempDir())

	if _, ok, err := s.Get(ctx, "byb:todos:2025-01-01"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "byb:todos:2025-01-01", []byte("day1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "byb:stats", []byte("stats")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, "byb:todos:2025-01-01")
	if err != nil || !ok || string(got) != "day1" {
		t.Fatalf("unexpected value %q ok=%v err=%v", got, ok, err)
	}

	keys := s.Keys(ctx, "byb:")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "byb:stats" || keys[1] != "byb:todos:2025-01-01" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := s.Delete(ctx, "byb:stats"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "byb:stats"); err != nil {
		t.Fatalf("deleting a missing key should be a no-op, got %v", err)
	}
}

func TestKeyPathTransformRoundTrip(t *testing.T) {
	for _, key := range []string{"byb:zig:draft:abc", "byb:stats", "plain"} {
		if got := pathToKeyTransform(keyToPathTransform(key)); got != key {
			t.Errorf("round trip %q -> %q", key, got)
		}
	}
}
