package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Outbox tables, one per remote record table.
const (
	GoalPlansTable = "big_goals"
	TodosTable     = "todos"
)

// MaxSyncAttempts bounds how often a failing outbox row is retried.
const MaxSyncAttempts = 5

type (
	SQLiteRepository struct {
		db *sql.DB
	}

	// OutboxRecord is one row waiting to be pushed to the remote record store.
	OutboxRecord struct {
		Key     string
		Payload []byte
	}

	// PendingRecord is an outbox row that has not been synced yet.
	PendingRecord struct {
		ID        int64
		Table     string
		Key       string
		Payload   []byte
		Attempts  int
		CreatedAt time.Time
	}
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Timer-driven saves and the outbox share one file; serialize writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get implements kv.Store.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements kv.Store.
func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (r *SQLiteRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// EnqueueRecords stores rows in the outbox of table. Rows whose key is already
// queued are skipped, so re-sending a plan does not duplicate remote rows.
// It returns how many rows were newly queued.
func (r *SQLiteRepository) EnqueueRecords(ctx context.Context, table string, records []OutboxRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO record_outbox (record_table, record_key, payload, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(record_table, record_key) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare outbox insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	inserted := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, table, rec.Key, string(rec.Payload), now)
		if err != nil {
			return 0, fmt.Errorf("enqueue %s/%s: %w", table, rec.Key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}

	slog.InfoContext(ctx, "Records queued for sync",
		"table", table,
		"queued", inserted,
		"skipped", len(records)-inserted)
	return inserted, nil
}

// GetPendingRecords returns up to limit unsynced rows of table, oldest first.
// Rows that failed MaxSyncAttempts times are left out.
func (r *SQLiteRepository) GetPendingRecords(ctx context.Context, table string, limit int) ([]PendingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, record_table, record_key, payload, attempts, created_at
		 FROM record_outbox
		 WHERE record_table = ? AND sync_status IN ('pending', 'error') AND attempts < ?
		 ORDER BY id
		 LIMIT ?`, table, MaxSyncAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending records: %w", err)
	}
	defer rows.Close()

	var out []PendingRecord
	for rows.Next() {
		var (
			p       PendingRecord
			payload string
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Table, &p.Key, &payload, &p.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		p.Payload = []byte(payload)
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingCount returns how many outbox rows are still waiting to be synced.
func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM record_outbox WHERE sync_status IN ('pending', 'error') AND attempts < ?`,
		MaxSyncAttempts).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending records: %w", err)
	}
	return n, nil
}

// MarkSynced marks outbox rows as pushed to the remote store.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := r.db.ExecContext(ctx,
		`UPDATE record_outbox SET sync_status = 'synced', synced_at = ?, last_error = ''
		 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark records synced: %w", err)
	}

	slog.InfoContext(ctx, "Records marked as synced", "count", len(ids))
	return nil
}

// MarkSyncError records a failed push attempt for the given rows.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, cause string, ids ...int64) error {
	for _, id := range ids {
		_, err := r.db.ExecContext(ctx,
			`UPDATE record_outbox SET sync_status = 'error', attempts = attempts + 1, last_error = ?
			 WHERE id = ?`, cause, id)
		if err != nil {
			return fmt.Errorf("mark record sync error: %w", err)
		}
	}

	slog.WarnContext(ctx, "Records marked with sync error", "count", len(ids), "error", cause)
	return nil
}
