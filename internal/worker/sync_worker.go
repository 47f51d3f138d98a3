package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"byb/internal/amqp"
	"byb/internal/core"
	"byb/internal/metrics"
	"byb/internal/records"
	"byb/internal/storage"

	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 50

// Outbox is the part of the local repository the worker drains.
type Outbox interface {
	GetPendingRecords(ctx context.Context, table string, limit int) ([]storage.PendingRecord, error)
	MarkSynced(ctx context.Context, ids ...int64) error
	MarkSyncError(ctx context.Context, cause string, ids ...int64) error
}

// SyncWorker pushes queued goal plans and to-do rows to the remote record store.
type SyncWorker struct {
	outbox    Outbox
	writer    records.Writer
	batchSize int
}

func NewSyncWorker(outbox Outbox, writer records.Writer, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SyncWorker{
		outbox:    outbox,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single record sync message from AMQP.
// The message only names the table; whatever is pending there is pushed.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"table", msg.Table,
		"plan_id", msg.PlanID,
		"count", len(msg.Keys))

	if _, err := w.SyncTable(ctx, msg.Table); err != nil {
		return fmt.Errorf("sync %s: %w", msg.Table, err)
	}
	return nil
}

// ProcessPending drains both outbox tables concurrently and returns how many
// rows were synced. This is the backup path in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	var (
		g     errgroup.Group
		total atomic.Int64
	)
	for _, table := range []string{storage.GoalPlansTable, storage.TodosTable} {
		g.Go(func() error {
			n, err := w.SyncTable(ctx, table)
			total.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	return int(total.Load()), err
}

// StartupSyncCheck pushes anything left pending while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.ProcessPending(ctx)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending records found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", n)
	return nil
}

// SyncTable pushes pending rows of table in batches until none are left or
// the remote store rejects a batch.
func (w *SyncWorker) SyncTable(ctx context.Context, table string) (int, error) {
	synced := 0
	for {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		pending, err := w.outbox.GetPendingRecords(ctx, table, w.batchSize)
		if err != nil {
			return synced, fmt.Errorf("get pending records: %w", err)
		}
		if len(pending) == 0 {
			return synced, nil
		}

		n, err := w.pushBatch(ctx, table, pending)
		synced += n
		if err != nil {
			return synced, err
		}
		if len(pending) < w.batchSize {
			return synced, nil
		}
	}
}

func (w *SyncWorker) pushBatch(ctx context.Context, table string, pending []storage.PendingRecord) (int, error) {
	var (
		ids     []int64
		badIDs  []int64
		pushErr error
	)

	switch table {
	case storage.GoalPlansTable:
		var rows []core.GoalPlanRecord
		for _, p := range pending {
			var r core.GoalPlanRecord
			if err := json.Unmarshal(p.Payload, &r); err != nil {
				slog.ErrorContext(ctx, "Undecodable outbox row", "table", table, "key", p.Key, "error", err)
				badIDs = append(badIDs, p.ID)
				continue
			}
			rows = append(rows, r)
			ids = append(ids, p.ID)
		}
		if len(rows) > 0 {
			pushErr = w.writer.InsertGoalPlans(ctx, rows)
		}
	case storage.TodosTable:
		var rows []core.TodoRecord
		for _, p := range pending {
			var r core.TodoRecord
			if err := json.Unmarshal(p.Payload, &r); err != nil {
				slog.ErrorContext(ctx, "Undecodable outbox row", "table", table, "key", p.Key, "error", err)
				badIDs = append(badIDs, p.ID)
				continue
			}
			rows = append(rows, r)
			ids = append(ids, p.ID)
		}
		if len(rows) > 0 {
			pushErr = w.writer.InsertTodos(ctx, rows)
		}
	default:
		return 0, fmt.Errorf("unknown record table %q", table)
	}

	if len(badIDs) > 0 {
		w.markError(ctx, table, "undecodable payload", badIDs)
	}
	if pushErr != nil {
		w.markError(ctx, table, pushErr.Error(), ids)
		return 0, fmt.Errorf("push %d %s rows: %w", len(ids), table, pushErr)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := w.outbox.MarkSynced(ctx, ids...); err != nil {
		// The remote write succeeded; a resend is deduplicated by key.
		slog.ErrorContext(ctx, "Failed to mark records as synced", "table", table, "error", err)
	}
	metrics.SyncedRecords.WithLabelValues(table, metrics.ResultOK).Add(float64(len(ids)))
	slog.InfoContext(ctx, "Successfully synced records", "table", table, "count", len(ids))
	return len(ids), nil
}

func (w *SyncWorker) markError(ctx context.Context, table, cause string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	metrics.SyncedRecords.WithLabelValues(table, metrics.ResultError).Add(float64(len(ids)))
	if err := w.outbox.MarkSyncError(ctx, cause, ids...); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "table", table, "error", err)
	}
}
