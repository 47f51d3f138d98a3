package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"byb/internal/core"
	"byb/internal/records"
	"byb/internal/storage"
)

type (
	// Outbox queues rows until a worker pushes them to the remote store.
	Outbox interface {
		EnqueueRecords(ctx context.Context, table string, recs []storage.OutboxRecord) (int, error)
	}

	// Publisher announces newly queued rows to the sync worker.
	Publisher interface {
		PublishRecordSync(ctx context.Context, table, planID string, keys []string) error
	}

	// RecordService accepts goal plans and to-do rows locally and hands them
	// to the sync worker.
	RecordService struct {
		outbox    Outbox
		publisher Publisher
	}
)

var _ records.Writer = (*RecordService)(nil)

// NewRecordService returns a record writer backed by the outbox. publisher
// may be nil, in which case the worker only picks rows up on its catch-up poll.
func NewRecordService(outbox Outbox, publisher Publisher) *RecordService {
	return &RecordService{outbox: outbox, publisher: publisher}
}

// InsertGoalPlans queues one row per plan keyed by plan id.
func (s *RecordService) InsertGoalPlans(ctx context.Context, rows []core.GoalPlanRecord) error {
	recs := make([]storage.OutboxRecord, 0, len(rows))
	planID := ""
	for _, r := range rows {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode goal plan %s: %w", r.PlanID, err)
		}
		recs = append(recs, storage.OutboxRecord{Key: r.PlanID, Payload: payload})
		planID = r.PlanID
	}
	return s.enqueue(ctx, storage.GoalPlansTable, planID, recs)
}

// InsertTodos queues one row per to-do keyed by its derived key.
func (s *RecordService) InsertTodos(ctx context.Context, rows []core.TodoRecord) error {
	recs := make([]storage.OutboxRecord, 0, len(rows))
	planID := ""
	for _, r := range rows {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode todo %s: %w", r.Key, err)
		}
		recs = append(recs, storage.OutboxRecord{Key: r.Key, Payload: payload})
		planID = r.PlanID
	}
	return s.enqueue(ctx, storage.TodosTable, planID, recs)
}

func (s *RecordService) enqueue(ctx context.Context, table, planID string, recs []storage.OutboxRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// Save to the outbox first; the remote push happens asynchronously.
	if _, err := s.outbox.EnqueueRecords(ctx, table, recs); err != nil {
		return fmt.Errorf("queue %s rows: %w", table, err)
	}

	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	if err := s.publish(ctx, table, planID, keys); err != nil {
		// Rows are queued locally; the worker's catch-up poll will find them.
		slog.ErrorContext(ctx, "Failed to publish record sync message",
			"table", table, "plan_id", planID, "error", err)
	}
	return nil
}

func (s *RecordService) publish(ctx context.Context, table, planID string, keys []string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "table", table)
		return nil
	}
	return s.publisher.PublishRecordSync(ctx, table, planID, keys)
}
