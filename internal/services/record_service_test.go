package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"byb/internal/core"
	"byb/internal/storage"
)

type fakePublisher struct {
	tables []string
	keys   [][]string
	err    error
}

func (p *fakePublisher) PublishRecordSync(_ context.Context, table, _ string, keys []string) error {
	p.tables = append(p.tables, table)
	p.keys = append(p.keys, keys)
	return p.err
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "byb.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPlan() core.GoalPlan {
	return core.GoalPlan{
		ID:            "plan-1",
		BigGoal:       "run a marathon",
		Timeframe:     core.OneYear,
		DailyActions:  []string{"run 5k", ""},
		WeeklyActions: []string{"long run"},
	}
}

func TestRecordServiceQueuesAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	pub := &fakePublisher{}
	svc := NewRecordService(repo, pub)

	plan := testPlan()
	if err := svc.InsertGoalPlans(ctx, []core.GoalPlanRecord{plan.Record(core.DevUserID, time.Now())}); err != nil {
		t.Fatalf("insert plans: %v", err)
	}
	todos := plan.TodoRecords(core.DevUserID, core.NewDate(2025, 5, 1))
	if err := svc.InsertTodos(ctx, todos); err != nil {
		t.Fatalf("insert todos: %v", err)
	}
	// A retry of the same rows is absorbed by the outbox.
	if err := svc.InsertTodos(ctx, todos); err != nil {
		t.Fatalf("retry todos: %v", err)
	}

	goals, _ := repo.GetPendingRecords(ctx, storage.GoalPlansTable, 10)
	if len(goals) != 1 || goals[0].Key != "plan-1" {
		t.Fatalf("unexpected goal outbox rows: %+v", goals)
	}
	pending, _ := repo.GetPendingRecords(ctx, storage.TodosTable, 10)
	if len(pending) != 2 {
		t.Fatalf("expected 2 queued todos, got %d", len(pending))
	}
	if len(pub.tables) != 3 || pub.tables[0] != storage.GoalPlansTable || len(pub.keys[1]) != 2 {
		t.Fatalf("unexpected publishes: %v %v", pub.tables, pub.keys)
	}
}

func TestRecordServiceToleratesPublishFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewRecordService(repo, &fakePublisher{err: errors.New("broker down")})

	if err := svc.InsertTodos(ctx, testPlan().TodoRecords(core.DevUserID, core.NewDate(2025, 5, 1))); err != nil {
		t.Fatalf("publish failure must not fail the insert: %v", err)
	}
	if n, _ := repo.PendingCount(ctx); n != 2 {
		t.Fatalf("rows should stay queued, pending=%d", n)
	}
}

func TestRecordServiceWithoutPublisher(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewRecordService(repo, nil)
	if err := svc.InsertGoalPlans(ctx, nil); err != nil {
		t.Fatalf("empty insert: %v", err)
	}
	if err := svc.InsertGoalPlans(ctx, []core.GoalPlanRecord{{PlanID: "p"}}); err != nil {
		t.Fatalf("insert without publisher: %v", err)
	}
	if n, _ := repo.PendingCount(ctx); n != 1 {
		t.Fatalf("pending = %d", n)
	}
}
