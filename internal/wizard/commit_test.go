package wizard

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"byb/internal/core"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/records/memory"
)

var commitTime = time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)

type fakeLedger struct {
	mu    sync.Mutex
	calls int
	date  core.Date
	texts []string
	err   error
}

func (f *fakeLedger) AddGoalSteps(_ context.Context, date core.Date, texts []string) ([]core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.date = date
	f.texts = append(f.texts, texts...)
	items := make([]core.Item, 0, len(texts))
	for _, t := range core.NonEmpty(texts) {
		items = append(items, core.Item{ID: core.NewID(), Text: t, IsGoalStep: true})
	}
	return items, f.err
}

func testLogger() *applog.Logger {
	var buf bytes.Buffer
	return applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})
}

func samplePlan() core.GoalPlan {
	return core.GoalPlan{
		ID:            "plan-42",
		BigGoal:       "be calmer",
		Timeframe:     core.SixMonths,
		Midpoint:      "daily practice is a habit",
		DailyActions:  []string{"meditate", "journal"},
		WeeklyActions: []string{"review"},
	}
}

func newCommitter(goals, todos *memory.Store, store kv.Store, ledger GoalSteps) *Committer {
	opts := CommitterOptions{
		Store:  store,
		UserID: "not-a-uuid",
		Now:    func() time.Time { return commitTime },
		Logger: testLogger(),
	}
	if goals != nil {
		opts.Goals = goals
	}
	if todos != nil {
		opts.Todos = todos
	}
	if ledger != nil {
		opts.Ledger = ledger
	}
	return NewCommitter(opts)
}

func TestCommitFansOutDailyAndWeekly(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	store := kv.NewMemory()
	led := &fakeLedger{}

	res := newCommitter(remote, remote, store, led).Commit(ctx, samplePlan(), nil)

	if !res.OK() || !res.LedgerAdded || res.LedgerItems != 2 || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	goals := remote.GoalPlans()
	if len(goals) != 1 || goals[0].PlanID != "plan-42" || goals[0].UserID != core.DevUserID {
		t.Fatalf("goal rows: %+v", goals)
	}
	todos := remote.Todos()
	if len(todos) != 3 {
		t.Fatalf("expected 3 todo rows, got %d", len(todos))
	}
	daily, weekly := 0, 0
	for _, r := range todos {
		if !r.BigGoalTask || !r.Rollover || r.Completed {
			t.Fatalf("row flags wrong: %+v", r)
		}
		if r.CreatedAt != core.NewDate(2025, 4, 1) {
			t.Fatalf("created_at = %s", r.CreatedAt)
		}
		switch r.Frequency {
		case core.Daily:
			daily++
		case core.Weekly:
			weekly++
		}
	}
	if daily != 2 || weekly != 1 {
		t.Fatalf("daily=%d weekly=%d", daily, weekly)
	}
	if led.date != core.NewDate(2025, 4, 1) || len(led.texts) != 2 {
		t.Fatalf("ledger got %s %v", led.date, led.texts)
	}
}

func TestCommitWritesLocalBackup(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	c := newCommitter(nil, nil, store, nil)

	res := c.Commit(ctx, samplePlan(), nil)
	if !res.Goal.OK || !res.Goal.LocalOnly || !res.Todos.LocalOnly || !res.Backup.OK {
		t.Fatalf("unexpected result: %+v", res)
	}

	var saved struct {
		ID      string    `json:"id"`
		BigGoal string    `json:"bigGoal"`
		UserID  string    `json:"userId"`
		SavedAt time.Time `json:"savedAt"`
	}
	if ok, err := kv.GetJSON(ctx, store, kv.BigGoalKey, &saved); !ok || err != nil {
		t.Fatalf("backup missing: ok=%v err=%v", ok, err)
	}
	if saved.ID != "plan-42" || saved.UserID != core.DevUserID || !saved.SavedAt.Equal(commitTime) {
		t.Fatalf("unexpected backup: %+v", saved)
	}

	// A second commit of the same plan does not grow the seed.
	c.Commit(ctx, samplePlan(), nil)
	var seed []core.TodoRecord
	if _, err := kv.GetJSON(ctx, store, kv.SeedKey, &seed); err != nil || len(seed) != 3 {
		t.Fatalf("seed = %d rows, err=%v", len(seed), err)
	}
}

func TestCommitFailuresAreWarnings(t *testing.T) {
	ctx := context.Background()
	goals := memory.New()
	goals.Fail(errors.New("insert rejected"))
	todos := memory.New()
	store := kv.NewMemory()
	store.Fail(errors.New("disk full"))

	res := newCommitter(goals, todos, store, nil).Commit(ctx, samplePlan(), nil)
	if res.OK() {
		t.Fatal("expected a failed commit")
	}
	if res.Goal.OK || res.Goal.Error != "insert rejected" {
		t.Fatalf("goal outcome: %+v", res.Goal)
	}
	if !res.Todos.OK || len(todos.Todos()) != 3 {
		t.Fatalf("todo outcome: %+v", res.Todos)
	}
	if res.Backup.OK || res.Backup.Error == "" {
		t.Fatalf("backup outcome: %+v", res.Backup)
	}
}

func TestRetryResendsOnlyFailedTargets(t *testing.T) {
	ctx := context.Background()
	goals := memory.New()
	todos := memory.New()
	todos.Fail(errors.New("timeout"))
	led := &fakeLedger{}
	c := newCommitter(goals, todos, kv.NewMemory(), led)

	first := c.Commit(ctx, samplePlan(), nil)
	if first.Todos.OK || !first.Goal.OK {
		t.Fatalf("unexpected first result: %+v", first)
	}

	todos.Fail(nil)
	second := c.Commit(ctx, samplePlan(), &first)
	if !second.OK() || second.Attempts != 2 || !second.CommittedAt.Equal(first.CommittedAt) {
		t.Fatalf("unexpected retry result: %+v", second)
	}
	if len(goals.GoalPlans()) != 1 || len(todos.Todos()) != 3 {
		t.Fatalf("goals=%d todos=%d", len(goals.GoalPlans()), len(todos.Todos()))
	}
	if led.calls != 1 {
		t.Fatalf("ledger should be filled once, got %d calls", led.calls)
	}
}

func TestLedgerPersistenceFailureStillCounts(t *testing.T) {
	led := &fakeLedger{err: &core.PersistenceError{Op: "save", Err: errors.New("down")}}
	res := newCommitter(nil, nil, kv.NewMemory(), led).Commit(context.Background(), samplePlan(), nil)
	if !res.LedgerAdded || res.LedgerItems != 2 {
		t.Fatalf("unexpected ledger outcome: %+v", res)
	}

	led = &fakeLedger{err: errors.New("boom")}
	res = newCommitter(nil, nil, kv.NewMemory(), led).Commit(context.Background(), samplePlan(), nil)
	if res.LedgerAdded {
		t.Fatal("a non-persistence failure should leave the ledger step pending")
	}
}
