package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"byb/internal/core"
	"byb/internal/kv"
	"byb/internal/records/memory"
)

func newTestManager(store kv.Store, c *Committer) *Manager {
	return NewManager(ManagerOptions{
		Store:         store,
		Committer:     c,
		AutosaveDelay: time.Hour,
		Logger:        testLogger(),
	})
}

func walkToFinish(t *testing.T, m *Manager, id string) {
	t.Helper()
	ctx := context.Background()
	ok := func(_ View, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("walk to finish: %v", err)
		}
	}
	ok(m.SetBigGoal(ctx, id, "ship my side project"))
	ok(m.Next(ctx, id))
	ok(m.SetTimeframe(ctx, id, core.TwoYears))
	ok(m.SetMilestones(ctx, id, []string{"first paying user"}))
	ok(m.Next(ctx, id))
	ok(m.SetActions(ctx, id, core.Monthly, []string{"release"}))
	ok(m.Next(ctx, id))
	ok(m.SetActions(ctx, id, core.Weekly, []string{"demo"}))
	ok(m.Next(ctx, id))
	ok(m.SetActions(ctx, id, core.Daily, []string{"commit code", "answer email"}))
	ok(m.Next(ctx, id))
	v, _ := m.Get(ctx, id)
	if v.Step != StepFinish {
		t.Fatalf("expected finish, got %s", v.Step)
	}
}

func TestManagerCommitAndRetry(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	goals := memory.New()
	goals.Fail(errors.New("unavailable"))
	todos := memory.New()
	m := newTestManager(store, newCommitter(goals, todos, store, nil))

	v := m.Start(ctx)
	if _, err := m.Commit(ctx, v.ID); !errors.Is(err, ErrNotAtFinish) {
		t.Fatalf("early commit: %v", err)
	}
	if _, err := m.RetryCommit(ctx, v.ID); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("early retry: %v", err)
	}
	walkToFinish(t, m, v.ID)

	done, err := m.Commit(ctx, v.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if done.Step != StepDone || done.Result == nil || done.Result.Goal.OK || !done.Result.Todos.OK {
		t.Fatalf("unexpected commit view: %+v", done)
	}
	if done.Result.PlanID != v.ID {
		t.Fatalf("plan id %q should equal session id %q", done.Result.PlanID, v.ID)
	}
	if _, err := m.Commit(ctx, v.ID); !errors.Is(err, ErrFinished) {
		t.Fatalf("second commit: %v", err)
	}
	if _, err := m.Back(ctx, v.ID); !errors.Is(err, ErrFinished) {
		t.Fatalf("back after done: %v", err)
	}

	goals.Fail(nil)
	retried, err := m.RetryCommit(ctx, v.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retried.Result.OK() || retried.Result.Attempts != 2 {
		t.Fatalf("unexpected retry result: %+v", retried.Result)
	}
	if len(goals.GoalPlans()) != 1 || len(todos.Todos()) != 3 {
		t.Fatalf("goals=%d todos=%d", len(goals.GoalPlans()), len(todos.Todos()))
	}
	if got := goals.GoalPlans()[0].YearlyMilestones; len(got) != 1 || got[0] != "first paying user" {
		t.Fatalf("milestones = %v", got)
	}
	if _, err := m.RetryCommit(ctx, v.ID); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("retry after success: %v", err)
	}
}

func TestManagerRestoresDraft(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	m := newTestManager(store, newCommitter(nil, nil, store, nil))

	v := m.Start(ctx)
	if _, err := m.SetBigGoal(ctx, v.ID, "write a novel"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Next(ctx, v.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := store.Get(ctx, kv.DraftKey(v.ID)); !ok {
		t.Fatal("draft not written")
	}

	fresh := newTestManager(store, newCommitter(nil, nil, store, nil))
	got, err := fresh.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.Step != StepTimeframe || got.Plan.BigGoal != "write a novel" {
		t.Fatalf("unexpected restored view: %+v", got)
	}

	if err := fresh.Discard(ctx, v.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok, _ := store.Get(ctx, kv.DraftKey(v.ID)); ok {
		t.Fatal("draft should be deleted")
	}
	if _, err := fresh.Get(ctx, v.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManagerUnknownAndUnreadableSessions(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	m := newTestManager(store, newCommitter(nil, nil, store, nil))

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing: %v", err)
	}
	broken := core.NewID()
	_ = store.Set(ctx, kv.DraftKey(broken), []byte("{"))
	if _, err := m.Next(ctx, broken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("broken draft: %v", err)
	}

	store.Fail(errors.New("io error"))
	if _, err := m.Get(ctx, core.NewID()); !core.IsPersistence(err) {
		t.Fatalf("store failure should surface as persistence error, got %v", err)
	}
}

func TestManagerRejectsMalformedSessionIDs(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	m := newTestManager(store, newCommitter(nil, nil, store, nil))
	store.Fail(errors.New("io error"))

	id := core.NewID()
	for _, bad := range []string{"", "../../x", "a:b", "{" + id + "}", "urn:uuid:" + id, id + "/.."} {
		if _, err := m.Get(ctx, bad); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Get(%q) = %v, want ErrSessionNotFound", bad, err)
		}
	}
	if err := m.Discard(ctx, "../../x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("discard: %v", err)
	}
}

func TestCommitRevalidatesPlan(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	goals := memory.New()
	todos := memory.New()
	m := newTestManager(store, newCommitter(goals, todos, store, nil))

	v := m.Start(ctx)
	walkToFinish(t, m, v.ID)
	if _, err := m.SetBigGoal(ctx, v.ID, "   "); err != nil {
		t.Fatalf("set big goal: %v", err)
	}
	if _, err := m.SetActions(ctx, v.ID, core.Daily, nil); err != nil {
		t.Fatalf("set daily: %v", err)
	}

	got, err := m.Commit(ctx, v.ID)
	if !core.IsValidation(err) || !errors.Is(err, ErrStepIncomplete) {
		t.Fatalf("expected incomplete step, got %v", err)
	}
	if got.Step != StepBigGoal || got.Result != nil {
		t.Fatalf("cursor should return to the big goal: %+v", got)
	}
	if len(goals.GoalPlans()) != 0 || len(todos.Todos()) != 0 {
		t.Fatalf("nothing should be written: goals=%d todos=%d", len(goals.GoalPlans()), len(todos.Todos()))
	}
}

func TestManagerValidationKeepsView(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(kv.NewMemory(), newCommitter(nil, nil, kv.NewMemory(), nil))
	v := m.Start(ctx)
	got, err := m.Next(ctx, v.ID)
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got.ID != v.ID || got.Step != StepBigGoal {
		t.Fatalf("view not returned with error: %+v", got)
	}
}
