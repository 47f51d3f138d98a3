package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"byb/internal/core"
	"byb/internal/kv"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestPlanner(store kv.Store, c *clock) *Planner {
	return New(store, Options{AutosaveDelay: time.Hour, Now: c.now})
}

func TestEditAndPersist(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	c := &clock{t: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	p := newTestPlanner(store, c)

	if _, err := p.SetGoal(ctx, "close the deal"); err != nil {
		t.Fatalf("set goal: %v", err)
	}
	_, _ = p.SetTask(ctx, 0, "draft proposal")
	_, _ = p.SetTask(ctx, 1, "call client")
	st, _ := p.ToggleTask(ctx, 0)
	if Progress(st) != 50 {
		t.Fatalf("expected 50%% progress, got %d", Progress(st))
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := newTestPlanner(store, c)
	st, err := reloaded.State(ctx)
	if err != nil || st.Goal != "close the deal" || !st.Tasks[0].Done || st.SavedAt == nil {
		t.Fatalf("unexpected reloaded state: %+v err=%v", st, err)
	}
}

func TestDailyReset(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	c := &clock{t: time.Date(2025, 4, 1, 23, 0, 0, 0, time.UTC)}
	p := newTestPlanner(store, c)
	_, _ = p.SetGoal(ctx, "yesterday's goal")
	_ = p.Flush()

	c.t = c.t.Add(2 * time.Hour)
	next := newTestPlanner(store, c)
	st, _ := next.State(ctx)
	if st.Goal != "" || len(st.Tasks) != TaskSlots {
		t.Fatalf("expected reset plan, got %+v", st)
	}
}

func TestTaskIndexValidation(t *testing.T) {
	p := newTestPlanner(kv.NewMemory(), &clock{t: time.Now()})
	if _, err := p.SetTask(context.Background(), 3, "x"); !errors.Is(err, ErrTaskIndex) || !core.IsValidation(err) {
		t.Fatalf("expected index validation error, got %v", err)
	}
	if _, err := p.ToggleTask(context.Background(), -1); !errors.Is(err, ErrTaskIndex) {
		t.Fatalf("expected index validation error, got %v", err)
	}
}

func TestResetRemovesStoredPlan(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	p := newTestPlanner(store, &clock{t: time.Now()})
	_, _ = p.SetGoal(ctx, "x")
	_ = p.Flush()
	_, _ = p.SetGoal(ctx, "pending")

	if err := p.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	_ = p.Flush()
	if _, ok, _ := store.Get(ctx, kv.TodayKey); ok {
		t.Fatal("plan still stored after reset")
	}
}

func TestProgressAndPicks(t *testing.T) {
	st := State{Goal: "win", Tasks: []Task{{Text: "a", Done: true}, {Text: " "}, {Text: "c"}}}
	if got := Progress(st); got != 50 {
		t.Fatalf("progress = %d", got)
	}
	if got := Progress(State{Tasks: make([]Task, 3)}); got != 0 {
		t.Fatalf("empty progress = %d", got)
	}
	picks := Picks(st)
	if len(picks) != 3 || picks[0] != "win" || picks[2] != "c" {
		t.Fatalf("unexpected picks %v", picks)
	}
	full := State{Goal: "g", Tasks: []Task{{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"}}}
	if len(Picks(full)) != 4 {
		t.Fatal("picks not capped at 4")
	}
}

func TestCorruptPlanStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	_ = store.Set(ctx, kv.TodayKey, []byte("nope"))
	st, err := newTestPlanner(store, &clock{t: time.Now()}).State(ctx)
	if err != nil || st.Goal != "" || len(st.Tasks) != TaskSlots {
		t.Fatalf("unexpected state %+v err=%v", st, err)
	}
}
