package memory

import (
	"context"
	"errors"
	"testing"

	"byb/internal/core"
)

func TestInsertIsIdempotentByKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	goal := core.GoalPlanRecord{PlanID: "p1", BigGoal: "g"}
	todos := []core.TodoRecord{{Key: "p1:daily:0", Task: "a"}, {Key: "p1:daily:1", Task: "b"}}

	for i := 0; i < 2; i++ {
		if err := s.InsertGoalPlans(ctx, []core.GoalPlanRecord{goal}); err != nil {
			t.Fatalf("insert goal: %v", err)
		}
		if err := s.InsertTodos(ctx, todos); err != nil {
			t.Fatalf("insert todos: %v", err)
		}
	}
	if len(s.GoalPlans()) != 1 || len(s.Todos()) != 2 {
		t.Fatalf("duplicates stored: goals=%d todos=%d", len(s.GoalPlans()), len(s.Todos()))
	}
}

func TestFail(t *testing.T) {
	s := New()
	boom := errors.New("offline")
	s.Fail(boom)
	if err := s.InsertTodos(context.Background(), []core.TodoRecord{{Key: "k"}}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	s.Fail(nil)
	if err := s.InsertTodos(context.Background(), []core.TodoRecord{{Key: "k"}}); err != nil || len(s.Todos()) != 1 {
		t.Fatalf("failed insert must not mark the key: err=%v todos=%d", err, len(s.Todos()))
	}
}
