package memory

import (
	"context"
	"sync"

	"byb/internal/core"
	"byb/internal/records"
)

var _ records.Writer = (*Store)(nil)

// Store keeps rows in insertion order, keyed for idempotent inserts.
type Store struct {
	mu    sync.Mutex
	goals []core.GoalPlanRecord
	todos []core.TodoRecord
	seen  map[string]struct{}
	err   error
}

func New() *Store {
	return &Store{seen: make(map[string]struct{})}
}

func (s *Store) InsertGoalPlans(_ context.Context, rows []core.GoalPlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, r := range rows {
		if s.mark("goal:" + r.PlanID) {
			s.goals = append(s.goals, r)
		}
	}
	return nil
}

func (s *Store) InsertTodos(_ context.Context, rows []core.TodoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, r := range rows {
		if s.mark("todo:" + r.Key) {
			s.todos = append(s.todos, r)
		}
	}
	return nil
}

// Fail makes every following insert return err; nil restores normal behavior.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Store) GoalPlans() []core.GoalPlanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.GoalPlanRecord(nil), s.goals...)
}

func (s *Store) Todos() []core.TodoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TodoRecord(nil), s.todos...)
}

func (s *Store) mark(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
