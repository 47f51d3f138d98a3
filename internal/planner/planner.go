// Package planner keeps today's single big goal and its three micro-tasks.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"byb/internal/core"
	"byb/internal/debounce"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/metrics"
)

// TaskSlots is the fixed number of micro-tasks.
const TaskSlots = 3

var ErrTaskIndex = errors.New("task index out of range")

type (
	Task struct {
		Text string `json:"text"`
		Done bool   `json:"done"`
	}

	State struct {
		Goal    string     `json:"goal"`
		Tasks   []Task     `json:"tasks"`
		SavedAt *time.Time `json:"savedAt"`
	}

	Options struct {
		AutosaveDelay time.Duration
		Now           func() time.Time
		Logger        *applog.Logger
	}

	Planner struct {
		store  kv.Store
		saver  *debounce.Debouncer
		now    func() time.Time
		logger *applog.Logger

		mu     sync.Mutex
		state  State
		loaded bool
	}
)

func emptyState() State {
	return State{Tasks: make([]Task, TaskSlots)}
}

func New(store kv.Store, opts Options) *Planner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	p := &Planner{
		store:  store,
		now:    opts.Now,
		logger: logger.WithComponent(applog.ComponentPlanner),
		state:  emptyState(),
	}
	p.saver = debounce.New(opts.AutosaveDelay, func(key string, err error) {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentPlanner).Inc()
		p.logger.Error("Autosave failed", applog.FieldKey, key, applog.FieldError, err)
	})
	return p
}

// State returns today's plan. A plan saved on an earlier day is discarded.
func (p *Planner) State(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.load(ctx)
	return p.snapshot(), err
}

func (p *Planner) SetGoal(ctx context.Context, goal string) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.load(ctx)
	p.state.Goal = goal
	p.schedule()
	return p.snapshot(), err
}

func (p *Planner) SetTask(ctx context.Context, index int, text string) (State, error) {
	if index < 0 || index >= TaskSlots {
		return State{}, &core.ValidationError{Field: "index", Err: ErrTaskIndex}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.load(ctx)
	p.state.Tasks[index].Text = text
	p.schedule()
	return p.snapshot(), err
}

func (p *Planner) ToggleTask(ctx context.Context, index int) (State, error) {
	if index < 0 || index >= TaskSlots {
		return State{}, &core.ValidationError{Field: "index", Err: ErrTaskIndex}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.load(ctx)
	p.state.Tasks[index].Done = !p.state.Tasks[index].Done
	p.schedule()
	return p.snapshot(), err
}

// Reset clears today's plan and removes it from the store.
func (p *Planner) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saver.Cancel(kv.TodayKey)
	p.state = emptyState()
	p.loaded = true
	if err := p.store.Delete(ctx, kv.TodayKey); err != nil {
		return &core.PersistenceError{Op: "reset", Key: kv.TodayKey, Err: err}
	}
	return nil
}

// Picks returns today's plan as ledger items to import.
func (p *Planner) Picks(ctx context.Context) ([]string, error) {
	st, err := p.State(ctx)
	return Picks(st), err
}

func (p *Planner) Flush() error {
	return p.saver.Flush()
}

func (p *Planner) Close() error {
	return p.saver.Stop()
}

// Progress is the share of non-empty tasks that are done, in percent.
func Progress(st State) int {
	total, done := 0, 0
	for _, t := range st.Tasks {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		total++
		if t.Done {
			done++
		}
	}
	if total == 0 {
		total = 1
	}
	return core.Percent(done, total)
}

// Picks returns the goal followed by the task texts, skipping blanks, at
// most four entries.
func Picks(st State) []string {
	texts := []string{st.Goal}
	for _, t := range st.Tasks {
		texts = append(texts, t.Text)
	}
	picks := core.NonEmpty(texts)
	if len(picks) > 4 {
		picks = picks[:4]
	}
	return picks
}

// load reads the stored plan once. p.mu must be held.
func (p *Planner) load(ctx context.Context) error {
	if p.loaded {
		p.resetIfStale()
		return nil
	}
	var st State
	found, err := kv.GetJSON(ctx, p.store, kv.TodayKey, &st)
	if err != nil && !found {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentPlanner).Inc()
		return &core.PersistenceError{Op: "load", Key: kv.TodayKey, Err: err}
	}
	p.loaded = true
	if err != nil {
		p.logger.WarnContext(ctx, "Stored plan is unreadable, starting empty", applog.FieldError, err)
		return nil
	}
	if found {
		st.Tasks = normalizeTasks(st.Tasks)
		p.state = st
	}
	p.resetIfStale()
	return nil
}

func (p *Planner) resetIfStale() {
	if p.state.SavedAt == nil {
		return
	}
	now := p.now()
	if core.DateOf(p.state.SavedAt.In(now.Location())) != core.DateOf(now) {
		p.state = emptyState()
	}
}

func (p *Planner) schedule() {
	p.saver.Schedule(kv.TodayKey, func() error {
		p.mu.Lock()
		saved := p.now()
		p.state.SavedAt = &saved
		raw, err := json.Marshal(p.state)
		p.mu.Unlock()
		if err != nil {
			return err
		}
		if err := p.store.Set(context.Background(), kv.TodayKey, raw); err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: kv.TodayKey, Err: err}
		}
		return nil
	})
}

func (p *Planner) snapshot() State {
	st := p.state
	st.Tasks = append([]Task(nil), p.state.Tasks...)
	if p.state.SavedAt != nil {
		t := *p.state.SavedAt
		st.SavedAt = &t
	}
	return st
}

func normalizeTasks(in []Task) []Task {
	out := make([]Task, TaskSlots)
	copy(out, in)
	return out
}
