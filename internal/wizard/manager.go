package wizard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"byb/internal/cache"
	"byb/internal/core"
	"byb/internal/debounce"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/metrics"
)

const (
	DefaultSessionTTL  = 2 * time.Hour
	DefaultMaxSessions = 256
)

type (
	ManagerOptions struct {
		Store         kv.Store
		Committer     *Committer
		TTL           time.Duration
		MaxSessions   int
		AutosaveDelay time.Duration
		Now           func() time.Time
		Logger        *applog.Logger
	}

	// Manager holds live sessions in an LRU cache and keeps a draft of each
	// in the local store, so a session survives eviction and restarts.
	Manager struct {
		store      kv.Store
		committer  *Committer
		sessions   *cache.LRUCache[*entry]
		saver      *debounce.Debouncer
		now        func() time.Time
		logger     *applog.Logger
		structured *applog.StructuredLogger

		loadMu sync.Mutex
	}

	entry struct {
		mu sync.Mutex
		s  *Session
	}
)

func NewManager(opts ManagerOptions) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentWizard)

	m := &Manager{
		store:      opts.Store,
		committer:  opts.Committer,
		sessions:   cache.NewLRUCache[*entry](opts.MaxSessions, opts.TTL),
		now:        opts.Now,
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
	}
	m.saver = debounce.New(opts.AutosaveDelay, func(key string, err error) {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentWizard).Inc()
		m.logger.Error("Draft save failed", applog.FieldKey, key, applog.FieldError, err)
	})
	m.sessions.OnEvict(func(id string, _ *entry) {
		m.logger.Debug("Wizard session evicted from memory", applog.FieldSessionID, id)
		metrics.WizardSessions.Set(float64(m.sessions.Size()))
	})
	return m
}

// Sessions exposes the session cache for periodic expiry sweeps.
func (m *Manager) Sessions() cache.Cleaner {
	return m.sessions
}

// Start opens a new session on the first step.
func (m *Manager) Start(ctx context.Context) View {
	s := NewSession(m.now())
	e := &entry{s: s}
	m.sessions.Set(s.ID, e)
	metrics.WizardSessions.Set(float64(m.sessions.Size()))
	m.scheduleDraft(e)
	m.logger.InfoContext(ctx, "Wizard session started", applog.FieldSessionID, s.ID)
	return s.View()
}

// Get returns the session, reloading its draft when it is not in memory.
func (m *Manager) Get(ctx context.Context, id string) (View, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.View(), nil
}

// Update applies fn to the session and schedules a draft save. The view is
// returned even when fn fails.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) (View, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.s.Step
	if err := fn(e.s); err != nil {
		return e.s.View(), err
	}
	e.s.UpdatedAt = m.now()
	m.scheduleDraft(e)
	if e.s.Step != before {
		m.logger.DebugContext(ctx, "Wizard step changed",
			applog.FieldSessionID, id, "from", before, applog.FieldStep, e.s.Step)
	}
	return e.s.View(), nil
}

func (m *Manager) SetBigGoal(ctx context.Context, id, text string) (View, error) {
	return m.Update(ctx, id, func(s *Session) error { return s.SetBigGoal(text) })
}

func (m *Manager) SetTimeframe(ctx context.Context, id string, tf core.Timeframe) (View, error) {
	return m.Update(ctx, id, func(s *Session) error { return s.SetTimeframe(tf) })
}

func (m *Manager) SetMidpoint(ctx context.Context, id, text string) (View, error) {
	return m.Update(ctx, id, func(s *Session) error { return s.SetMidpoint(text) })
}

func (m *Manager) SetMilestones(ctx context.Context, id string, list []string) (View, error) {
	return m.Update(ctx, id, func(s *Session) error { return s.SetMilestones(list) })
}

func (m *Manager) SetActions(ctx context.Context, id string, freq core.Frequency, list []string) (View, error) {
	return m.Update(ctx, id, func(s *Session) error { return s.SetActions(freq, list) })
}

func (m *Manager) Next(ctx context.Context, id string) (View, error) {
	return m.Update(ctx, id, (*Session).Next)
}

func (m *Manager) Back(ctx context.Context, id string) (View, error) {
	return m.Update(ctx, id, (*Session).Back)
}

// Commit finalizes a session on the finish step. Remote failures are
// reported in the result; the session moves to done regardless.
func (m *Manager) Commit(ctx context.Context, id string) (View, error) {
	return m.commit(ctx, id, false)
}

// RetryCommit re-sends the targets that failed in the last commit.
func (m *Manager) RetryCommit(ctx context.Context, id string) (View, error) {
	return m.commit(ctx, id, true)
}

func (m *Manager) commit(ctx context.Context, id string, retry bool) (View, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	var prev *CommitResult
	switch {
	case retry && (!s.Done() || s.Result == nil || s.Result.OK()):
		return s.View(), ErrNothingToRetry
	case retry:
		prev = s.Result
	case s.Done():
		return s.View(), ErrFinished
	case s.Step != StepFinish:
		return s.View(), ErrNotAtFinish
	}
	if !retry {
		if err := s.Validate(); err != nil {
			s.UpdatedAt = m.now()
			m.scheduleDraft(e)
			return s.View(), err
		}
	}

	res := m.committer.Commit(ctx, s.FinalPlan(), prev)
	s.Result = &res
	s.Step = StepDone
	s.UpdatedAt = m.now()
	m.scheduleDraft(e)
	m.structured.LogCommit(ctx, s.ID, res.PlanID, res.Goal.OK, res.Todos.OK)
	return s.View(), nil
}

// Discard forgets the session and its draft.
func (m *Manager) Discard(ctx context.Context, id string) error {
	if _, err := m.lookup(ctx, id); err != nil {
		return err
	}
	key := kv.DraftKey(id)
	m.saver.Cancel(key)
	m.sessions.Delete(id)
	metrics.WizardSessions.Set(float64(m.sessions.Size()))
	if err := m.store.Delete(ctx, key); err != nil {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentWizard).Inc()
		return &core.PersistenceError{Op: "delete draft", Key: key, Err: err}
	}
	return nil
}

// Flush writes every pending draft now.
func (m *Manager) Flush() error {
	return m.saver.Flush()
}

// Close flushes pending drafts and stops accepting new writes.
func (m *Manager) Close() error {
	return m.saver.Stop()
}

func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	if u, err := uuid.Parse(id); err != nil || u.String() != id {
		return nil, ErrSessionNotFound
	}
	if e, ok := m.sessions.Get(id); ok {
		return e, nil
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if e, ok := m.sessions.Get(id); ok {
		return e, nil
	}

	var s Session
	found, err := kv.GetJSON(ctx, m.store, kv.DraftKey(id), &s)
	switch {
	case err != nil && found:
		m.logger.WarnContext(ctx, "Stored draft is unreadable", applog.FieldSessionID, id, applog.FieldError, err)
		return nil, ErrSessionNotFound
	case err != nil:
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentWizard).Inc()
		return nil, &core.PersistenceError{Op: "load draft", Key: kv.DraftKey(id), Err: err}
	case !found:
		return nil, ErrSessionNotFound
	}
	s.ID = id
	s.normalize()

	e := &entry{s: &s}
	m.sessions.Set(id, e)
	metrics.WizardSessions.Set(float64(m.sessions.Size()))
	m.logger.InfoContext(ctx, "Wizard session restored from draft", applog.FieldSessionID, id, applog.FieldStep, s.Step)
	return e, nil
}

// scheduleDraft queues a save of the session. e.mu must be held or e must
// not yet be shared.
func (m *Manager) scheduleDraft(e *entry) {
	key := kv.DraftKey(e.s.ID)
	m.saver.Schedule(key, func() error {
		e.mu.Lock()
		raw, err := json.Marshal(e.s)
		e.mu.Unlock()
		if err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: key, Err: err}
		}
		if err := m.store.Set(context.Background(), key, raw); err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: key, Err: err}
		}
		return nil
	})
}
