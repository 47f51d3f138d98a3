// Package ledger keeps the per-day categorized to-do lists, their one-time
// rollover into a newly opened day, and the trailing completion stats.
//
// The ledger holds a working copy in memory. Mutations apply to it at once
// and schedule a debounced write of the affected keys; a store that fails
// never loses the in-memory state, it only surfaces a *core.PersistenceError.
package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"byb/internal/core"
	"byb/internal/debounce"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/metrics"
)

const (
	DefaultRetentionDays = 60
	// MaxImportPicks caps how many planner picks one import adds.
	MaxImportPicks = 4
)

type (
	Options struct {
		AutosaveDelay time.Duration
		RetentionDays int
		Logger        *applog.Logger
	}

	// View is a day together with its derived counters.
	View struct {
		Day     core.LedgerDay `json:"day"`
		Total   int            `json:"total"`
		Done    int            `json:"done"`
		Percent int            `json:"percent"`
		Stats   core.DayStats  `json:"stats"`
		Week    core.Totals    `json:"week"`
	}

	Ledger struct {
		store     kv.Store
		saver     *debounce.Debouncer
		retention int
		logger    *applog.Logger

		mu   sync.Mutex
		days map[string]*core.LedgerDay

		// unloaded holds the days whose cached copy was built without a
		// successful read of the store. They are reconciled before use.
		unloaded     map[string]core.Date
		stats        core.Stats
		statsLoaded  bool
		statsPending []statsDelta
	}

	statsDelta struct {
		date      core.Date
		completed int
		goalStep  int
	}
)

func New(store kv.Store, opts Options) *Ledger {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentLedger)

	l := &Ledger{
		store:     store,
		retention: opts.RetentionDays,
		logger:    logger,
		days:      make(map[string]*core.LedgerDay),
		unloaded:  make(map[string]core.Date),
		stats:     core.Stats{},
	}
	l.saver = debounce.New(opts.AutosaveDelay, func(key string, err error) {
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentLedger).Inc()
		l.logger.Error("Autosave failed", applog.FieldKey, key, applog.FieldError, err)
	})
	return l
}

// Open returns the day for date. A day never seen before is created by
// carrying over the unfinished items of the previous day and is persisted
// before Open returns, so the rollover happens at most once per date.
func (l *Ledger) Open(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	if err := validDate(date); err != nil {
		return core.LedgerDay{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	return day.Clone(), err
}

// View returns the day with its counters and the trailing week totals.
func (l *Ledger) View(ctx context.Context, date core.Date) (View, error) {
	if err := validDate(date); err != nil {
		return View{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	if serr := l.loadStats(ctx); err == nil {
		err = serr
	}
	total, done := day.Counts()
	return View{
		Day:     day.Clone(),
		Total:   total,
		Done:    done,
		Percent: core.Percent(done, total),
		Stats:   l.stats[date.String()],
		Week:    l.stats.Window(date),
	}, err
}

// AddItem appends a new item to category of date.
func (l *Ledger) AddItem(ctx context.Context, date core.Date, category core.Category, text string, isGoalStep bool) (core.Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.Item{}, &core.ValidationError{Field: "text", Err: core.ErrEmptyText}
	}
	cat, err := core.ParseCategory(string(category))
	if err != nil {
		return core.Item{}, err
	}
	if err := validDate(date); err != nil {
		return core.Item{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	item := core.Item{ID: core.NewID(), Text: text, IsGoalStep: isGoalStep}
	col := day.Column(cat)
	col.Items = append(col.Items, item)
	l.scheduleDay(date)
	metrics.LedgerMutations.WithLabelValues("add").Inc()
	return item, err
}

// ToggleDone flips the done flag of an item and adjusts that day's stats.
// It reports false, with no change, when the item does not exist.
func (l *Ledger) ToggleDone(ctx context.Context, date core.Date, category core.Category, itemID string) (bool, error) {
	cat, err := core.ParseCategory(string(category))
	if err != nil {
		return false, err
	}
	if err := validDate(date); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	col := day.Column(cat)
	idx := indexOf(col.Items, itemID)
	if idx < 0 {
		return false, err
	}
	it := &col.Items[idx]
	it.Done = !it.Done
	delta := -1
	if it.Done {
		delta = 1
	}
	goal := 0
	if it.IsGoalStep {
		goal = delta
	}
	l.scheduleDay(date)
	if serr := l.adjustStats(ctx, date, delta, goal); err == nil {
		err = serr
	}
	metrics.LedgerMutations.WithLabelValues("toggle").Inc()
	return true, err
}

// RemoveItem deletes an item. Removing a done item takes its completion back
// out of the stats. It reports false when the item does not exist.
func (l *Ledger) RemoveItem(ctx context.Context, date core.Date, category core.Category, itemID string) (bool, error) {
	cat, err := core.ParseCategory(string(category))
	if err != nil {
		return false, err
	}
	if err := validDate(date); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	col := day.Column(cat)
	idx := indexOf(col.Items, itemID)
	if idx < 0 {
		return false, err
	}
	removed := col.Items[idx]
	col.Items = append(col.Items[:idx], col.Items[idx+1:]...)
	l.scheduleDay(date)
	if removed.Done {
		goal := 0
		if removed.IsGoalStep {
			goal = -1
		}
		if serr := l.adjustStats(ctx, date, -1, goal); err == nil {
			err = serr
		}
	}
	metrics.LedgerMutations.WithLabelValues("remove").Inc()
	return true, err
}

// ClearCompleted removes every done item of date. Stats keep the completions.
func (l *Ledger) ClearCompleted(ctx context.Context, date core.Date) (int, error) {
	if err := validDate(date); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	removed := 0
	for i := range day.Columns {
		kept := day.Columns[i].Items[:0]
		for _, it := range day.Columns[i].Items {
			if it.Done {
				removed++
				continue
			}
			kept = append(kept, it)
		}
		day.Columns[i].Items = kept
	}
	if removed > 0 {
		l.scheduleDay(date)
	}
	metrics.LedgerMutations.WithLabelValues("clear").Inc()
	return removed, err
}

// WeeklyTotals sums the stats of the 7 calendar days ending at date.
func (l *Ledger) WeeklyTotals(ctx context.Context, date core.Date) (core.Totals, error) {
	if err := validDate(date); err != nil {
		return core.Totals{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.loadStats(ctx)
	return l.stats.Window(date), err
}

// ImportFromGoalPlan appends up to MaxImportPicks non-empty picks to the
// Business column of date as goal steps.
func (l *Ledger) ImportFromGoalPlan(ctx context.Context, date core.Date, picks []string) ([]core.Item, error) {
	picks = core.NonEmpty(picks)
	if len(picks) > MaxImportPicks {
		picks = picks[:MaxImportPicks]
	}
	return l.addGoalSteps(ctx, date, picks, "import")
}

// AddGoalSteps appends every non-empty text to the Business column of date
// as goal steps.
func (l *Ledger) AddGoalSteps(ctx context.Context, date core.Date, texts []string) ([]core.Item, error) {
	return l.addGoalSteps(ctx, date, core.NonEmpty(texts), "goal_steps")
}

func (l *Ledger) addGoalSteps(ctx context.Context, date core.Date, texts []string, op string) ([]core.Item, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.open(ctx, date)
	col := day.Column(core.Business)
	added := make([]core.Item, 0, len(texts))
	for _, text := range texts {
		it := core.Item{ID: core.NewID(), Text: text, IsGoalStep: true}
		col.Items = append(col.Items, it)
		added = append(added, it)
	}
	l.scheduleDay(date)
	metrics.LedgerMutations.WithLabelValues(op).Inc()
	return added, err
}

// Flush writes every pending change now.
func (l *Ledger) Flush() error {
	return l.saver.Flush()
}

// Close flushes pending changes and stops accepting new writes.
func (l *Ledger) Close() error {
	return l.saver.Stop()
}

// open returns the working copy of date, loading or creating it. l.mu must be held.
//
// When the store cannot be read the returned day is a placeholder that keeps
// accepting changes. It is merged with the stored copy on the first read that
// succeeds, and it is never written before that.
func (l *Ledger) open(ctx context.Context, date core.Date) (*core.LedgerDay, error) {
	key := kv.TodosKey(date)
	if day, ok := l.days[key]; ok {
		if _, stale := l.unloaded[key]; !stale {
			return day, nil
		}
		save, err := l.reconcile(ctx, date)
		if err != nil {
			return day, err
		}
		if save {
			l.scheduleDay(date)
		}
		return day, nil
	}

	var stored core.LedgerDay
	found, err := kv.GetJSON(ctx, l.store, key, &stored)
	switch {
	case err != nil && found:
		l.logger.WarnContext(ctx, "Stored day is unreadable, starting it empty",
			applog.FieldDate, date.String(), applog.FieldError, err)
		day := core.EmptyDay(date)
		l.days[key] = &day
		return &day, nil
	case err != nil:
		l.failed()
		day := core.EmptyDay(date)
		l.days[key] = &day
		l.unloaded[key] = date
		return &day, &core.PersistenceError{Op: applog.OpOpen, Key: key, Err: err}
	case found:
		stored.Date = date
		day := stored.Normalize()
		l.days[key] = &day
		return &day, nil
	}

	day, err := l.rollover(ctx, date)
	l.days[key] = &day
	if err != nil {
		l.unloaded[key] = date
		return &day, err
	}
	if err := l.writeDay(ctx, date, day); err != nil {
		return &day, err
	}
	return &day, nil
}

// reconcile reads the stored copy of an unloaded day and folds the items
// added to the placeholder into it. It reports whether the result still has
// to be written. l.mu must be held.
func (l *Ledger) reconcile(ctx context.Context, date core.Date) (bool, error) {
	key := kv.TodosKey(date)
	var stored core.LedgerDay
	found, err := kv.GetJSON(ctx, l.store, key, &stored)
	base := core.EmptyDay(date)
	switch {
	case err != nil && found:
		l.logger.WarnContext(ctx, "Stored day is unreadable, starting it empty",
			applog.FieldDate, date.String(), applog.FieldError, err)
	case err != nil:
		l.failed()
		return false, &core.PersistenceError{Op: applog.OpOpen, Key: key, Err: err}
	case found:
		stored.Date = date
		base = stored.Normalize()
	default:
		rolled, rerr := l.rollover(ctx, date)
		if rerr != nil {
			return false, rerr
		}
		base = rolled
	}

	day := l.days[key]
	merged := mergeItems(&base, *day)
	*day = base
	delete(l.unloaded, key)
	return merged > 0 || !found, nil
}

// mergeItems appends to dst the items of src it does not hold yet.
func mergeItems(dst *core.LedgerDay, src core.LedgerDay) int {
	n := 0
	for _, col := range src.Columns {
		into := dst.Column(col.Category)
		if into == nil {
			continue
		}
		for _, it := range col.Items {
			if indexOf(into.Items, it.ID) >= 0 {
				continue
			}
			into.Items = append(into.Items, it)
			n++
		}
	}
	return n
}

// rollover builds a fresh day holding copies of the unfinished items of the
// previous day. l.mu must be held.
func (l *Ledger) rollover(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	day := core.EmptyDay(date)
	prevKey := kv.TodosKey(date.Prev())

	var prev core.LedgerDay
	_, prevStale := l.unloaded[prevKey]
	if cached, ok := l.days[prevKey]; ok && !prevStale {
		prev = *cached
	} else {
		found, err := kv.GetJSON(ctx, l.store, prevKey, &prev)
		if err != nil && !found {
			l.failed()
			return day, &core.PersistenceError{Op: applog.OpRollover, Key: prevKey, Err: err}
		}
		if err != nil || !found {
			return day, nil
		}
		prev = prev.Normalize()
	}

	rolled := 0
	for _, col := range prev.Columns {
		dst := day.Column(col.Category)
		if dst == nil {
			continue
		}
		for _, it := range col.Unfinished() {
			dst.Items = append(dst.Items, core.Item{
				ID:          core.NewID(),
				Text:        it.Text,
				IsGoalStep:  it.IsGoalStep,
				Rolled:      true,
				CarriedFrom: it.ID,
			})
			rolled++
		}
	}
	if rolled > 0 {
		metrics.Rollovers.Add(float64(rolled))
		l.logger.InfoContext(ctx, "Rolled unfinished items into new day",
			applog.FieldDate, date.String(), applog.FieldCount, rolled)
	}
	return day, nil
}

func (l *Ledger) writeDay(ctx context.Context, date core.Date, day core.LedgerDay) error {
	key := kv.TodosKey(date)
	if err := kv.SetJSON(ctx, l.store, key, day); err != nil {
		l.failed()
		return &core.PersistenceError{Op: applog.OpSave, Key: key, Err: err}
	}
	return nil
}

func (l *Ledger) scheduleDay(date core.Date) {
	key := kv.TodosKey(date)
	l.saver.Schedule(key, func() error {
		l.mu.Lock()
		day, ok := l.days[key]
		var raw []byte
		var err error
		if _, stale := l.unloaded[key]; ok && stale {
			if _, rerr := l.reconcile(context.Background(), date); rerr != nil {
				l.mu.Unlock()
				return rerr
			}
		}
		if ok {
			raw, err = json.Marshal(day)
		}
		l.mu.Unlock()
		if !ok {
			return nil
		}
		if err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: key, Err: err}
		}
		if err := l.store.Set(context.Background(), key, raw); err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: key, Err: err}
		}
		return nil
	})
}

// loadStats reads the stats until one read succeeds. Adjustments made while
// the store was unreadable are kept aside and replayed over the stored
// history once it loads. l.mu must be held.
func (l *Ledger) loadStats(ctx context.Context) error {
	if l.statsLoaded {
		return nil
	}
	stored := core.Stats{}
	found, err := kv.GetJSON(ctx, l.store, kv.StatsKey, &stored)
	switch {
	case err != nil && found:
		l.logger.WarnContext(ctx, "Stored stats are unreadable, starting empty", applog.FieldError, err)
		stored = core.Stats{}
	case err != nil:
		l.failed()
		return &core.PersistenceError{Op: "load stats", Key: kv.StatsKey, Err: err}
	}
	if stored == nil {
		stored = core.Stats{}
	}
	for _, d := range l.statsPending {
		stored.Adjust(d.date, d.completed, d.goalStep)
		stored.Prune(d.date, l.retention)
	}
	l.stats = stored
	l.statsPending = nil
	l.statsLoaded = true
	return nil
}

// adjustStats applies a completion delta to date and prunes entries older
// than the retention window relative to date. l.mu must be held.
func (l *Ledger) adjustStats(ctx context.Context, date core.Date, completed, goalStep int) error {
	err := l.loadStats(ctx)
	if !l.statsLoaded {
		l.statsPending = append(l.statsPending, statsDelta{date: date, completed: completed, goalStep: goalStep})
	}
	l.stats.Adjust(date, completed, goalStep)
	l.stats.Prune(date, l.retention)
	l.saver.Schedule(kv.StatsKey, func() error {
		l.mu.Lock()
		if lerr := l.loadStats(context.Background()); lerr != nil {
			l.mu.Unlock()
			return lerr
		}
		raw, merr := json.Marshal(l.stats)
		l.mu.Unlock()
		if merr != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: kv.StatsKey, Err: merr}
		}
		if err := l.store.Set(context.Background(), kv.StatsKey, raw); err != nil {
			return &core.PersistenceError{Op: applog.OpSave, Key: kv.StatsKey, Err: err}
		}
		return nil
	})
	return err
}

func (l *Ledger) failed() {
	metrics.PersistenceErrors.WithLabelValues(applog.ComponentLedger).Inc()
}

func indexOf(items []core.Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func validDate(d core.Date) error {
	if d.Validate() != nil {
		return &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
	}
	return nil
}
