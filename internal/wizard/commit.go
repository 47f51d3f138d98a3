package wizard

import (
	"context"
	"errors"
	"time"

	"byb/internal/core"
	"byb/internal/kv"
	applog "byb/internal/log"
	"byb/internal/metrics"
	"byb/internal/records"

	"golang.org/x/sync/errgroup"
)

// DefaultCommitTimeout bounds each remote insert of a commit.
const DefaultCommitTimeout = 15 * time.Second

// Commit targets, used as metric labels.
const (
	TargetGoal   = "goal"
	TargetTodos  = "todos"
	TargetBackup = "backup"
	TargetLedger = "ledger"
)

type (
	// GoalSteps receives the daily actions as goal-step items of a day.
	GoalSteps interface {
		AddGoalSteps(ctx context.Context, date core.Date, texts []string) ([]core.Item, error)
	}

	CommitterOptions struct {
		Goals records.GoalWriter
		Todos records.TodoWriter
		// Store receives the local backup of the plan and the task seed.
		Store kv.Store
		// Ledger, when set, gets the daily actions added to today's day.
		Ledger  GoalSteps
		UserID  string
		Timeout time.Duration
		Now     func() time.Time
		Logger  *applog.Logger
	}

	// Outcome is the best-effort result of one commit target.
	Outcome struct {
		OK        bool   `json:"ok"`
		LocalOnly bool   `json:"localOnly,omitempty"`
		Error     string `json:"error,omitempty"`
		Rows      int    `json:"rows"`
	}

	// CommitResult collects the outcome of every target. A failed target is
	// a warning; the commit as a whole never fails.
	CommitResult struct {
		PlanID      string    `json:"planId"`
		Goal        Outcome   `json:"goal"`
		Todos       Outcome   `json:"todos"`
		Backup      Outcome   `json:"backup"`
		LedgerItems int       `json:"ledgerItems"`
		LedgerAdded bool      `json:"ledgerAdded"`
		Attempts    int       `json:"attempts"`
		CommittedAt time.Time `json:"committedAt"`
	}

	Committer struct {
		goals   records.GoalWriter
		todos   records.TodoWriter
		store   kv.Store
		ledger  GoalSteps
		userID  string
		timeout time.Duration
		now     func() time.Time
		logger  *applog.Logger
	}

	backup struct {
		core.GoalPlan
		UserID  string    `json:"userId"`
		SavedAt time.Time `json:"savedAt"`
	}
)

// OK reports whether every remote and local write succeeded.
func (r CommitResult) OK() bool {
	return r.Goal.OK && r.Todos.OK && r.Backup.OK
}

func NewCommitter(opts CommitterOptions) *Committer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommitTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Committer{
		goals:   opts.Goals,
		todos:   opts.Todos,
		store:   opts.Store,
		ledger:  opts.Ledger,
		userID:  core.EnsureUserID(opts.UserID),
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  logger.WithComponent(applog.ComponentWizard),
	}
}

// Commit writes plan to the goal store, its daily and weekly actions to the
// to-do store, a backup to the local store and, if configured, the daily
// actions to today's ledger. The targets run concurrently and independently.
//
// With prev set, only targets that did not succeed in prev are attempted
// again, with the same rows, so idempotent stores see no duplicates.
func (c *Committer) Commit(ctx context.Context, plan core.GoalPlan, prev *CommitResult) CommitResult {
	res := CommitResult{PlanID: plan.ID, CommittedAt: c.now()}
	if prev != nil {
		res = *prev
	}
	res.Attempts++

	goalRows := []core.GoalPlanRecord{plan.Record(c.userID, res.CommittedAt)}
	todoRows := plan.TodoRecords(c.userID, core.DateOf(res.CommittedAt))

	var g errgroup.Group
	if prev == nil || !prev.Goal.OK {
		g.Go(func() error {
			res.Goal = c.insert(ctx, TargetGoal, c.goals != nil, len(goalRows), func(ctx context.Context) error {
				return c.goals.InsertGoalPlans(ctx, goalRows)
			})
			return nil
		})
	}
	if prev == nil || !prev.Todos.OK {
		g.Go(func() error {
			res.Todos = c.insert(ctx, TargetTodos, c.todos != nil, len(todoRows), func(ctx context.Context) error {
				return c.todos.InsertTodos(ctx, todoRows)
			})
			return nil
		})
	}
	if prev == nil || !prev.Backup.OK {
		g.Go(func() error {
			res.Backup = c.backup(ctx, plan, todoRows, res.CommittedAt)
			return nil
		})
	}
	if c.ledger != nil && (prev == nil || !prev.LedgerAdded) {
		g.Go(func() error {
			res.LedgerItems, res.LedgerAdded = c.addToLedger(ctx, plan, res.CommittedAt)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.InfoContext(ctx, "Goal plan committed",
		applog.FieldPlanID, plan.ID,
		"attempt", res.Attempts,
		"goal_ok", res.Goal.OK,
		"todos_ok", res.Todos.OK,
		"backup_ok", res.Backup.OK,
		"ledger_items", res.LedgerItems)
	return res
}

func (c *Committer) insert(ctx context.Context, target string, configured bool, rows int, fn func(context.Context) error) Outcome {
	if !configured {
		metrics.CommitResults.WithLabelValues(target, metrics.ResultLocal).Inc()
		return Outcome{OK: true, LocalOnly: true, Rows: rows}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.CommitResults.WithLabelValues(target, metrics.ResultError).Inc()
		c.logger.WarnContext(ctx, "Commit target failed",
			applog.FieldTarget, target, applog.FieldError, err)
		return Outcome{Error: err.Error(), Rows: rows}
	}
	metrics.CommitResults.WithLabelValues(target, metrics.ResultOK).Inc()
	return Outcome{OK: true, Rows: rows}
}

// backup stores the plan under the big goal key and appends the to-do rows
// not yet present to the seed list.
func (c *Committer) backup(ctx context.Context, plan core.GoalPlan, rows []core.TodoRecord, savedAt time.Time) Outcome {
	if c.store == nil {
		return Outcome{Error: "no local store configured"}
	}
	fail := func(err error) Outcome {
		metrics.CommitResults.WithLabelValues(TargetBackup, metrics.ResultError).Inc()
		metrics.PersistenceErrors.WithLabelValues(applog.ComponentWizard).Inc()
		c.logger.WarnContext(ctx, "Local plan backup failed", applog.FieldError, err)
		return Outcome{Error: err.Error(), Rows: len(rows)}
	}

	if err := kv.SetJSON(ctx, c.store, kv.BigGoalKey, backup{GoalPlan: plan, UserID: c.userID, SavedAt: savedAt.UTC()}); err != nil {
		return fail(&core.PersistenceError{Op: applog.OpSave, Key: kv.BigGoalKey, Err: err})
	}

	var seed []core.TodoRecord
	if found, err := kv.GetJSON(ctx, c.store, kv.SeedKey, &seed); err != nil {
		if !found {
			return fail(&core.PersistenceError{Op: "load seed", Key: kv.SeedKey, Err: err})
		}
		c.logger.WarnContext(ctx, "Stored task seed is unreadable, starting empty", applog.FieldError, err)
		seed = nil
	}
	have := make(map[string]struct{}, len(seed))
	for _, r := range seed {
		have[r.Key] = struct{}{}
	}
	for _, r := range rows {
		if _, dup := have[r.Key]; !dup {
			seed = append(seed, r)
		}
	}
	if err := kv.SetJSON(ctx, c.store, kv.SeedKey, seed); err != nil {
		return fail(&core.PersistenceError{Op: applog.OpSave, Key: kv.SeedKey, Err: err})
	}

	metrics.CommitResults.WithLabelValues(TargetBackup, metrics.ResultOK).Inc()
	return Outcome{OK: true, Rows: len(rows)}
}

// addToLedger adds the daily actions to the day of the commit. A local store
// failure still leaves the items in the ledger's working copy.
func (c *Committer) addToLedger(ctx context.Context, plan core.GoalPlan, at time.Time) (int, bool) {
	items, err := c.ledger.AddGoalSteps(ctx, core.DateOf(at), plan.DailyActions)
	if err != nil {
		var pe *core.PersistenceError
		if !errors.As(err, &pe) {
			c.logger.WarnContext(ctx, "Adding daily actions to the ledger failed", applog.FieldError, err)
			metrics.CommitResults.WithLabelValues(TargetLedger, metrics.ResultError).Inc()
			return 0, false
		}
		c.logger.WarnContext(ctx, "Daily actions added but not saved", applog.FieldError, err)
	}
	metrics.CommitResults.WithLabelValues(TargetLedger, metrics.ResultOK).Inc()
	return len(items), true
}
