// Package commands implements bybctl, a terminal client for the daily
// ledger and the planner working on the local state store.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"byb/internal/core"
	"byb/internal/ledger"
	"byb/internal/planner"
)

// Env is what a command runs against.
type Env struct {
	Ledger  *ledger.Ledger
	Planner *planner.Planner
	Now     func() time.Time
}

// Opener prepares an Env. The returned func releases it and flushes
// pending writes.
type Opener func(ctx context.Context) (*Env, func() error, error)

type dateOptions struct {
	Date string
}

func (o *dateOptions) resolve(now time.Time) (core.Date, error) {
	v := strings.TrimSpace(o.Date)
	if v == "" || strings.EqualFold(v, "today") {
		return core.DateOf(now), nil
	}
	return core.ParseDate(v)
}

// New returns the root bybctl command.
func New(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "bybctl",
		Short: "Manage the daily ledger from the terminal",
		Long: `bybctl reads and edits the same local store as the byb server.

Items are addressed by category and by the id prefix shown in "bybctl day".`,
		SilenceUsage: true,
	}
	do := &dateOptions{}
	root.PersistentFlags().StringVarP(&do.Date, "date", "d", "today", "day to work on, YYYY-MM-DD or today")

	addDay(root, open, do)
	addAdd(root, open, do)
	addDone(root, open, do)
	addRemove(root, open, do)
	addClear(root, open, do)
	addWeek(root, open, do)
	addImport(root, open, do)
	return root
}

// run opens the Env, resolves --date, calls fn and releases the Env.
func run(cmd *cobra.Command, open Opener, do *dateOptions, fn func(ctx context.Context, env *Env, date core.Date) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, closeEnv, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeEnv(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	now := time.Now
	if env.Now != nil {
		now = env.Now
	}
	date, err := do.resolve(now())
	if err != nil {
		return err
	}
	return fn(ctx, env, date)
}

// warn reports a persistence failure and swallows it. Other errors pass.
func warn(cmd *cobra.Command, err error) error {
	if err != nil && core.IsPersistence(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		return nil
	}
	return err
}

func addDay(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Show the items of a day",
		Example: `
bybctl day
bybctl day --date 2025-03-10
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
				view, err := env.Ledger.View(ctx, date)
				if err := warn(cmd, err); err != nil {
					return err
				}
				PrintDay(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	top.AddCommand(cmd)
}

func addAdd(top *cobra.Command, open Opener, do *dateOptions) {
	var goal bool
	cmd := &cobra.Command{
		Use:   "add <category> <text>",
		Short: "Add an item to a category",
		Example: `
bybctl add business call the accountant
bybctl add personal --goal run 5k
`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: categoryNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := core.ParseCategory(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
				item, err := env.Ledger.AddItem(ctx, date, cat, text, goal)
				if err := warn(cmd, err); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s\n", shortID(item.ID), cat)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&goal, "goal", "g", false, "mark the item as a goal step")
	top.AddCommand(cmd)
}

func addDone(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:     "done <category> <id>",
		Short:   "Toggle the done flag of an item",
		Aliases: []string{"toggle"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return itemCommand(cmd, open, do, args, func(ctx context.Context, env *Env, date core.Date, cat core.Category, id string) (bool, error) {
				return env.Ledger.ToggleDone(ctx, date, cat, id)
			}, "toggled")
		},
	}
	top.AddCommand(cmd)
}

func addRemove(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:     "rm <category> <id>",
		Short:   "Remove an item",
		Aliases: []string{"remove"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return itemCommand(cmd, open, do, args, func(ctx context.Context, env *Env, date core.Date, cat core.Category, id string) (bool, error) {
				return env.Ledger.RemoveItem(ctx, date, cat, id)
			}, "removed")
		},
	}
	top.AddCommand(cmd)
}

// itemCommand resolves <category> <id-prefix> against the day and applies op.
func itemCommand(cmd *cobra.Command, open Opener, do *dateOptions, args []string,
	op func(context.Context, *Env, core.Date, core.Category, string) (bool, error), verb string) error {
	cat, err := core.ParseCategory(args[0])
	if err != nil {
		return err
	}
	return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
		view, err := env.Ledger.View(ctx, date)
		if err := warn(cmd, err); err != nil {
			return err
		}
		id, err := resolveID(view.Day, cat, args[1])
		if err != nil {
			return err
		}
		changed, err := op(ctx, env, date, cat, id)
		if err := warn(cmd, err); err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("no item %s in %s", args[1], cat)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, shortID(id))
		return nil
	})
}

func addClear(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every completed item of the day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
				n, err := env.Ledger.ClearCompleted(ctx, date)
				if err := warn(cmd, err); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d completed item(s)\n", n)
				return nil
			})
		},
	}
	top.AddCommand(cmd)
}

func addWeek(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show completions of the 7 days ending at the day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
				totals, err := env.Ledger.WeeklyTotals(ctx, date)
				if err := warn(cmd, err); err != nil {
					return err
				}
				PrintWeek(cmd.OutOrStdout(), date, totals)
				return nil
			})
		},
	}
	top.AddCommand(cmd)
}

func addImport(top *cobra.Command, open Opener, do *dateOptions) {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add the planner goal and tasks to the Business column as goal steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, do, func(ctx context.Context, env *Env, date core.Date) error {
				if env.Planner == nil {
					return fmt.Errorf("planner is not available")
				}
				st, err := env.Planner.State(ctx)
				if err := warn(cmd, err); err != nil {
					return err
				}
				items, err := env.Ledger.ImportFromGoalPlan(ctx, date, planner.Picks(st))
				if err := warn(cmd, err); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d goal step(s)\n", len(items))
				return nil
			})
		},
	}
	top.AddCommand(cmd)
}

// resolveID finds the item of cat whose id starts with prefix.
func resolveID(day core.LedgerDay, cat core.Category, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", &core.ValidationError{Field: "id", Err: fmt.Errorf("empty id")}
	}
	col := day.Column(cat)
	if col == nil {
		return "", fmt.Errorf("no item %s in %s", prefix, cat)
	}
	var match string
	for _, it := range col.Items {
		if !strings.HasPrefix(strings.ToLower(it.ID), prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("id %s is ambiguous in %s", prefix, cat)
		}
		match = it.ID
	}
	if match == "" {
		return "", fmt.Errorf("no item %s in %s", prefix, cat)
	}
	return match, nil
}

func categoryNames() []string {
	var names []string
	for _, c := range core.Categories() {
		names = append(names, strings.ToLower(string(c)))
	}
	return names
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
