// Package records defines the remote record store the wizard writes goal
// plans and to-do rows into.
package records

import (
	"context"

	"byb/internal/core"
)

// Ports for outbound adapters. Implementations treat the row key (plan id for
// goal plans, TodoRecord.Key for to-dos) as an idempotency key: inserting a
// row whose key is already stored is not an error and adds nothing.
type (
	GoalWriter interface {
		InsertGoalPlans(ctx context.Context, rows []core.GoalPlanRecord) error
	}

	TodoWriter interface {
		InsertTodos(ctx context.Context, rows []core.TodoRecord) error
	}

	// Writer is a store accepting both kinds of rows.
	Writer interface {
		GoalWriter
		TodoWriter
	}
)
