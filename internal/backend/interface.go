package backend

import (
	"context"

	"byb/internal/kv"
	"byb/internal/records"
	"byb/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the stores a process runs on.
type BackendResult struct {
	// State is the local key-value store for ledger days, stats, planner,
	// vision board and wizard drafts.
	State kv.Store
	// Records receives committed goal plans and to-do rows.
	Records records.Writer
	// Outbox is set when a SQLite database is open, for the sync worker and
	// readiness checks.
	Outbox  *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	State   BackendType
	Records BackendType

	SQLiteDBPath  string
	DiskStorePath string

	// AMQP is optional; without it the outbox is drained by polling only.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID string
	GoogleGoalsSheet    string
	GoogleTodosSheet    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
	DiskBackend   BackendType = "disk"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValidState reports whether bt can hold local state.
func (bt BackendType) IsValidState() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend, DiskBackend:
		return true
	default:
		return false
	}
}

// IsValidRecords reports whether bt can receive committed records.
func (bt BackendType) IsValidRecords() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
