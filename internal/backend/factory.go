package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"byb/internal/amqp"
	"byb/internal/kv"
	"byb/internal/records"
	"byb/internal/records/google"
	"byb/internal/records/memory"
	"byb/internal/services"
	"byb/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the state store and the records writer. With the
// sqlite records backend goal plans and to-dos are queued in the outbox and
// announced over AMQP when a broker is configured; the worker pushes them to
// Sheets.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if config.NeedsSQLite() {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		res.Outbox = repo
		closers = append(closers, repo.Close)
		f.logger.Info("Initialized SQLite database", "db_path", config.SQLiteDBPath)
	}

	switch config.State {
	case SQLiteBackend:
		res.State = res.Outbox
	case DiskBackend:
		res.State = storage.NewDiskStore(config.DiskStorePath)
		f.logger.Info("Initialized disk state store", "path", config.DiskStorePath)
	case MemoryBackend:
		res.State = kv.NewMemory()
		f.logger.Info("Initialized memory state store")
	}

	writer, closeWriter, err := f.createRecords(ctx, config, res.Outbox)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	if closeWriter != nil {
		closers = append(closers, closeWriter)
	}
	res.Records = writer
	res.Cleanup = cleanup
	return res, nil
}

func (f *DefaultFactory) createRecords(ctx context.Context, config Config, outbox *storage.SQLiteRepository) (records.Writer, func() error, error) {
	switch config.Records {
	case SheetsBackend:
		cli, err := google.New(ctx, google.Config{
			SpreadsheetID: config.GoogleSpreadsheetID,
			GoalsSheet:    config.GoogleGoalsSheet,
			TodosSheet:    config.GoogleTodosSheet,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets records backend", "spreadsheet_id", config.GoogleSpreadsheetID)
		return cli, nil, nil

	case SQLiteBackend:
		var publisher services.Publisher
		var closer func() error
		if config.AMQPURL != "" {
			client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
			if err != nil {
				f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
			} else {
				f.logger.Info("Initialized AMQP client",
					"exchange", config.AMQPExchange,
					"queue", config.AMQPQueue)
				publisher = client
				closer = client.Close
			}
		}
		f.logger.Info("Initialized outbox records backend", "amqp_enabled", publisher != nil)
		return services.NewRecordService(outbox, publisher), closer, nil

	default:
		f.logger.Info("Initialized memory records backend")
		return memory.New(), nil, nil
	}
}
