package main

import (
	"context"
	"errors"
	"os"
	"time"

	"byb/internal/amqp"
	"byb/internal/cli"
	applog "byb/internal/log"
	"byb/internal/records/google"
	"byb/internal/services"
	"byb/internal/storage"
	"byb/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(logger.Logger)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)

	logger.Info("Starting byb-worker", "db_path", cfg.SQLiteDBPath,
		"batch_size", cfg.SyncBatchSize, "interval", cfg.SyncInterval)

	// The worker drains the outbox written by the server.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	sheets, err := google.New(context.Background(), google.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		GoalsSheet:    cfg.GoogleGoalsSheet,
		TodosSheet:    cfg.GoogleTodosSheet,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			_ = repo.Close()
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic outbox polling")
	}

	syncWorker := worker.NewSyncWorker(repo, sheets, cfg.SyncBatchSize)
	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := processor.Stop(stopCtx); err != nil {
			logger.Warn("Sync processor stop", applog.FieldError, err)
		}
		if broker != nil {
			if err := broker.Close(); err != nil {
				logger.Warn("AMQP close", applog.FieldError, err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Error("SQLite close", applog.FieldError, err)
		}
	})

	// Rows queued while the worker was down go out first.
	logger.Info("Performing startup sync check")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", applog.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		cli.Interrupt()
	}

	if broker != nil {
		go func() {
			err := broker.ConsumeRecordSync(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
				cli.Interrupt()
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
