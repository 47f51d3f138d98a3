package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"byb/internal/cache"
	"byb/internal/cli"
	apphttp "byb/internal/http"
	"byb/internal/ledger"
	applog "byb/internal/log"
	"byb/internal/planner"
	"byb/internal/vision"
	"byb/internal/wizard"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(logger.Logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting byb server", "port", cfg.Port,
		"state_backend", cfg.StateBackend, "records_backend", cfg.RecordsBackend)

	be := cli.InitBackend(context.Background(), logger.Logger, cfg)

	led := ledger.New(be.State, ledger.Options{
		AutosaveDelay: cfg.AutosaveDelay,
		RetentionDays: cfg.StatsRetentionDays,
		Logger:        logger.WithComponent(applog.ComponentLedger),
	})
	plan := planner.New(be.State, planner.Options{
		AutosaveDelay: cfg.AutosaveDelay,
		Logger:        logger.WithComponent(applog.ComponentPlanner),
	})
	board := vision.New(be.State, cfg.AutosaveDelay, logger.WithComponent(applog.ComponentVision))

	committerOpts := wizard.CommitterOptions{
		Goals:  be.Records,
		Todos:  be.Records,
		Store:  be.State,
		UserID: cfg.UserID,
		Logger: logger.WithComponent(applog.ComponentWizard),
	}
	if cfg.CommitToLedger {
		committerOpts.Ledger = led
	}
	wiz := wizard.NewManager(wizard.ManagerOptions{
		Store:         be.State,
		Committer:     wizard.NewCommitter(committerOpts),
		TTL:           cfg.WizardSessionTTL,
		AutosaveDelay: cfg.AutosaveDelay,
		Logger:        logger.WithComponent(applog.ComponentWizard),
	})

	caches := cache.NewManager()
	caches.Register(wiz.Sessions())
	caches.StartCleanup(5 * time.Minute)

	var ready func(context.Context) error
	if be.Outbox != nil {
		ready = be.Outbox.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:  led,
		Wizard:  wiz,
		Planner: plan,
		Vision:  board,
		Ready:   ready,
		Logger:  logger,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()

		// Pending debounced writes go out before the store closes.
		flushErr := errors.Join(wiz.Close(), led.Close(), plan.Close(), board.Close())
		if flushErr != nil {
			logger.Error("Flushing local state failed", applog.FieldError, flushErr)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	})

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			// Let the shutdown path release the stores.
			cli.Interrupt()
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
