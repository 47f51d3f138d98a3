package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"byb/internal/backend"
	"byb/internal/cli"
	"byb/internal/commands"
	"byb/internal/config"
	"byb/internal/ledger"
	applog "byb/internal/log"
	"byb/internal/planner"
)

func main() {
	cli.LoadEnvFile()
	if err := commands.New(openLocal).Execute(); err != nil {
		os.Exit(1)
	}
}

// openLocal opens the configured state store. Records are never written by
// bybctl, so the memory records backend keeps it from needing credentials.
func openLocal(ctx context.Context) (*commands.Env, func() error, error) {
	cfg := config.Load()
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	cfg.RecordsBackend = config.BackendMemory
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := cli.SetupLogger(cfg.LogLevel)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	be, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	// Writes go out on Close; the process exits right after a command.
	led := ledger.New(be.State, ledger.Options{
		AutosaveDelay: cfg.AutosaveDelay,
		RetentionDays: cfg.StatsRetentionDays,
		Logger:        logger.WithComponent(applog.ComponentLedger),
	})
	plan := planner.New(be.State, planner.Options{
		AutosaveDelay: cfg.AutosaveDelay,
		Logger:        logger.WithComponent(applog.ComponentPlanner),
	})
	release := func() error {
		return errors.Join(led.Close(), plan.Close(), be.Cleanup())
	}
	return &commands.Env{Ledger: led, Planner: plan}, release, nil
}
