package backend

import (
	"fmt"

	"byb/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		State:   BackendType(appConfig.StateBackend),
		Records: BackendType(appConfig.RecordsBackend),

		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DiskStorePath: appConfig.DiskStorePath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleGoalsSheet:    appConfig.GoogleGoalsSheet,
		GoogleTodosSheet:    appConfig.GoogleTodosSheet,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.State.IsValidState() {
		return fmt.Errorf("invalid state backend: %s", c.State)
	}
	if !c.Records.IsValidRecords() {
		return fmt.Errorf("invalid records backend: %s", c.Records)
	}
	if c.NeedsSQLite() && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.State == DiskBackend && c.DiskStorePath == "" {
		return fmt.Errorf("disk store path is required for disk backend")
	}
	if c.Records == SheetsBackend && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
	}
	return nil
}

// NeedsSQLite reports whether either store lives in the SQLite database.
func (c Config) NeedsSQLite() bool {
	return c.State == SQLiteBackend || c.Records == SQLiteBackend
}
