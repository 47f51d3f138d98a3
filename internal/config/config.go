package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendDisk   = "disk"
	BackendSheets = "sheets"
)

var (
	validStateBackends   = []string{BackendMemory, BackendSQLite, BackendDisk}
	validRecordsBackends = []string{BackendMemory, BackendSheets, BackendSQLite}
	validLogLevels       = []string{"debug", "info", "warn", "warning", "error"}
)

type Config struct {
	// HTTP Server
	Port string

	// Local state (ledger days, stats, planner, vision board, drafts)
	StateBackend  string
	SQLiteDBPath  string
	DiskStorePath string

	// Remote record store for goal plans and to-do rows
	RecordsBackend string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleGoalsSheet    string
	GoogleTodosSheet    string

	// Ledger and wizard
	AutosaveDelay      time.Duration
	StatsRetentionDays int
	WizardSessionTTL   time.Duration
	CommitToLedger     bool
	UserID             string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		StateBackend:  getEnv("STATE_BACKEND", BackendSQLite),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/byb.db"),
		DiskStorePath: getEnv("DISK_STORE_PATH", "./data/kv"),

		RecordsBackend: getEnv("RECORDS_BACKEND", BackendSQLite),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "byb"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_records"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleGoalsSheet:    getEnv("GOOGLE_GOALS_SHEET", "big_goals"),
		GoogleTodosSheet:    getEnv("GOOGLE_TODOS_SHEET", "todos"),

		AutosaveDelay:      getEnvDuration("AUTOSAVE_DELAY", 250*time.Millisecond),
		StatsRetentionDays: getEnvInt("STATS_RETENTION_DAYS", 60),
		WizardSessionTTL:   getEnvDuration("WIZARD_SESSION_TTL", 2*time.Hour),
		CommitToLedger:     getEnvBool("COMMIT_TO_LEDGER", true),
		UserID:             getEnv("BYB_USER_ID", ""),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validStateBackends, c.StateBackend) {
		errors = append(errors, fmt.Sprintf("invalid state backend '%s': must be one of %v", c.StateBackend, validStateBackends))
	}
	if !slices.Contains(validRecordsBackends, c.RecordsBackend) {
		errors = append(errors, fmt.Sprintf("invalid records backend '%s': must be one of %v", c.RecordsBackend, validRecordsBackends))
	}

	// The outbox lives in SQLite, so either use of it needs a database path.
	if c.StateBackend == BackendSQLite || c.RecordsBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using the sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", filepath.Dir(c.SQLiteDBPath), err))
		}
	}

	if c.StateBackend == BackendDisk && c.DiskStorePath == "" {
		errors = append(errors, "disk store path cannot be empty when using the disk backend")
	}

	if c.RecordsBackend == BackendSheets && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using the sheets records backend")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AutosaveDelay < 0 || c.AutosaveDelay > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid autosave delay %v: must be between 0 and 10s", c.AutosaveDelay))
	}
	if c.StatsRetentionDays < 7 || c.StatsRetentionDays > 3650 {
		errors = append(errors, fmt.Sprintf("invalid stats retention %d: must be between 7 and 3650 days", c.StatsRetentionDays))
	}
	if c.WizardSessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid wizard session TTL %v: must be at least 1 minute", c.WizardSessionTTL))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
