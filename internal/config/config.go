package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

type Config struct {
	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP, optional: archived months are only published when AMQPURL is set
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets history export
	GoogleSpreadsheetID      string
	GoogleHistorySheetName   string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Observability
	MetricsPort string
	LogLevel    string

	// Number of metric results kept by the memoizing allocator
	MetricsCacheSize int
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	return &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "month_archived"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleHistorySheetName:   getEnv("GOOGLE_HISTORY_SHEET_NAME", "History"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		MetricsPort: getEnv("METRICS_PORT", "9091"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		MetricsCacheSize: getEnvInt("METRICS_CACHE_SIZE", 64),
	}
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if port, err := strconv.Atoi(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Sprintf("invalid metrics port '%s': must be a number", c.MetricsPort))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid metrics port %d: must be between 1 and 65535", port))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if c.MetricsCacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid metrics cache size %d: must be at least 1", c.MetricsCacheSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateExporter checks the settings only the history worker needs.
func (c *Config) ValidateExporter() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required by the history worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "GOOGLE_SPREADSHEET_ID is required by the history worker")
	}
	if c.GoogleHistorySheetName == "" {
		errs = append(errs, "GOOGLE_HISTORY_SHEET_NAME cannot be empty")
	}
	if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided")
	}
	if len(errs) > 0 {
		return fmt.Errorf("history worker configuration invalid:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
	}
	return level, nil
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
