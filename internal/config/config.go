package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	applog "utmreport/internal/log"
	"utmreport/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Tracker API
	TrackerBaseURL string
	PageSize       int
	StartDate      string
	MaxPages       int
	ManagerBudget  time.Duration
	RequestTimeout time.Duration

	// Refresh cycle
	RefreshInterval time.Duration
	BuildTimeout    time.Duration
	ReportVariants  string
	Timezone        string

	// Logging
	LogLevel  string
	LogFormat string

	// Refresh history (optional)
	HistoryDBPath    string
	HistoryRetention time.Duration

	// AMQP refresh events (optional)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Google Sheets mirror (optional)
	GoogleSpreadsheetID string
	GoogleSheetPrefix   string

	// One-shot export
	ExportDir string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		TrackerBaseURL: strings.TrimRight(getEnv("TRACKER_BASE_URL", "https://tracker-api.avalieempresas.live"), "/"),
		PageSize:       getEnvInt("PAGE_SIZE", 100),
		StartDate:      getEnv("START_DATE", "2000-01-01"),
		MaxPages:       getEnvInt("MAX_PAGES", 1000),
		ManagerBudget:  getEnvDuration("MANAGER_BUDGET", 2*time.Minute),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 2*time.Minute),
		BuildTimeout:    getEnvDuration("BUILD_TIMEOUT", 5*time.Minute),
		ReportVariants:  getEnv("REPORT_VARIANTS", "managers,clients"),
		Timezone:        getEnv("TIMEZONE", "America/Sao_Paulo"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		HistoryDBPath:    getEnv("HISTORY_DB_PATH", ""),
		HistoryRetention: getEnvDuration("HISTORY_RETENTION", 7*24*time.Hour),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "utmreport"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.refreshed"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetPrefix:   getEnv("GOOGLE_SHEET_PREFIX", "UTM "),

		ExportDir: getEnv("EXPORT_DIR", "."),
	}

	return cfg
}

// Variants returns the configured report variants.
func (c *Config) Variants() ([]core.Variant, error) {
	return core.ParseVariants(c.ReportVariants)
}

// Location loads the display timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate tracker URL
	if parsedURL, err := url.Parse(c.TrackerBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid tracker base URL '%s': %v", c.TrackerBaseURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid tracker base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid tracker base URL '%s': missing host", c.TrackerBaseURL))
	}

	// Validate pagination
	if c.PageSize < 1 || c.PageSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be between 1 and 1000", c.PageSize))
	}
	if _, err := time.Parse("2006-01-02", c.StartDate); err != nil {
		errors = append(errors, fmt.Sprintf("invalid start date '%s': must be YYYY-MM-DD", c.StartDate))
	}
	if c.MaxPages < 1 {
		errors = append(errors, fmt.Sprintf("invalid max pages %d: must be at least 1", c.MaxPages))
	}
	if c.ManagerBudget < time.Second {
		errors = append(errors, fmt.Sprintf("invalid manager budget %v: must be at least 1 second", c.ManagerBudget))
	}
	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}

	// Validate refresh cycle
	if c.RefreshInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 10 seconds", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}
	if c.BuildTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid build timeout %v: must be at least 1 second", c.BuildTimeout))
	}
	if _, err := c.Variants(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid report variants: %v", err))
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	// Validate logging
	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level: %v", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate history database if enabled
	if c.HistoryDBPath != "" {
		dir := filepath.Dir(c.HistoryDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create history database directory '%s': %v", dir, err))
				}
			}
		}
		if c.HistoryRetention < time.Hour {
			errors = append(errors, fmt.Sprintf("invalid history retention %v: must be at least 1 hour", c.HistoryRetention))
		}
	}

	// Validate AMQP if enabled
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
