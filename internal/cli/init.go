// Package cli provides common CLI initialization utilities shared by
// cmd/utmreport and cmd/utm-export.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"utmreport/internal/config"
	applog "utmreport/internal/log"
	"utmreport/internal/report"
	"utmreport/internal/storage"
	"utmreport/internal/tracker"
)

// SetupLogger builds the process logger from a level and format and sets it
// as the default. An unknown level falls back to info.
func SetupLogger(level, format string) *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	cfg.Format = format
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// Bootstrap loads .env and the validated config, then returns the logger
// configured from LOG_LEVEL and LOG_FORMAT.
func Bootstrap() (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := LoadAndValidateConfig(SetupLogger("info", "text"))
	return cfg, SetupLogger(cfg.LogLevel, cfg.LogFormat)
}

// NewReportBuilder wires the tracker client into a report builder.
func NewReportBuilder(cfg *config.Config, logger *applog.Logger) *report.Builder {
	variants, _ := cfg.Variants() // validated by LoadAndValidateConfig
	client := tracker.NewClient(tracker.Options{
		BaseURL:   cfg.TrackerBaseURL,
		PageSize:  cfg.PageSize,
		StartDate: cfg.StartDate,
		Timeout:   cfg.RequestTimeout,
	})
	return report.NewBuilder(client, report.Options{
		Variants:      variants,
		MaxPages:      cfg.MaxPages,
		ManagerBudget: cfg.ManagerBudget,
		Logger:        logger.WithComponent(applog.ComponentBuilder),
	})
}

// InitHistory opens the refresh history database.
// Returns the repository or exits the process on failure.
func InitHistory(logger *applog.Logger, dbPath string, retention time.Duration) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath, retention, logger.WithComponent(applog.ComponentStorage))
	if err != nil {
		logger.Error("Failed to initialize history database", applog.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled once a signal arrives and cleanup has
// run; the channel closes when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}

		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
