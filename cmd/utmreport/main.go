package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"utmreport/internal/amqp"
	"utmreport/internal/cli"
	apphttp "utmreport/internal/http"
	applog "utmreport/internal/log"
	"utmreport/internal/middleware/ratelimit"
	"utmreport/internal/services"
	gsheet "utmreport/internal/sheets/google"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting utmreport", applog.FieldOperation, applog.OpStartup)

	variants, _ := cfg.Variants()
	location, _ := cfg.Location()

	var (
		sinks []services.Sink
		runs  apphttp.RunLister
	)

	if cfg.HistoryDBPath != "" {
		repo := cli.InitHistory(logger, cfg.HistoryDBPath, cfg.HistoryRetention)
		defer repo.Close()
		sinks = append(sinks, services.NewHistorySink(repo))
		runs = repo
		logger.Info("Refresh history enabled", "path", cfg.HistoryDBPath, "retention", cfg.HistoryRetention)
	} else {
		logger.Info("Refresh history disabled - no HISTORY_DB_PATH provided")
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey,
			logger.WithComponent(applog.ComponentAMQP))
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		sinks = append(sinks, services.NewEventSink(amqpClient))
		logger.Info("Refresh events enabled", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
	}

	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background(), cfg.GoogleSpreadsheetID,
			logger.WithComponent(applog.ComponentSheets))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		sinks = append(sinks, services.NewSheetsSink(sheetsClient, cfg.GoogleSheetPrefix))
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	refresher := services.NewRefresher(
		cli.NewReportBuilder(cfg, logger),
		services.RefresherConfig{
			Interval:     cfg.RefreshInterval,
			BuildTimeout: cfg.BuildTimeout,
		},
		logger.WithComponent(applog.ComponentRefresher),
		sinks...,
	)

	srv := apphttp.NewServer(":"+cfg.Port, refresher, apphttp.Options{
		Variants:        variants,
		Location:        location,
		RefreshInterval: cfg.RefreshInterval,
		Runs:            runs,
		RateLimit:       ratelimit.DefaultConfig(),
		Logger:          logger.WithComponent(applog.ComponentHTTP),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.BuildTimeout + 30*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		if err := refresher.Stop(ctx); err != nil {
			logger.Error("Refresher shutdown error", applog.FieldError, err.Error())
		}
	})

	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start refresher", applog.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Starting HTTP server", "port", cfg.Port, "variants", cfg.ReportVariants, "timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
