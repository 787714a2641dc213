// Command utm-export builds the report once and writes one CSV per variant.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	appcli "utmreport/internal/cli"
	"utmreport/internal/core"
	applog "utmreport/internal/log"
	"utmreport/internal/report"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		applog.Default(applog.ComponentExport).Error("Export failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "utm-export",
		Usage: "build the UTM reports once and write them as CSV files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "output directory (default: EXPORT_DIR or .)",
			},
			&cli.StringFlag{
				Name:  "variants",
				Usage: "comma separated report variants (default: REPORT_VARIANTS)",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, logger := appcli.Bootstrap()
	logger = logger.WithComponent(applog.ComponentExport)

	if dir := c.String("dir"); dir != "" {
		cfg.ExportDir = dir
	}
	if variants := c.String("variants"); variants != "" {
		cfg.ReportVariants = variants
		if _, err := cfg.Variants(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout)
	defer cancel()

	res, err := appcli.NewReportBuilder(cfg, logger).Build(ctx)
	if err != nil {
		if errors.Is(err, report.ErrManagerIndex) {
			return fmt.Errorf("nothing exported: %w", err)
		}
		return fmt.Errorf("build report: %w", err)
	}

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	for _, w := range res.Warnings {
		logger.Warn("Incomplete manager", "detail", w.String())
	}

	for _, t := range res.Tables {
		path := filepath.Join(cfg.ExportDir, t.Variant().FileName)
		if err := writeCSV(path, t); err != nil {
			return err
		}
		logger.Info("Export written",
			applog.FieldVariant, t.Variant().Name,
			applog.FieldRows, t.Len(),
			"path", path)
	}
	return nil
}

func writeCSV(path string, t *core.Table) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("encode %s: %w", t.Variant().Name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
