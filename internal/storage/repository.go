package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	applog "utmreport/internal/log"

	_ "modernc.org/sqlite"
)

// RefreshRun is the operational record of one refresh cycle. It never holds
// report rows.
type RefreshRun struct {
	ID          int64          `json:"id"`
	SnapshotID  uint64         `json:"snapshot_id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"-"`
	DurationMs  int64          `json:"duration_ms"`
	RowCounts   map[string]int `json:"rows"`
	TotalRows   int            `json:"total_rows"`
	Warnings    int            `json:"warnings"`
	Error       string         `json:"error,omitempty"`
}

type SQLiteRepository struct {
	db        *sql.DB
	queries   *Queries
	retention time.Duration
	logger    *applog.Logger
}

// NewSQLiteRepository opens the history database, runs migrations and keeps
// runs for retention.
func NewSQLiteRepository(dbPath string, retention time.Duration, logger *applog.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = applog.Default(applog.ComponentStorage)
	}

	return &SQLiteRepository{
		db:        db,
		queries:   New(db),
		retention: retention,
		logger:    logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordRun inserts a run and prunes runs older than the retention window,
// measured from the new run's completion time.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run RefreshRun) (int64, error) {
	counts, err := json.Marshal(run.RowCounts)
	if err != nil {
		return 0, fmt.Errorf("marshal row counts: %w", err)
	}

	id, err := r.queries.InsertRefreshRun(ctx, InsertRefreshRunParams{
		SnapshotID:  int64(run.SnapshotID),
		StartedAt:   run.StartedAt.UnixMilli(),
		CompletedAt: run.CompletedAt.UnixMilli(),
		DurationMs:  run.Duration.Milliseconds(),
		RowCounts:   string(counts),
		TotalRows:   int64(run.TotalRows),
		Warnings:    int64(run.Warnings),
		Error:       run.Error,
	})
	if err != nil {
		return 0, fmt.Errorf("insert refresh run: %w", err)
	}

	if r.retention > 0 {
		cutoff := run.CompletedAt.Add(-r.retention).UnixMilli()
		pruned, err := r.queries.DeleteRefreshRunsBefore(ctx, cutoff)
		if err != nil {
			return id, fmt.Errorf("prune refresh runs: %w", err)
		}
		if pruned > 0 {
			r.logger.DebugContext(ctx, "Pruned old refresh runs", "count", pruned)
		}
	}

	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	rows, err := r.queries.ListRecentRefreshRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list refresh runs: %w", err)
	}

	runs := make([]RefreshRun, 0, len(rows))
	for _, row := range rows {
		run := RefreshRun{
			ID:          row.ID,
			SnapshotID:  uint64(row.SnapshotID),
			StartedAt:   time.UnixMilli(row.StartedAt).UTC(),
			CompletedAt: time.UnixMilli(row.CompletedAt).UTC(),
			Duration:    time.Duration(row.DurationMs) * time.Millisecond,
			DurationMs:  row.DurationMs,
			TotalRows:   int(row.TotalRows),
			Warnings:    int(row.Warnings),
			Error:       row.Error,
		}
		if err := json.Unmarshal([]byte(row.RowCounts), &run.RowCounts); err != nil {
			r.logger.WarnContext(ctx, "Malformed row counts in refresh run", "id", row.ID, "error", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
