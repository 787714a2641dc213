package storage

import (
	"context"
)

const insertRefreshRun = `-- name: InsertRefreshRun :one
INSERT INTO refresh_runs (
    snapshot_id, started_at, completed_at, duration_ms, row_counts, total_rows, warnings, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

type InsertRefreshRunParams struct {
	SnapshotID  int64
	StartedAt   int64
	CompletedAt int64
	DurationMs  int64
	RowCounts   string
	TotalRows   int64
	Warnings    int64
	Error       string
}

func (q *Queries) InsertRefreshRun(ctx context.Context, arg InsertRefreshRunParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertRefreshRun,
		arg.SnapshotID,
		arg.StartedAt,
		arg.CompletedAt,
		arg.DurationMs,
		arg.RowCounts,
		arg.TotalRows,
		arg.Warnings,
		arg.Error,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listRecentRefreshRuns = `-- name: ListRecentRefreshRuns :many
SELECT id, snapshot_id, started_at, completed_at, duration_ms, row_counts, total_rows, warnings, error
FROM refresh_runs
ORDER BY completed_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListRecentRefreshRuns(ctx context.Context, limit int64) ([]RefreshRunRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentRefreshRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RefreshRunRow
	for rows.Next() {
		var i RefreshRunRow
		if err := rows.Scan(
			&i.ID,
			&i.SnapshotID,
			&i.StartedAt,
			&i.CompletedAt,
			&i.DurationMs,
			&i.RowCounts,
			&i.TotalRows,
			&i.Warnings,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRefreshRunsBefore = `-- name: DeleteRefreshRunsBefore :execrows
DELETE FROM refresh_runs WHERE completed_at < ?
`

func (q *Queries) DeleteRefreshRunsBefore(ctx context.Context, cutoff int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRefreshRunsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
