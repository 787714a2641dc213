package storage

type RefreshRunRow struct {
	ID          int64
	SnapshotID  int64
	StartedAt   int64
	CompletedAt int64
	DurationMs  int64
	RowCounts   string
	TotalRows   int64
	Warnings    int64
	Error       string
}
