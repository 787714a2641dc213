package services

import (
	"context"
	"errors"
	"fmt"

	"utmreport/internal/amqp"
	"utmreport/internal/sheets"
	"utmreport/internal/storage"
)

// RunRecorder stores refresh run metadata.
type RunRecorder interface {
	RecordRun(ctx context.Context, run storage.RefreshRun) (int64, error)
}

// EventPublisher announces refreshed reports.
type EventPublisher interface {
	PublishReportRefreshed(ctx context.Context, msg *amqp.ReportRefreshedMessage) error
}

// HistorySink records every snapshot, failed ones included.
type HistorySink struct {
	recorder RunRecorder
}

func NewHistorySink(recorder RunRecorder) *HistorySink {
	return &HistorySink{recorder: recorder}
}

func (s *HistorySink) Name() string { return "history" }

func (s *HistorySink) Publish(ctx context.Context, snap *Snapshot) error {
	_, err := s.recorder.RecordRun(ctx, storage.RefreshRun{
		SnapshotID:  snap.ID,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		Duration:    snap.Duration,
		RowCounts:   snap.RowCounts(),
		TotalRows:   snap.TotalRows(),
		Warnings:    len(snap.Warnings),
		Error:       snap.ErrText(),
	})
	return err
}

// EventSink publishes a ReportRefreshedMessage per snapshot.
type EventSink struct {
	publisher EventPublisher
}

func NewEventSink(publisher EventPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) Name() string { return "amqp" }

func (s *EventSink) Publish(ctx context.Context, snap *Snapshot) error {
	msg := amqp.NewReportRefreshedMessage(
		snap.ID,
		snap.CompletedAt,
		snap.Duration,
		snap.RowCounts(),
		len(snap.Warnings),
		snap.ErrText(),
	)
	return s.publisher.PublishReportRefreshed(ctx, msg)
}

// SheetsSink mirrors each table into its own tab. Snapshots with Err set are
// skipped so a failed cycle never blanks the mirror.
type SheetsSink struct {
	writer sheets.TabWriter
	prefix string
}

func NewSheetsSink(writer sheets.TabWriter, prefix string) *SheetsSink {
	return &SheetsSink{writer: writer, prefix: prefix}
}

func (s *SheetsSink) Name() string { return "sheets" }

func (s *SheetsSink) Publish(ctx context.Context, snap *Snapshot) error {
	if snap.Err != nil {
		return nil
	}
	var errs []error
	for _, t := range snap.Tables {
		tab := sheets.Tab{
			Name:    s.prefix + t.Variant().Name,
			Records: t.Records(),
		}
		if err := s.writer.WriteTab(ctx, tab); err != nil {
			errs = append(errs, fmt.Errorf("tab %s: %w", tab.Name, err))
		}
	}
	return errors.Join(errs...)
}
