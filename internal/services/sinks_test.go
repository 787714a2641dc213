package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"utmreport/internal/amqp"
	"utmreport/internal/core"
	"utmreport/internal/report"
	"utmreport/internal/sheets"
	"utmreport/internal/sheets/memory"
	"utmreport/internal/storage"
)

type fakeRecorder struct {
	runs []storage.RefreshRun
}

func (f *fakeRecorder) RecordRun(_ context.Context, run storage.RefreshRun) (int64, error) {
	f.runs = append(f.runs, run)
	return int64(len(f.runs)), nil
}

type fakePublisher struct {
	msgs []*amqp.ReportRefreshedMessage
}

func (f *fakePublisher) PublishReportRefreshed(_ context.Context, msg *amqp.ReportRefreshedMessage) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeTabWriter struct {
	tabs []sheets.Tab
	err  error
}

func (f *fakeTabWriter) WriteTab(_ context.Context, tab sheets.Tab) error {
	f.tabs = append(f.tabs, tab)
	return f.err
}

func testSnapshot(err error) *Snapshot {
	managers := core.NewTable(core.ManagersVariant)
	managers.Append(core.ManagerRow{ManagerName: "Ana", UTMSource: "google", CreatedAt: "05/03/2024"})
	clients := core.NewTable(core.ClientsVariant)
	clients.Append(
		core.ClientRow{UTMSource: "google", ClientName: "Carla"},
		core.ClientRow{UTMSource: "meta", ClientName: "Davi"},
	)
	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return &Snapshot{
		ID:          4,
		Tables:      []*core.Table{managers, clients},
		Warnings:    []report.Warning{{ManagerID: "m9", Message: "unexpected status 404"}},
		Err:         err,
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
		Duration:    3 * time.Second,
	}
}

func TestHistorySink(t *testing.T) {
	rec := &fakeRecorder{}
	sink := NewHistorySink(rec)

	if err := sink.Publish(context.Background(), testSnapshot(nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(rec.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(rec.runs))
	}
	run := rec.runs[0]
	if run.SnapshotID != 4 || run.TotalRows != 3 || run.Warnings != 1 || run.Error != "" {
		t.Errorf("unexpected run %+v", run)
	}
	if run.RowCounts["clients"] != 2 {
		t.Errorf("expected 2 client rows, got %d", run.RowCounts["clients"])
	}
}

func TestEventSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub)

	snap := testSnapshot(report.ErrManagerIndex)
	if err := sink.Publish(context.Background(), snap); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.SnapshotID != 4 || msg.DurationMs != 3000 || msg.Error == "" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSheetsSink(t *testing.T) {
	store := memory.New()
	sink := NewSheetsSink(store, "UTM ")

	if err := sink.Publish(context.Background(), testSnapshot(nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	names := store.Names()
	if len(names) != 2 || names[0] != "UTM clients" || names[1] != "UTM managers" {
		t.Fatalf("unexpected tabs %v", names)
	}
	clients, _ := store.Tab("UTM clients")
	if len(clients) != 3 || clients[0][0] != "UTM Source" {
		t.Errorf("expected header plus 2 rows, got %v", clients)
	}

	// a second cycle replaces the tabs
	if err := sink.Publish(context.Background(), testSnapshot(nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if store.Writes() != 4 || len(store.Names()) != 2 {
		t.Errorf("writes = %d, tabs = %v", store.Writes(), store.Names())
	}
}

func TestSheetsSink_SkipsFailedSnapshot(t *testing.T) {
	w := &fakeTabWriter{}
	sink := NewSheetsSink(w, "UTM ")

	if err := sink.Publish(context.Background(), testSnapshot(report.ErrManagerIndex)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.tabs) != 0 {
		t.Errorf("failed snapshot should not be mirrored, got %d tabs", len(w.tabs))
	}
}

func TestSheetsSink_JoinsErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := &fakeTabWriter{err: boom}
	sink := NewSheetsSink(w, "")

	err := sink.Publish(context.Background(), testSnapshot(nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap %v, got %v", boom, err)
	}
	if len(w.tabs) != 2 {
		t.Errorf("expected every tab to be attempted, got %d", len(w.tabs))
	}
}
