package memory

import (
	"context"
	"testing"

	ports "utmreport/internal/sheets"
)

func TestWriteTabReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.WriteTab(ctx, ports.Tab{Name: "UTM b", Records: [][]string{{"h"}, {"1"}, {"2"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteTab(ctx, ports.Tab{Name: "UTM b", Records: [][]string{{"h"}, {"3"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteTab(ctx, ports.Tab{Name: "UTM a", Records: [][]string{{"h"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok := s.Tab("UTM b")
	if !ok || len(got) != 2 || got[1][0] != "3" {
		t.Fatalf("tab = %v, %v", got, ok)
	}
	if names := s.Names(); len(names) != 2 || names[0] != "UTM a" {
		t.Fatalf("names = %v", names)
	}
	if s.Writes() != 3 {
		t.Fatalf("writes = %d", s.Writes())
	}
}

func TestWriteTabCopiesRecords(t *testing.T) {
	s := New()
	rec := [][]string{{"x"}}
	if err := s.WriteTab(context.Background(), ports.Tab{Name: "t", Records: rec}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec[0][0] = "mutated"
	got, _ := s.Tab("t")
	if got[0][0] != "x" {
		t.Fatalf("store aliased caller slice: %v", got)
	}
}

func TestWriteTabCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().WriteTab(ctx, ports.Tab{Name: "t"}); err == nil {
		t.Fatal("expected context error")
	}
}
