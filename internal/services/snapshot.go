package services

import (
	"time"

	"utmreport/internal/core"
	"utmreport/internal/report"
)

// Snapshot is the immutable result of one refresh cycle. Readers share it
// freely; nothing mutates it after publication.
type Snapshot struct {
	ID          uint64
	Tables      []*core.Table
	Warnings    []report.Warning
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Table returns the table of the named variant, or nil.
func (s *Snapshot) Table(variant string) *core.Table {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		if t.Variant().Name == variant {
			return t
		}
	}
	return nil
}

// RowCounts maps variant name to row count.
func (s *Snapshot) RowCounts() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for _, t := range s.Tables {
		out[t.Variant().Name] = t.Len()
	}
	return out
}

// TotalRows sums the rows of every table.
func (s *Snapshot) TotalRows() int {
	n := 0
	for _, c := range s.RowCounts() {
		n += c
	}
	return n
}

// ErrText is the error message, or "" for a successful cycle.
func (s *Snapshot) ErrText() string {
	if s == nil || s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
