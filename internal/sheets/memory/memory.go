// Package memory keeps mirrored tabs in process, for tests and for running
// the mirror without a spreadsheet.
package memory

import (
	"context"
	"sort"
	"sync"

	ports "utmreport/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	writes int
}

var _ ports.TabWriter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string][][]string)}
}

// WriteTab replaces the tab's contents with a copy of the records.
func (s *Store) WriteTab(ctx context.Context, tab ports.Tab) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([][]string, len(tab.Records))
	for i, rec := range tab.Records {
		records[i] = append([]string(nil), rec...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab.Name] = records
	s.writes++
	return nil
}

// Tab returns the records last written to name.
func (s *Store) Tab(name string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.tabs[name]
	return records, ok
}

// Names lists the written tabs, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tabs))
	for name := range s.tabs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Writes counts WriteTab calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
