package sheets

import (
	"context"
)

// Ports for outbound adapters.
type (
	// Tab is one sheet tab's full contents: header row first.
	Tab struct {
		Name    string
		Records [][]string
	}

	// TabWriter replaces a tab's contents, creating the tab when missing.
	TabWriter interface {
		WriteTab(ctx context.Context, tab Tab) error
	}
)
