package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"utmreport/internal/core"
)

var (
	// ErrDone marks the normal end of a manager's pages.
	ErrDone = errors.New("no more pages")
	// ErrPageLimit is returned when the walk reaches the configured page cap.
	ErrPageLimit = errors.New("page limit reached")
	// ErrBudgetExceeded is returned when the walk outlives its time budget.
	ErrBudgetExceeded = errors.New("time budget exceeded")
)

// PageFetcher fetches one page of a manager's transactions.
type PageFetcher interface {
	TransactionsPage(ctx context.Context, managerID string, page int) (Page, error)
}

// Paginator yields a manager's transaction pages lazily, starting at page 1.
// The sequence ends with ErrDone on an empty page and with the fetch error
// on any failure. MaxPages and Budget bound the walk against an upstream
// that never returns an empty page.
type Paginator struct {
	fetcher   PageFetcher
	managerID string
	maxPages  int
	budget    time.Duration
	now       func() time.Time

	page     int
	started  time.Time
	finished error
}

// PaginatorOptions bounds a Paginator. Zero values disable a bound.
type PaginatorOptions struct {
	MaxPages int
	Budget   time.Duration
}

func NewPaginator(f PageFetcher, managerID string, opts PaginatorOptions) *Paginator {
	return &Paginator{
		fetcher:   f,
		managerID: managerID,
		maxPages:  opts.MaxPages,
		budget:    opts.Budget,
		now:       time.Now,
	}
}

// Page returns the number of the last page requested, 0 before the first call.
func (p *Paginator) Page() int {
	return p.page
}

// Reset rewinds the paginator to page 1.
func (p *Paginator) Reset() {
	p.page = 0
	p.started = time.Time{}
	p.finished = nil
}

// Next fetches the next page. Once it returns an error, every later call
// returns the same error until Reset.
func (p *Paginator) Next(ctx context.Context) ([]core.Transaction, error) {
	if p.finished != nil {
		return nil, p.finished
	}
	if p.started.IsZero() {
		p.started = p.now()
	}
	if p.maxPages > 0 && p.page >= p.maxPages {
		return nil, p.finish(fmt.Errorf("manager %s: %w (%d)", p.managerID, ErrPageLimit, p.maxPages))
	}
	if p.budget > 0 && p.now().Sub(p.started) > p.budget {
		return nil, p.finish(fmt.Errorf("manager %s: %w (%s)", p.managerID, ErrBudgetExceeded, p.budget))
	}
	if err := ctx.Err(); err != nil {
		return nil, p.finish(err)
	}

	p.page++
	page, err := p.fetcher.TransactionsPage(ctx, p.managerID, p.page)
	if err != nil {
		return nil, p.finish(err)
	}
	if len(page.Transactions) == 0 {
		return nil, p.finish(ErrDone)
	}
	return page.Transactions, nil
}

func (p *Paginator) finish(err error) error {
	p.finished = err
	return err
}
