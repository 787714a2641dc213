// Package report walks the tracker and flattens transactions into report
// tables.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"utmreport/internal/core"
	applog "utmreport/internal/log"
	"utmreport/internal/tracker"
)

// ErrManagerIndex wraps any failure to fetch the manager index. The cycle
// is abandoned and no transaction requests are issued.
var ErrManagerIndex = errors.New("manager index unavailable")

// Source is the upstream the builder reads from.
type Source interface {
	ListManagers(ctx context.Context) ([]core.Manager, error)
	tracker.PageFetcher
}

// Warning records a manager whose walk ended early.
type Warning struct {
	ManagerID   string `json:"manager_id"`
	ManagerName string `json:"manager_name"`
	Page        int    `json:"page"`
	Message     string `json:"message"`
}

func (w Warning) String() string {
	if w.Page > 0 {
		return fmt.Sprintf("%s (%s) page %d: %s", w.ManagerName, w.ManagerID, w.Page, w.Message)
	}
	return fmt.Sprintf("%s (%s): %s", w.ManagerName, w.ManagerID, w.Message)
}

// Result is the output of one build: one table per configured variant, in
// configuration order.
type Result struct {
	Tables   []*core.Table
	Warnings []Warning
	Managers int
}

// Table returns the table of the named variant, or nil.
func (r *Result) Table(variant string) *core.Table {
	if r == nil {
		return nil
	}
	for _, t := range r.Tables {
		if t.Variant().Name == variant {
			return t
		}
	}
	return nil
}

// RowCounts maps variant name to row count.
func (r *Result) RowCounts() map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for _, t := range r.Tables {
		out[t.Variant().Name] = t.Len()
	}
	return out
}

// Options configures a Builder.
type Options struct {
	Variants      []core.Variant
	MaxPages      int
	ManagerBudget time.Duration
	Logger        *applog.Logger
}

// Builder runs one full collection pass. Requests are issued strictly one
// at a time.
type Builder struct {
	source   Source
	variants []core.Variant
	pageOpts tracker.PaginatorOptions
	logger   *applog.Logger
}

func NewBuilder(source Source, opts Options) *Builder {
	variants := opts.Variants
	if len(variants) == 0 {
		variants = []core.Variant{core.ManagersVariant, core.ClientsVariant}
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentBuilder)
	}
	return &Builder{
		source:   source,
		variants: variants,
		pageOpts: tracker.PaginatorOptions{MaxPages: opts.MaxPages, Budget: opts.ManagerBudget},
		logger:   logger,
	}
}

func (b *Builder) Variants() []core.Variant {
	return b.variants
}

// Build fetches every manager's transactions and returns the projected
// tables. A manager index failure returns a Result with empty tables and
// an error wrapping ErrManagerIndex. A cancelled context returns a nil
// Result and the context error.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	res := &Result{Tables: make([]*core.Table, len(b.variants))}
	for i, v := range b.variants {
		res.Tables[i] = core.NewTable(v)
	}

	managers, err := b.source.ListManagers(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		b.logger.ErrorContext(ctx, "Failed to fetch manager index",
			applog.NewFields().WithOperation(applog.OpFetchManagers).WithError(err).ToSlice()...)
		return res, fmt.Errorf("%w: %w", ErrManagerIndex, err)
	}
	res.Managers = len(managers)

	b.logger.DebugContext(ctx, "Fetched manager index", "managers", len(managers))

	for _, m := range managers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.Validate(); err != nil {
			b.warn(ctx, res, Warning{ManagerName: m.Name, Message: err.Error()})
			continue
		}
		if err := b.collectManager(ctx, m, res); err != nil {
			return nil, err
		}
	}

	for i, t := range res.Tables {
		if t.Variant().Dedupe {
			res.Tables[i] = t.Dedupe()
		}
	}
	return res, nil
}

// collectManager walks one manager's pages. Only a context error is
// returned; anything else becomes a warning and the rows gathered so far
// are kept.
func (b *Builder) collectManager(ctx context.Context, m core.Manager, res *Result) error {
	p := tracker.NewPaginator(b.source, m.ID, b.pageOpts)
	for {
		txs, err := p.Next(ctx)
		if errors.Is(err, tracker.ErrDone) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.warn(ctx, res, Warning{
				ManagerID:   m.ID,
				ManagerName: m.Name,
				Page:        p.Page(),
				Message:     err.Error(),
			})
			return nil
		}
		for _, tx := range txs {
			for _, t := range res.Tables {
				t.Append(t.Variant().Project(m, tx))
			}
		}
	}
}

func (b *Builder) warn(ctx context.Context, res *Result, w Warning) {
	res.Warnings = append(res.Warnings, w)
	b.logger.WarnContext(ctx, "Manager walk ended early",
		applog.NewFields().
			WithOperation(applog.OpFetchPage).
			WithManager(w.ManagerID, w.ManagerName, w.Page).
			WithError(errors.New(w.Message)).
			ToSlice()...)
}
