package core

import "github.com/samber/lo"

// Table is an ordered sequence of rows of a single variant. A table is
// mutated only while a build is in progress; Dedupe and Filter return new
// tables.
type Table struct {
	variant Variant
	rows    []Row
}

func NewTable(v Variant) *Table {
	return &Table{variant: v}
}

func (t *Table) Variant() Variant {
	return t.variant
}

func (t *Table) Append(rows ...Row) {
	t.rows = append(t.rows, rows...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns a copy of the rows in insertion order.
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Dedupe keeps the first occurrence of each distinct row. Rows compare by
// value, so row types must be comparable.
func (t *Table) Dedupe() *Table {
	return &Table{variant: t.variant, rows: lo.Uniq(t.rows)}
}

// Filter keeps rows whose filter column equals value. An empty value or
// AllValues selects every row.
func (t *Table) Filter(value string) *Table {
	idx := t.variant.FilterIndex()
	if value == "" || value == AllValues || idx < 0 {
		return &Table{variant: t.variant, rows: t.Rows()}
	}
	rows := lo.Filter(t.rows, func(r Row, _ int) bool {
		return r.Fields()[idx] == value
	})
	return &Table{variant: t.variant, rows: rows}
}

// FilterValues lists the distinct non-empty values of the filter column in
// first-seen order.
func (t *Table) FilterValues() []string {
	idx := t.variant.FilterIndex()
	if idx < 0 {
		return nil
	}
	values := lo.Map(t.rows, func(r Row, _ int) string {
		return r.Fields()[idx]
	})
	return lo.Uniq(lo.Compact(values))
}

// Records returns the header followed by every row as strings.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, append([]string(nil), t.variant.Columns...))
	for _, r := range t.rows {
		out = append(out, r.Fields())
	}
	return out
}
