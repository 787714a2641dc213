package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"utmreport/internal/core"
	applog "utmreport/internal/log"
	"utmreport/internal/observability"
)

// renderCSV writes the header and rows as comma separated UTF-8.
func renderCSV(t *core.Table) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(t.Records()); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportCacheKey(snapshotID uint64, variant, filter string) string {
	return strconv.FormatUint(snapshotID, 10) + "\x1f" + variant + "\x1f" + filter
}

// handleExportCSV downloads the filtered view of the selected variant.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	v, err := s.selectVariant(r)
	if errors.Is(err, errUnknownVariant) {
		http.Error(w, "unknown report variant", http.StatusNotFound)
		return
	}
	snap := s.source.Latest()
	if snap == nil {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "report not ready", http.StatusServiceUnavailable)
		return
	}
	tbl := snap.Table(v.Name)
	if tbl == nil {
		tbl = core.NewTable(v)
	}

	filter := parseFilter(r)
	key := exportCacheKey(snap.ID, v.Name, filter)
	data, hit := s.exportCache.Get(key)
	if !hit {
		data, err = renderCSV(tbl.Filter(filter))
		if err != nil {
			logger.ErrorContext(r.Context(), "CSV export failed",
				applog.NewFields().WithOperation(applog.OpExport).WithError(err).ToSlice()...)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		s.exportCache.Set(key, data)
	}
	observability.ExportRequests.WithLabelValues(v.Name, cacheOutcome(hit)).Inc()

	logger.DebugContext(r.Context(), "CSV export",
		applog.FieldVariant, v.Name,
		applog.FieldSnapshotID, snap.ID,
		"filter", filter,
		"cache_hit", hit,
		"bytes", len(data))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", v.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func cacheOutcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

type apiReport struct {
	Variant      string     `json:"variant"`
	Title        string     `json:"title"`
	Columns      []string   `json:"columns"`
	Filter       string     `json:"filter"`
	FilterValues []string   `json:"filter_values"`
	Rows         [][]string `json:"rows"`
	RowCount     int        `json:"row_count"`
	SnapshotID   uint64     `json:"snapshot_id"`
	CompletedAt  time.Time  `json:"completed_at"`
	Warnings     []string   `json:"warnings"`
	Error        string     `json:"error,omitempty"`
}

// handleAPIReport serves the filtered view as JSON.
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	v, err := s.selectVariant(r)
	if errors.Is(err, errUnknownVariant) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	snap := s.source.Latest()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}

	view := s.buildReportView(snap, v, parseFilter(r))
	resp := apiReport{
		Variant:      v.Name,
		Title:        v.Title,
		Columns:      v.Columns,
		Filter:       view.Filter,
		FilterValues: view.FilterValues,
		Rows:         view.Rows,
		RowCount:     view.RowCount,
		SnapshotID:   snap.ID,
		CompletedAt:  snap.CompletedAt,
		Warnings:     view.Warnings,
		Error:        view.Error,
	}
	if resp.Rows == nil {
		resp.Rows = [][]string{}
	}
	if resp.FilterValues == nil {
		resp.FilterValues = []string{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
