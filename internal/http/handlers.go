package http

import (
	"net/http"
	"time"

	applog "utmreport/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once a snapshot has been published.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	status, code := "ready", http.StatusOK

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	snap := s.source.Latest()
	if snap == nil {
		checks["snapshot"] = "pending"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["snapshot"] = map[string]any{
			"id":           snap.ID,
			"completed_at": snap.CompletedAt.Format(time.RFC3339),
			"rows":         snap.RowCounts(),
			"error":        snap.ErrText(),
		}
	}

	checks["http"] = s.tracer.GetMetrics()
	checks["rate_limiter"] = s.limiter.GetMetrics()
	checks["export_cache"] = map[string]int{"entries": s.exportCache.Size(), "bytes": s.exportCache.Weight()}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type refreshResult struct {
	SnapshotID uint64         `json:"snapshot_id"`
	Rows       map[string]int `json:"rows"`
	Warnings   int            `json:"warnings"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// handleRefresh runs a cycle on demand. htmx callers get the re-rendered
// report section, everyone else a JSON summary.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	snap, err := s.source.Refresh(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Manual refresh failed",
			applog.NewFields().WithOperation(applog.OpBuild).WithError(err).ToSlice()...)
		if isHTMX(r) {
			// keep showing the previous snapshot
			s.render(w, r, "report")
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	logger.InfoContext(r.Context(), "Manual refresh completed",
		applog.FieldSnapshotID, snap.ID,
		applog.FieldRows, snap.TotalRows())

	if isHTMX(r) {
		s.render(w, r, "report")
		return
	}
	writeJSON(w, http.StatusOK, refreshResult{
		SnapshotID: snap.ID,
		Rows:       snap.RowCounts(),
		Warnings:   len(snap.Warnings),
		DurationMs: snap.Duration.Milliseconds(),
		Error:      snap.ErrText(),
	})
}

// handleRuns lists recent refresh runs from the history database.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "refresh history disabled"})
		return
	}

	runs, err := s.runs.RecentRuns(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "List refresh runs failed",
			applog.FieldError, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read history"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
