package http

import (
	"errors"
	"net/http"

	"utmreport/internal/core"
	applog "utmreport/internal/log"
	"utmreport/internal/services"
)

// notReadyPollSeconds is how often the page polls before the first snapshot.
const notReadyPollSeconds = 5

type tabView struct {
	Name   string
	Title  string
	Active bool
}

type reportView struct {
	Tabs         []tabView
	Variant      core.Variant
	Filter       string
	FilterAll    bool
	AllValues    string
	FilterValues []string
	Rows         [][]string
	RowCount     int
	Ready        bool
	LastUpdated  string
	Error        string
	Warnings     []string
	PollSeconds  int
	ReportURL    string
}

// buildReportView renders nothing itself; it flattens the snapshot into what
// the templates need.
func (s *Server) buildReportView(snap *services.Snapshot, v core.Variant, filter string) reportView {
	view := reportView{
		Variant:     v,
		Filter:      filter,
		FilterAll:   filter == "",
		AllValues:   core.AllValues,
		PollSeconds: int(s.interval.Seconds()),
		ReportURL:   reportURL("/ui/report", v.Name, filter),
	}
	for _, tv := range s.variants {
		view.Tabs = append(view.Tabs, tabView{Name: tv.Name, Title: tv.Title, Active: tv.Name == v.Name})
	}

	if snap == nil {
		view.PollSeconds = notReadyPollSeconds
		return view
	}

	view.Ready = true
	view.LastUpdated = snap.CompletedAt.In(s.location).Format("15:04:05")
	view.Error = snap.ErrText()
	for _, w := range snap.Warnings {
		view.Warnings = append(view.Warnings, w.String())
	}

	tbl := snap.Table(v.Name)
	if tbl == nil {
		return view
	}
	view.FilterValues = tbl.FilterValues()
	filtered := tbl.Filter(filter)
	view.RowCount = filtered.Len()
	records := filtered.Records()
	view.Rows = records[1:]
	return view
}

// handleDashboard renders the full page for the selected variant.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "dashboard_page")
}

// handleReportPartial renders the report section polled by htmx.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "report")
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string) {
	logger := applog.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	v, err := s.selectVariant(r)
	if errors.Is(err, errUnknownVariant) {
		http.Error(w, "Relatório desconhecido", http.StatusNotFound)
		return
	}

	view := s.buildReportView(s.source.Latest(), v, parseFilter(r))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, view); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			applog.NewFields().WithOperation(applog.OpRender).WithError(err).ToSlice()...)
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}
