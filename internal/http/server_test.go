package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"utmreport/internal/core"
	"utmreport/internal/report"
	"utmreport/internal/services"
	"utmreport/internal/storage"
)

type fakeSource struct {
	mu         sync.Mutex
	snap       *services.Snapshot
	next       *services.Snapshot
	refreshErr error
	refreshes  int
}

func (f *fakeSource) Latest() *services.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Refresh(_ context.Context) (*services.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.next != nil {
		f.snap = f.next
	}
	return f.snap, nil
}

type fakeRuns struct {
	limit int
	runs  []storage.RefreshRun
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]storage.RefreshRun, error) {
	f.limit = limit
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func testSnapshot(id uint64) *services.Snapshot {
	managers := core.NewTable(core.ManagersVariant)
	managers.Append(
		core.ManagerRow{ManagerName: "Ana", UTMSource: "google", CreatedAt: "05/03/2024"},
		core.ManagerRow{ManagerName: "Ana", UTMSource: "meta", CreatedAt: "06/03/2024"},
		core.ManagerRow{ManagerName: "Bruno", UTMSource: "google", CreatedAt: ""},
	)
	clients := core.NewTable(core.ClientsVariant)
	clients.Append(
		core.ClientRow{UTMSource: "google", ClientName: "Carla, Souza", ClientEmail: "carla@example.com"},
		core.ClientRow{UTMSource: "", ClientName: "Davi"},
	)
	completed := time.Date(2024, 3, 5, 13, 4, 5, 0, time.UTC)
	return &services.Snapshot{
		ID:          id,
		Tables:      []*core.Table{managers, clients},
		Warnings:    []report.Warning{{ManagerID: "m9", ManagerName: "Caio", Page: 2, Message: "unexpected status 502"}},
		StartedAt:   completed.Add(-2 * time.Second),
		CompletedAt: completed,
		Duration:    2 * time.Second,
	}
}

func newTestServer(t *testing.T, src SnapshotSource, runs RunLister) *Server {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	srv := NewServer(":0", src, Options{
		Location:        loc,
		RefreshInterval: 2 * time.Minute,
		Runs:            runs,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if srv.templates == nil {
		t.Fatalf("templates not parsed")
	}
	return srv
}

func do(srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	src := &fakeSource{}
	srv := newTestServer(t, src, nil)

	rr := do(srv, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before first snapshot: expected 503, got %d", rr.Code)
	}

	src.snap = testSnapshot(1)
	rr = do(srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body.Status != "ready" {
		t.Fatalf("status = %q", body.Status)
	}
}

func TestDashboardRendersDefaultVariant(t *testing.T) {
	srv := newTestServer(t, &fakeSource{snap: testSnapshot(1)}, nil)

	rr := do(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"UTM Sources por Gerente",
		"UTM Sources por Cliente",
		"tab--active",
		"Bruno",
		"10:04:05", // 13:04:05 UTC in São Paulo
		"3 linha(s)",
		"Caio (m9) page 2: unexpected status 502",
		`hx-trigger="every 120s"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Error("missing Cache-Control header")
	}
}

func TestDashboardNotReady(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	rr := do(srv, http.MethodGet, "/?variant=clients", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Carregando dados...") {
		t.Error("expected loading message before first snapshot")
	}
	if !strings.Contains(body, "Nenhum dado encontrado.") {
		t.Error("expected empty state")
	}
	if !strings.Contains(body, `hx-trigger="every 5s"`) {
		t.Error("expected short poll before first snapshot")
	}
}

func TestReportPartialFilter(t *testing.T) {
	srv := newTestServer(t, &fakeSource{snap: testSnapshot(1)}, nil)

	rr := do(srv, http.MethodGet, "/ui/report?variant=managers&utm=meta", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("partial must not render the page shell")
	}
	if !strings.Contains(body, "1 linha(s)") {
		t.Errorf("expected a single filtered row, body=%s", body)
	}
	if strings.Contains(body, "Bruno") {
		t.Error("filtered view leaked a google row")
	}
	if !strings.Contains(body, `<option value="meta" selected>`) {
		t.Error("filter option not selected")
	}

	// "Todas" selects everything
	rr = do(srv, http.MethodGet, "/ui/report?variant=managers&utm=Todas", nil)
	if !strings.Contains(rr.Body.String(), "3 linha(s)") {
		t.Error("Todas should select every row")
	}
}

func TestUnknownVariant(t *testing.T) {
	srv := newTestServer(t, &fakeSource{snap: testSnapshot(1)}, nil)

	for _, path := range []string{"/?variant=nope", "/ui/report?variant=nope", "/export.csv?variant=nope", "/api/report?variant=nope"} {
		rr := do(srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rr.Code)
		}
	}
}

func TestExportCSVRoundTrip(t *testing.T) {
	snap := testSnapshot(7)
	srv := newTestServer(t, &fakeSource{snap: snap}, nil)

	rr := do(srv, http.MethodGet, "/export.csv?variant=clients", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="utm_clientes.csv"` {
		t.Errorf("content disposition = %q", cd)
	}

	records, err := csv.NewReader(strings.NewReader(rr.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	want := snap.Table(core.VariantClients).Records()
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("record %d = %v, want %v", i, records[i], want[i])
		}
	}
	if records[1][1] != "Carla, Souza" {
		t.Errorf("embedded comma not preserved: %q", records[1][1])
	}
}

func TestExportCSVFilterAndCache(t *testing.T) {
	src := &fakeSource{snap: testSnapshot(1)}
	srv := newTestServer(t, src, nil)

	rr := do(srv, http.MethodGet, "/export.csv?variant=managers&utm=google", nil)
	records, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	for _, rec := range records[1:] {
		if rec[1] != "google" {
			t.Errorf("unexpected row %v", rec)
		}
	}
	if srv.exportCache.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", srv.exportCache.Size())
	}

	do(srv, http.MethodGet, "/export.csv?variant=managers&utm=google", nil)
	if srv.exportCache.Size() != 1 {
		t.Fatalf("repeat export should hit the cache, size = %d", srv.exportCache.Size())
	}

	// a new snapshot gets its own entry
	src.snap = testSnapshot(2)
	do(srv, http.MethodGet, "/export.csv?variant=managers&utm=google", nil)
	if srv.exportCache.Size() != 2 {
		t.Fatalf("cache size = %d, want 2", srv.exportCache.Size())
	}
}

func TestFilterKeepsSurroundingWhitespace(t *testing.T) {
	managers := core.NewTable(core.ManagersVariant)
	managers.Append(
		core.ManagerRow{ManagerName: "Ana", UTMSource: "google ", CreatedAt: "05/03/2024"},
		core.ManagerRow{ManagerName: "Bruno", UTMSource: "meta", CreatedAt: "06/03/2024"},
	)
	snap := &services.Snapshot{ID: 7, Tables: []*core.Table{managers}, CompletedAt: time.Now()}
	srv := newTestServer(t, &fakeSource{snap: snap}, nil)

	rr := do(srv, http.MethodGet, "/api/report?variant=managers", nil)
	var body apiReport
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.FilterValues) != 2 || body.FilterValues[0] != "google " {
		t.Fatalf("filter values = %q", body.FilterValues)
	}

	rr = do(srv, http.MethodGet, "/export.csv?variant=managers&utm="+url.QueryEscape("google "), nil)
	records, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	if records[1][0] != "Ana" {
		t.Errorf("unexpected row %v", records[1])
	}
}

func TestExportCSVNotReady(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	rr := do(srv, http.MethodGet, "/export.csv", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestAPIReport(t *testing.T) {
	srv := newTestServer(t, &fakeSource{snap: testSnapshot(3)}, nil)

	rr := do(srv, http.MethodGet, "/api/report?variant=clients", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got apiReport
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Variant != core.VariantClients || got.SnapshotID != 3 || got.RowCount != 2 {
		t.Fatalf("unexpected response %+v", got)
	}
	// empty utm values are not offered as filters
	if len(got.FilterValues) != 1 || got.FilterValues[0] != "google" {
		t.Fatalf("filter values = %v", got.FilterValues)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("warnings = %v", got.Warnings)
	}
}

func TestRefreshJSONAndRateLimit(t *testing.T) {
	src := &fakeSource{snap: testSnapshot(1), next: testSnapshot(2)}
	srv := newTestServer(t, src, nil)

	for i := 0; i < 6; i++ {
		rr := do(srv, http.MethodPost, "/refresh", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("refresh %d: status=%d", i+1, rr.Code)
		}
		if i == 0 {
			var got refreshResult
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.SnapshotID != 2 || got.Rows[core.VariantManagers] != 3 || got.Warnings != 1 {
				t.Fatalf("unexpected refresh result %+v", got)
			}
		}
	}

	rr := do(srv, http.MethodPost, "/refresh", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("7th refresh: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if src.refreshes != 6 {
		t.Fatalf("refreshes = %d, want 6", src.refreshes)
	}
}

func TestRefreshHTMXRendersPartial(t *testing.T) {
	src := &fakeSource{snap: testSnapshot(1)}
	srv := newTestServer(t, src, nil)

	rr := do(srv, http.MethodPost, "/refresh?variant=clients", http.Header{"Hx-Request": {"true"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `id="report"`) || !strings.Contains(body, "Carla, Souza") {
		t.Fatalf("expected clients partial, body=%s", body)
	}
}

func TestRefreshFailure(t *testing.T) {
	src := &fakeSource{snap: testSnapshot(1), refreshErr: errors.New("build report: context deadline exceeded")}
	srv := newTestServer(t, src, nil)

	rr := do(srv, http.MethodPost, "/refresh", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	// htmx keeps showing the last snapshot
	rr = do(srv, http.MethodPost, "/refresh", http.Header{"Hx-Request": {"true"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Bruno") {
		t.Fatalf("expected previous snapshot, got %d", rr.Code)
	}
}

func TestRuns(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)
	if rr := do(srv, http.MethodGet, "/api/runs", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("history disabled: expected 404, got %d", rr.Code)
	}

	runs := &fakeRuns{runs: []storage.RefreshRun{{ID: 2, SnapshotID: 2}, {ID: 1, SnapshotID: 1}}}
	srv = newTestServer(t, &fakeSource{}, runs)

	rr := do(srv, http.MethodGet, "/api/runs?limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		Runs []storage.RefreshRun `json:"runs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != 2 {
		t.Fatalf("runs = %+v", body.Runs)
	}

	do(srv, http.MethodGet, "/api/runs?limit=5000", nil)
	if runs.limit != 200 {
		t.Fatalf("limit = %d, want capped 200", runs.limit)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	rr := do(srv, http.MethodGet, "/static/style.css", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=3600") {
		t.Errorf("cache control = %q", cc)
	}
}

func TestReportURLEscapesFilter(t *testing.T) {
	got := reportURL("/ui/report", "managers", "a&b c")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Query().Get("utm") != "a&b c" || u.Query().Get("variant") != "managers" {
		t.Fatalf("unexpected url %q", got)
	}
	if strings.Contains(reportURL("/ui/report", "clients", ""), "utm=") {
		t.Error("empty filter should be omitted")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeSource{snap: testSnapshot(1)}, nil)
	do(srv, http.MethodGet, "/export.csv?variant=managers", nil)

	rr := do(srv, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `utmreport_export_requests_total{cache="miss",variant="managers"}`) {
		t.Error("export counter not exposed")
	}
}
