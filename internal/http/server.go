package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"utmreport/internal/cache"
	"utmreport/internal/core"
	applog "utmreport/internal/log"
	"utmreport/internal/middleware/ratelimit"
	"utmreport/internal/middleware/security"
	"utmreport/internal/middleware/trace"
	"utmreport/internal/services"
	"utmreport/internal/storage"
	appweb "utmreport/web"
)

// SnapshotSource is the refresher as seen by the handlers.
type SnapshotSource interface {
	Latest() *services.Snapshot
	Refresh(ctx context.Context) (*services.Snapshot, error)
}

// RunLister reads refresh history.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RefreshRun, error)
}

// Options configures the dashboard server.
type Options struct {
	Variants        []core.Variant
	Location        *time.Location
	RefreshInterval time.Duration
	// Runs is nil when refresh history is disabled.
	Runs      RunLister
	RateLimit ratelimit.Config
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	source    SnapshotSource
	runs      RunLister
	variants  []core.Variant
	location  *time.Location
	interval  time.Duration
	logger    *applog.Logger

	ipResolver *security.IPResolver
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	headers    *security.HeadersMiddleware

	// Rendered CSV exports keyed by snapshot, variant and filter.
	exportCache  *cache.LRUCache[[]byte]
	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, source SnapshotSource, opts Options) *Server {
	if len(opts.Variants) == 0 {
		opts.Variants = []core.Variant{core.ManagersVariant, core.ClientsVariant}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = applog.Default(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		source:       source,
		runs:         opts.Runs,
		variants:     opts.Variants,
		location:     opts.Location,
		interval:     opts.RefreshInterval,
		logger:       opts.Logger,
		ipResolver:   security.NewIPResolver(),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		headers:      security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		exportCache:  cache.NewBytesCache(64, 32<<20, 10*time.Minute),
		cacheManager: cache.NewManager(opts.Logger),
	}
	s.tracer = trace.NewMiddleware(s.ipResolver.ClientIP, opts.Logger)
	s.cacheManager.Register(s.exportCache)
	s.cacheManager.StartCleanup(5 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", applog.FieldError, err.Error())
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /{$}", s.page(s.handleDashboard))
	mux.Handle("GET /ui/report", s.page(s.handleReportPartial))
	mux.Handle("GET /export.csv", s.page(s.handleExportCSV))
	mux.Handle("GET /api/report", s.page(s.handleAPIReport))
	mux.Handle("GET /api/runs", s.page(s.handleRuns))

	refresh := s.limiter.Middleware(s.ipResolver.ClientIP, s.onRateLimited)(http.HandlerFunc(s.handleRefresh))
	mux.Handle("POST /refresh", s.tracer.Middleware(s.headers.Middleware(security.NoStore(refresh))))

	return s
}

// page wraps a handler with tracing, security headers and no-store.
func (s *Server) page(h http.HandlerFunc) http.Handler {
	return s.tracer.Middleware(s.headers.Middleware(security.NoStore(h)))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.ipResolver.ClientIP(r),
		applog.FieldPath, r.URL.Path)
	http.Error(w, "Limite de atualizações atingido. Tente novamente em instantes.", http.StatusTooManyRequests)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
