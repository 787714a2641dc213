package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ServiceName = "utmreport"
)

// Refresh cycle results.
const (
	ResultOK         = "ok"
	ResultIndexError = "index_error"
	ResultFailed     = "failed"
)

var (
	RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "refresh", "cycles_total"),
		Help: "Refresh cycles by result",
	}, []string{"result"})
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(ServiceName, "refresh", "duration_seconds"),
		Help:    "Duration of refresh cycles in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	ReportRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(ServiceName, "report", "rows"),
		Help: "Rows in the latest snapshot per variant",
	}, []string{"variant"})
	ReportWarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(ServiceName, "report", "manager_warnings"),
		Help: "Managers whose walk ended early in the latest snapshot",
	})
	SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "sink", "failures_total"),
		Help: "Failed snapshot publications per sink",
	}, []string{"sink"})
	ExportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "export", "requests_total"),
		Help: "CSV exports by variant and cache outcome",
	}, []string{"variant", "cache"})
)
