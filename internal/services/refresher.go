package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	applog "utmreport/internal/log"
	"utmreport/internal/observability"
	"utmreport/internal/report"
)

// ReportBuilder produces the tables of one cycle.
type ReportBuilder interface {
	Build(ctx context.Context) (*report.Result, error)
}

// Sink receives every published snapshot.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap *Snapshot) error
}

// RefresherConfig holds configuration for the refresher
type RefresherConfig struct {
	// Interval between scheduled cycles (default: 2m)
	Interval time.Duration

	// BuildTimeout bounds a single cycle (default: 5m)
	BuildTimeout time.Duration

	// SinkTimeout bounds each sink's Publish call (default: 30s)
	SinkTimeout time.Duration
}

// DefaultRefresherConfig returns sensible defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval:     2 * time.Minute,
		BuildTimeout: 5 * time.Minute,
		SinkTimeout:  30 * time.Second,
	}
}

// Refresher rebuilds the report on a timer and on demand, publishing each
// result as a new Snapshot.
type Refresher struct {
	builder ReportBuilder
	sinks   []Sink
	config  RefresherConfig
	logger  *applog.Logger
	now     func() time.Time

	latest atomic.Pointer[Snapshot]
	seq    atomic.Uint64
	group  singleflight.Group

	// Lifecycle management
	mu      sync.Mutex
	running bool
	loopCtx context.Context
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefresher creates a new refresher. Zero config values take defaults.
func NewRefresher(builder ReportBuilder, config RefresherConfig, logger *applog.Logger, sinks ...Sink) *Refresher {
	defaults := DefaultRefresherConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = defaults.BuildTimeout
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = defaults.SinkTimeout
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentRefresher)
	}
	return &Refresher{
		builder: builder,
		sinks:   sinks,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Latest returns the newest snapshot, nil before the first cycle completes.
func (r *Refresher) Latest() *Snapshot {
	return r.latest.Load()
}

// Interval is the time between scheduled cycles.
func (r *Refresher) Interval() time.Duration {
	return r.config.Interval
}

// Start runs a cycle immediately and then every Interval. Returns an error
// if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	r.running = true
	r.loopCtx = loopCtx
	r.stopCh = stopCh
	r.doneCh = doneCh
	r.mu.Unlock()

	go r.runLoop(loopCtx, cancel, stopCh, doneCh)

	r.logger.InfoContext(ctx, "Refresher started",
		"interval", r.config.Interval,
		"build_timeout", r.config.BuildTimeout,
		"sinks", len(r.sinks))

	return nil
}

// Stop stops the loop and waits for the current cycle, honouring the ctx
// deadline. It is safe to call concurrently; every caller waits for the
// same loop to exit.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh = nil
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Refresher stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Refresher stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the refresh loop is active
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// runLoop clears running when it exits, including after a timed out Stop.
func (r *Refresher) runLoop(loopCtx context.Context, cancel context.CancelFunc, stopCh, doneCh chan struct{}) {
	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.loopCtx = nil
		r.mu.Unlock()
		close(doneCh)
	}()

	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.scheduled(loopCtx)

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			r.scheduled(loopCtx)
		}
	}
}

func (r *Refresher) scheduled(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "Scheduled refresh failed",
			applog.NewFields().WithOperation(applog.OpBuild).WithError(err).ToSlice()...)
	}
}

// Refresh runs a cycle now. Concurrent callers share the in-flight cycle,
// so cycles never overlap. ctx only bounds how long this caller waits; the
// cycle runs on the refresher's context and ends on Stop or BuildTimeout.
// The returned snapshot may carry Err when the manager index was
// unavailable; a cancelled or timed out build returns an error and
// publishes nothing.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	cycleCtx := r.cycleContext(ctx)
	ch := r.group.DoChan("refresh", func() (any, error) {
		return r.cycle(cycleCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cycleContext is the loop context while running, otherwise ctx detached
// from its cancellation.
func (r *Refresher) cycleContext(ctx context.Context) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running && r.loopCtx != nil {
		return r.loopCtx
	}
	return context.WithoutCancel(ctx)
}

func (r *Refresher) cycle(ctx context.Context) (*Snapshot, error) {
	buildCtx, cancel := context.WithTimeout(ctx, r.config.BuildTimeout)
	defer cancel()

	started := r.now()
	res, err := r.builder.Build(buildCtx)
	if err != nil && !errors.Is(err, report.ErrManagerIndex) {
		observability.RefreshCycles.WithLabelValues(observability.ResultFailed).Inc()
		return nil, fmt.Errorf("build report: %w", err)
	}

	completed := r.now()
	snap := &Snapshot{
		ID:          r.seq.Add(1),
		Err:         err,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
	}
	if res != nil {
		snap.Tables = res.Tables
		snap.Warnings = res.Warnings
	}
	r.latest.Store(snap)
	recordSnapshot(snap)

	fields := applog.NewFields().
		WithOperation(applog.OpBuild).
		WithSnapshot(snap.ID, snap.TotalRows(), len(snap.Warnings))
	if snap.Err != nil {
		r.logger.ErrorContext(ctx, "Refresh cycle failed", fields.WithError(snap.Err).ToSlice()...)
	} else {
		r.logger.InfoContext(ctx, "Refresh cycle completed",
			append(fields.ToSlice(), "duration", snap.Duration)...)
	}

	r.publish(context.WithoutCancel(ctx), snap)
	return snap, nil
}

// publish hands the snapshot to every sink. Sink errors are logged only.
func (r *Refresher) publish(ctx context.Context, snap *Snapshot) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, r.config.SinkTimeout)
		err := s.Publish(sctx, snap)
		cancel()
		if err != nil {
			observability.SinkFailures.WithLabelValues(s.Name()).Inc()
			r.logger.WarnContext(ctx, "Sink publish failed",
				append(applog.NewFields().
					WithOperation(applog.OpPublish).
					WithError(err).
					ToSlice(), "sink", s.Name(), applog.FieldSnapshotID, snap.ID)...)
		}
	}
}

func recordSnapshot(snap *Snapshot) {
	result := observability.ResultOK
	if snap.Err != nil {
		result = observability.ResultIndexError
	}
	observability.RefreshCycles.WithLabelValues(result).Inc()
	observability.RefreshDuration.Observe(snap.Duration.Seconds())
	observability.ReportWarnings.Set(float64(len(snap.Warnings)))
	for variant, n := range snap.RowCounts() {
		observability.ReportRows.WithLabelValues(variant).Set(float64(n))
	}
}
