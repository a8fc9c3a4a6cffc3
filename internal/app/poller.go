package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
	"github.com/five82/sluice/internal/provider"
)

const (
	defaultPollInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second

	// TaskRefresh marks snapshots published by the poller.
	TaskRefresh = "refresh"
)

var tracer = otel.Tracer("sluice.app")

var pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sluice",
	Subsystem: "poller",
	Name:      "refreshes_total",
	Help:      "Subject refreshes by feed and result",
}, []string{"feed", "result"})

// Loader fetches the data for one mounted route.
type Loader[T any] func(ctx context.Context, route model.Params) (T, error)

// callError tags a loader failure with the API method that failed, so the
// record code names the right call.
type callError struct {
	method string
	err    error
}

func (e *callError) Error() string { return e.method + ": " + e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

func callFailed(method string, err error) error {
	return &callError{method: method, err: err}
}

type feed interface {
	name() string
	refresh(ctx context.Context) (failed bool)
}

// Poller refreshes every active subject of its feeds at a fixed cadence,
// backing off while refreshes keep failing.
type Poller struct {
	interval time.Duration
	logger   *slog.Logger
	feeds    []feed
	kick     chan struct{}
	failures atomic.Int32
	now      func() time.Time
}

// NewPoller creates a poller. interval <= 0 uses the default.
func NewPoller(interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Kick requests a refresh without waiting for the next tick.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Failures returns the number of consecutive rounds with a failed refresh.
func (p *Poller) Failures() int {
	return int(p.failures.Load())
}

// Offline reports whether the API has been unreachable for multiple rounds.
func (p *Poller) Offline() bool {
	return p.Failures() >= 2
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-p.kick:
			timer.Stop()
		}

		failed := p.refreshAll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		failures := 0
		if failed {
			failures = int(p.failures.Add(1))
		} else {
			p.failures.Store(0)
		}
		wait := calculateBackoff(failures, p.interval)
		if failed {
			p.logger.Warn("poll failed, backing off",
				slog.Int("consecutive_failures", failures),
				slog.Duration("next_poll", wait),
			)
		}
		timer.Reset(wait)
	}
}

func (p *Poller) refreshAll(ctx context.Context) bool {
	failed := false
	for _, f := range p.feeds {
		if f.refresh(ctx) {
			failed = true
		}
	}
	return failed
}

// calculateBackoff doubles base for every consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	wait := base
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

type hubFeed[T any] struct {
	feedName string
	hub      *provider.Hub[T]
	load     Loader[T]
	methods  []string
	clear    string
	logger   *slog.Logger
	now      func() time.Time
}

// AddFeed registers hub with the poller. Every active subject of the hub is
// refreshed through load. methods lists the API calls load makes; their error
// records are cleared after a successful refresh.
func AddFeed[T any](p *Poller, hub *provider.Hub[T], load Loader[T], methods ...string) {
	p.feeds = append(p.feeds, &hubFeed[T]{
		feedName: strings.Join(methods, "+"),
		hub:      hub,
		load:     load,
		methods:  methods,
		clear:    clearPattern(methods),
		logger:   p.logger,
		now:      p.now,
	})
}

// clearPattern matches every record code produced by methods.
func clearPattern(methods []string) string {
	alts := make([]string, 0, len(methods))
	for _, m := range methods {
		alts = append(alts, regexp2.Escape(pipelines.CodePrefix(pipelines.ClassPipelines, pipelines.VisibilityPublic, m)))
	}
	return "^(?:" + strings.Join(alts, "|") + ")"
}

func (f *hubFeed[T]) name() string { return f.feedName }

func (f *hubFeed[T]) refresh(ctx context.Context) bool {
	failed := false
	for _, target := range f.hub.Active() {
		if ctx.Err() != nil {
			return failed
		}
		if !f.refreshTarget(ctx, target) {
			failed = true
		}
	}
	return failed
}

// refreshTarget reports whether the subject was refreshed without an API error.
func (f *hubFeed[T]) refreshTarget(ctx context.Context, target provider.Target) bool {
	ctx, span := tracer.Start(ctx, "Poller.refresh", trace.WithAttributes(
		attribute.String("poller.feed", f.feedName),
		attribute.String("poller.subject", target.SubjectID),
	))
	defer span.End()

	if cur := f.hub.Snapshot(target.SubjectID); cur != nil && cur.Status == model.StatusInitialized {
		loading := cur.WithStatus(model.StatusLoading).WithTask(TaskRefresh)
		loading.UpdatedAt = f.now()
		f.hub.Publish(loading)
	}

	data, err := f.load(ctx, target.Route)
	if ctx.Err() != nil {
		return true
	}

	next := f.hub.Snapshot(target.SubjectID)
	if next == nil || !next.Route.Equal(target.Route) {
		// Remounted under another route while loading.
		return true
	}
	next.Task = TaskRefresh
	next.UpdatedAt = f.now()

	if err != nil {
		method := f.methods[0]
		cause := err
		var ce *callError
		if errors.As(err, &ce) {
			method, cause = ce.method, ce.err
		}
		code := pipelines.ErrorCode(pipelines.ClassPipelines, pipelines.VisibilityPublic, method, cause)
		if !next.Errors.HasCode(code) {
			next.Errors.RecordStatus(code, target.SubjectID, cause, pipelines.StatusCode(cause))
		}
		next.Status = model.StatusFailed
		f.hub.Publish(next)

		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		pollsTotal.WithLabelValues(f.feedName, "failed").Inc()
		f.logger.Debug("refresh failed",
			slog.String("subject", target.SubjectID),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return false
	}

	next.Data = data
	next.Status = model.StatusLoaded
	next.Errors.RemoveCodePattern(f.clear)
	f.hub.Publish(next)
	pollsTotal.WithLabelValues(f.feedName, "ok").Inc()
	return true
}
