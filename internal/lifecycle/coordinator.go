package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/model"
)

// NormalizeTimeout bounds the write-back calls made after a subscription ends.
const NormalizeTimeout = 2 * time.Second

var (
	// ErrAlreadyMounted is returned by Mount when the coordinator is running.
	ErrAlreadyMounted = errors.New("lifecycle: coordinator already mounted")
	// ErrUnmounted is returned by Mount after Unmount.
	ErrUnmounted = errors.New("lifecycle: coordinator unmounted")
)

// Options configure a Coordinator.
type Options[T any] struct {
	// Subject is the identifier the provider knows the mounted view by.
	Subject string
	// Route is the initial route identity.
	Route model.Params
	// Modified decides whether a snapshot is a change. Defaults to
	// model.FieldsModified with model.DefaultFields.
	Modified model.ModifiedFunc[T]
	// RouteReuse, when set, restarts the lifecycle whenever a route identity
	// different from the current one is received.
	RouteReuse <-chan model.Params
	// HistoryDepth is the number of ancestors kept. Zero uses DefaultHistoryDepth.
	HistoryDepth int
	// Logger receives fault and lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Coordinator drives host lifecycle callbacks for one mounted subject from the
// provider's snapshot stream.
//
// Thread Safety: snapshots are processed on a single goroutine; Head, Current,
// Errors and Unmount are safe to call from any goroutine, including from
// callbacks. Head returns an immutable chain.
type Coordinator[T any] struct {
	provider Provider[T]
	host     any
	subject  string
	route    model.Params
	modified model.ModifiedFunc[T]
	routes   <-chan model.Params
	depth    int
	logger   *slog.Logger
	mountID  string
	errors   *errstore.Store

	// Owned by the processing goroutine.
	loaded bool
	ctx    context.Context

	headMu sync.RWMutex
	head   *Node[T]

	lifeMu   sync.Mutex
	started  bool
	cancel   context.CancelFunc
	closed   atomic.Bool
	done     chan struct{}
	teardown sync.Once
}

// New creates a coordinator for host. host may implement any of the callback
// interfaces in this package.
func New[T any](provider Provider[T], host any, opts Options[T]) *Coordinator[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	modified := opts.Modified
	if modified == nil {
		modified = model.FieldsModified[T]()
	}
	depth := opts.HistoryDepth
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	mountID := uuid.NewString()

	return &Coordinator[T]{
		provider: provider,
		host:     host,
		subject:  opts.Subject,
		route:    opts.Route.Clone(),
		modified: modified,
		routes:   opts.RouteReuse,
		depth:    depth,
		logger:   logger.With(slog.String("subject", opts.Subject), slog.String("mount", mountID)),
		mountID:  mountID,
		errors:   errstore.New(errstore.WithLogger(logger)),
		ctx:      context.Background(),
		done:     make(chan struct{}),
	}
}

// Subject returns the mounted subject identifier.
func (c *Coordinator[T]) Subject() string { return c.subject }

// MountID uniquely identifies this coordinator in logs.
func (c *Coordinator[T]) MountID() string { return c.mountID }

// Errors returns the coordinator's local error store. It mirrors the error
// records of the held snapshot and is disposed on teardown.
func (c *Coordinator[T]) Errors() *errstore.Store { return c.errors }

// Head returns the held snapshot node, nil before the first change.
func (c *Coordinator[T]) Head() *Node[T] {
	c.headMu.RLock()
	defer c.headMu.RUnlock()
	return c.head
}

// Current returns the held snapshot, nil before the first change.
func (c *Coordinator[T]) Current() *model.Snapshot[T] {
	if head := c.Head(); head != nil {
		return head.Snapshot
	}
	return nil
}

// Done is closed once teardown has completed.
func (c *Coordinator[T]) Done() <-chan struct{} { return c.done }

// Mount subscribes to the provider and starts processing snapshots until ctx
// is cancelled or Unmount is called.
func (c *Coordinator[T]) Mount(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed.Load() {
		return ErrUnmounted
	}
	if c.started {
		return ErrAlreadyMounted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	activeMounts.Inc()
	c.logger.Debug("lifecycle mounted", slog.Any("route", c.route))
	go c.run(runCtx)
	return nil
}

// Unmount stops delivery immediately. Teardown (idle flush, error store
// disposal) runs exactly once; wait on Done to observe it. Calling Unmount
// again, or from inside a callback, is safe.
func (c *Coordinator[T]) Unmount() {
	c.lifeMu.Lock()
	if c.closed.Swap(true) {
		c.lifeMu.Unlock()
		return
	}
	started, cancel := c.started, c.cancel
	c.lifeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		c.finish()
	}
}

func (c *Coordinator[T]) run(ctx context.Context) {
	defer activeMounts.Dec()
	defer c.finish()

	route := c.route
	for {
		next, restart := c.session(ctx, route)
		if !restart {
			return
		}
		route = next
	}
}

// session runs one subscription for route. It returns the next route and true
// when the route identity changed, or false when the coordinator is stopping.
func (c *Coordinator[T]) session(ctx context.Context, route model.Params) (model.Params, bool) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = subCtx

	c.initialize(subCtx, route)

	var stream <-chan *model.Snapshot[T]
	if f := guard(StepSubscribe, func() error {
		var err error
		stream, err = c.provider.Model(subCtx, c.subject, route)
		return err
	}); f != nil {
		c.logFault(*f)
	}

	routes := c.routes
	for {
		select {
		case <-ctx.Done():
			return nil, false

		case next, ok := <-routes:
			if !ok {
				routes = nil
				continue
			}
			if next.Equal(route) {
				continue
			}
			c.logger.Debug("route identity changed, restarting lifecycle",
				slog.Any("from", route),
				slog.Any("to", next),
			)
			cancel()
			c.reset()
			return next.Clone(), true

		case s, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			c.deliver(subCtx, s)
		}
	}
}

// initialize asks the provider to init the subject and runs OnInit with the
// result.
func (c *Coordinator[T]) initialize(ctx context.Context, route model.Params) {
	var initial *model.Snapshot[T]
	if f := guard(StepProvide, func() error {
		var err error
		initial, err = c.provider.Init(ctx, c.subject, route)
		return err
	}); f != nil {
		c.logFault(*f)
		return
	}
	if initial == nil {
		c.logger.Debug("provider returned no initial snapshot; skipping OnInit")
		return
	}

	var r Report
	if h, ok := c.host.(Initializer[T]); ok {
		task := initial.Task
		r.callback(StepInit, func() error { return h.OnInit(initial, task) })
	}
	for _, cb := range r.Callbacks {
		callbacksTotal.WithLabelValues(c.subject, cb).Inc()
	}
	c.logFaults(r.Faults)
}

func (c *Coordinator[T]) deliver(ctx context.Context, s *model.Snapshot[T]) {
	start := time.Now()
	ctx, span := startProcessSpan(ctx, c.subject, c.mountID)
	defer span.End()

	r := c.process(ctx, s)
	recordReport(span, c.subject, r, time.Since(start).Seconds())
	c.logFaults(r.Faults)
}

// process runs the lifecycle state machine for one snapshot. Every callback and
// the normalization step are isolated; their failures are returned in the
// report and never stop the remaining steps.
func (c *Coordinator[T]) process(ctx context.Context, s *model.Snapshot[T]) Report {
	var r Report
	if s == nil || c.closed.Load() || ctx.Err() != nil {
		r.Dropped = true
		return r
	}
	task := s.Task

	if !c.loaded {
		c.loaded = true
		r.callback(dispatchInitialLoad(c.host, s, task))
	}

	if h, ok := c.host.(Loader[T]); ok {
		r.callback(StepLoad, func() error { return h.OnLoad(s, task) })
	}

	current := c.Current()
	modified := true
	if !r.run(StepModified, func() error {
		modified = c.modified(s, current)
		return nil
	}) {
		modified = true
	}
	r.Modified = modified
	if !modified {
		return r
	}

	previous := current.ErrorRecords()
	c.errors.Purge(s.Errors)
	c.headMu.Lock()
	c.head = push(c.head, s, c.depth)
	c.headMu.Unlock()

	if s.Status == model.StatusFailed {
		distinct := s.Errors.DistinctErrorRecords(previous)
		r.callback(dispatchFailure(c.host, s, task, distinct))
	} else if h, ok := c.host.(Changer[T]); ok {
		r.callback(StepChange, func() error { return h.OnChange(s, task) })
	}

	r.run(StepNormalize, func() error {
		normalized := s.WithTask("")
		c.headMu.Lock()
		c.head = &Node[T]{Snapshot: normalized, Previous: c.head.Previous}
		c.headMu.Unlock()
		return c.provider.Update(ctx, normalized)
	})
	return r
}

// reset flushes the held snapshot to idle and clears per-subscription state
// ahead of a route restart. Listeners on the local error store survive.
func (c *Coordinator[T]) reset() {
	c.flushIdle()
	c.headMu.Lock()
	c.head = nil
	c.headMu.Unlock()
	c.loaded = false
	c.errors.Clear()
}

func (c *Coordinator[T]) flushIdle() {
	current := c.Current()
	if current == nil {
		return
	}
	idle := current.WithStatus(model.StatusIdle).WithTask("")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), NormalizeTimeout)
	defer cancel()
	if f := guard(StepIdle, func() error { return c.provider.Idle(ctx, idle) }); f != nil {
		c.logFault(*f)
	}
}

// finish performs teardown exactly once.
func (c *Coordinator[T]) finish() {
	c.teardown.Do(func() {
		c.closed.Store(true)
		c.flushIdle()
		c.errors.Dispose()
		c.logger.Debug("lifecycle unmounted")
		close(c.done)
	})
}

func (c *Coordinator[T]) logFaults(faults []Fault) {
	for _, f := range faults {
		c.logFault(f)
	}
}

func (c *Coordinator[T]) logFault(f Fault) {
	var perr *PanicError
	if errors.As(f.Err, &perr) {
		c.logger.Error("lifecycle step panicked",
			slog.String("step", f.Step),
			slog.Any("panic", perr.Value),
			slog.String("stack", perr.StackTrace),
		)
		return
	}
	c.logger.Warn("lifecycle step failed",
		slog.String("step", f.Step),
		slog.String("error", f.Err.Error()),
	)
}
