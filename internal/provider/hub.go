package provider

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/five82/sluice/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 4

var droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sluice",
	Subsystem: "provider",
	Name:      "dropped_snapshots_total",
	Help:      "Queued snapshots replaced by newer ones before a subscriber read them",
}, []string{"subject"})

// Target is an active subject and the route it is mounted under.
type Target struct {
	SubjectID string
	Route     model.Params
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	buffer     int
	logger     *slog.Logger
	onActivate func()
}

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnActivate registers fn to run whenever a subject is initialized, so a
// poller can refresh it without waiting for the next tick.
func WithOnActivate(fn func()) Option {
	return func(o *options) {
		o.onActivate = fn
	}
}

type subject[T any] struct {
	snapshot *model.Snapshot[T]
	active   bool
	subs     map[string]chan *model.Snapshot[T]
}

// Hub is an in-memory model provider. It holds the latest snapshot for each
// subject and fans published snapshots out to every subscriber.
//
// Subscriber queues are bounded. When a queue is full the oldest queued
// snapshot is discarded, so a slow consumer always ends on the newest state.
type Hub[T any] struct {
	mu       sync.RWMutex
	subjects map[string]*subject[T]
	opts     options
}

// NewHub creates an empty hub.
func NewHub[T any](opts ...Option) *Hub[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Hub[T]{
		subjects: make(map[string]*subject[T]),
		opts:     o,
	}
}

func (h *Hub[T]) subjectLocked(id string) *subject[T] {
	st, ok := h.subjects[id]
	if !ok {
		st = &subject[T]{subs: make(map[string]chan *model.Snapshot[T])}
		h.subjects[id] = st
	}
	return st
}

// Init marks the subject active under route and returns its initial snapshot.
// When the subject was last seen under the same route its data and error
// records are carried over; otherwise it starts empty.
func (h *Hub[T]) Init(_ context.Context, subjectID string, route model.Params) (*model.Snapshot[T], error) {
	h.mu.Lock()
	st := h.subjectLocked(subjectID)
	var s *model.Snapshot[T]
	if st.snapshot != nil && st.snapshot.Route.Equal(route) {
		s = st.snapshot.Clone()
		s.Task = ""
		s.Status = model.StatusInitialized
	} else {
		s = model.NewSnapshot[T](subjectID, route)
	}
	st.snapshot = s
	st.active = true
	out := s.Clone()
	h.mu.Unlock()

	h.opts.logger.Debug("subject initialized",
		slog.String("subject", subjectID),
		slog.Any("route", route),
	)
	if h.opts.onActivate != nil {
		h.opts.onActivate()
	}
	return out, nil
}

// Model subscribes to the subject. The current snapshot, if any, is queued
// first. The channel is closed once ctx is done.
func (h *Hub[T]) Model(ctx context.Context, subjectID string, _ model.Params) (<-chan *model.Snapshot[T], error) {
	ch := make(chan *model.Snapshot[T], h.opts.buffer)
	id := uuid.NewString()

	h.mu.Lock()
	st := h.subjectLocked(subjectID)
	st.subs[id] = ch
	if st.snapshot != nil {
		h.offer(subjectID, ch, st.snapshot.Clone())
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if st, ok := h.subjects[subjectID]; ok {
			delete(st.subs, id)
		}
		close(ch)
	}()
	return ch, nil
}

// Publish stores s as the subject's latest snapshot and delivers it to every
// subscriber.
func (h *Hub[T]) Publish(s *model.Snapshot[T]) {
	if s == nil {
		return
	}
	stored := s.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.subjectLocked(stored.SubjectID)
	st.snapshot = stored
	for _, ch := range st.subs {
		h.offer(stored.SubjectID, ch, stored.Clone())
	}
}

// offer queues s on ch, discarding the oldest queued snapshot when full.
// Callers hold h.mu, which also serializes senders on ch.
func (h *Hub[T]) offer(subjectID string, ch chan *model.Snapshot[T], s *model.Snapshot[T]) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
		droppedTotal.WithLabelValues(subjectID).Inc()
	default:
	}
	select {
	case ch <- s:
	default:
		h.opts.logger.Warn("subscriber queue still full, snapshot dropped", slog.String("subject", subjectID))
	}
}

// Update stores a normalized snapshot without redelivering it. Write-backs
// older than the stored snapshot are ignored.
func (h *Hub[T]) Update(_ context.Context, s *model.Snapshot[T]) error {
	if s == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.subjectLocked(s.SubjectID)
	if st.snapshot != nil && s.UpdatedAt.Before(st.snapshot.UpdatedAt) {
		return nil
	}
	st.snapshot = s.Clone()
	return nil
}

// Idle records the subject's final snapshot and marks it inactive.
func (h *Hub[T]) Idle(_ context.Context, s *model.Snapshot[T]) error {
	if s == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.subjectLocked(s.SubjectID)
	if st.snapshot == nil || !s.UpdatedAt.Before(st.snapshot.UpdatedAt) {
		st.snapshot = s.Clone()
	} else {
		st.snapshot = st.snapshot.WithStatus(model.StatusIdle).WithTask("")
	}
	st.active = false

	h.opts.logger.Debug("subject idle", slog.String("subject", s.SubjectID))
	return nil
}

// Snapshot returns a copy of the subject's latest snapshot, nil when unknown.
func (h *Hub[T]) Snapshot(subjectID string) *model.Snapshot[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.subjects[subjectID]
	if !ok {
		return nil
	}
	return st.snapshot.Clone()
}

// Active lists initialized subjects that have not gone idle, sorted by id.
func (h *Hub[T]) Active() []Target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Target
	for id, st := range h.subjects {
		if !st.active || st.snapshot == nil {
			continue
		}
		out = append(out, Target{SubjectID: id, Route: st.snapshot.Route.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// Subscribers returns the number of open subscriptions for the subject.
func (h *Hub[T]) Subscribers(subjectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.subjects[subjectID]; ok {
		return len(st.subs)
	}
	return 0
}
