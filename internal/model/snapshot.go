package model

import (
	"maps"
	"time"

	"github.com/five82/sluice/internal/errstore"
)

// Status is the load state of a component model.
type Status int

const (
	StatusInitialized Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
	StatusIdle
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	case StatusIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Params identifies the route a subject is mounted under, e.g. {"pipeline": "etl-nightly"}.
type Params map[string]string

// Equal reports whether both parameter sets hold the same keys and values.
func (p Params) Equal(other Params) bool {
	return maps.Equal(p, other)
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Get returns the value for key, or "" when absent.
func (p Params) Get(key string) string {
	return p[key]
}

// Snapshot is one state of a subject's component model. Snapshots are treated
// as immutable once published; use Clone or the With helpers to derive new ones.
type Snapshot[T any] struct {
	SubjectID string
	Status    Status
	// Task names the in-flight operation that produced this snapshot, "" when none.
	Task      string
	Route     Params
	Data      T
	Errors    *errstore.Store
	UpdatedAt time.Time
}

// NewSnapshot returns an initialized snapshot with an empty error store.
func NewSnapshot[T any](subjectID string, route Params) *Snapshot[T] {
	return &Snapshot[T]{
		SubjectID: subjectID,
		Status:    StatusInitialized,
		Route:     route.Clone(),
		Errors:    errstore.New(),
		UpdatedAt: time.Now(),
	}
}

// Clone copies the snapshot. The route and error store are copied; Data is
// copied by value.
func (s *Snapshot[T]) Clone() *Snapshot[T] {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Route = s.Route.Clone()
	dup.Errors = s.Errors.Clone()
	return &dup
}

// WithTask returns a copy carrying task.
func (s *Snapshot[T]) WithTask(task string) *Snapshot[T] {
	dup := s.Clone()
	if dup != nil {
		dup.Task = task
	}
	return dup
}

// WithStatus returns a copy with status.
func (s *Snapshot[T]) WithStatus(status Status) *Snapshot[T] {
	dup := s.Clone()
	if dup != nil {
		dup.Status = status
	}
	return dup
}

// Failed reports whether the snapshot is in the failed state.
func (s *Snapshot[T]) Failed() bool {
	return s != nil && s.Status == StatusFailed
}

// ErrorRecords returns the snapshot's error records, nil when it has none.
func (s *Snapshot[T]) ErrorRecords() []errstore.Record {
	if s == nil {
		return nil
	}
	return s.Errors.Records()
}
