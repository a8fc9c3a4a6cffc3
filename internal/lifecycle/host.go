package lifecycle

import (
	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/model"
)

// A host opts into lifecycle callbacks by implementing any of the interfaces
// below. Every callback receives the snapshot being processed and the task that
// produced it. A returned error or a panic is logged and the remaining steps
// still run.

// Initializer is called once per subscription with the provider's init snapshot.
type Initializer[T any] interface {
	OnInit(s *model.Snapshot[T], task string) error
}

// InitialLoader is called for the first streamed snapshot of a subscription.
type InitialLoader[T any] interface {
	OnInitialLoad(s *model.Snapshot[T], task string) error
}

// FirstLoader is the legacy form of InitialLoader. It only runs when the host
// does not implement InitialLoader.
//
// Deprecated: implement InitialLoader.
type FirstLoader[T any] interface {
	OnFirstLoad(s *model.Snapshot[T], task string) error
}

// Loader is called for every streamed snapshot, modified or not.
type Loader[T any] interface {
	OnLoad(s *model.Snapshot[T], task string) error
}

// Changer is called for every modified snapshot that is not failed.
type Changer[T any] interface {
	OnChange(s *model.Snapshot[T], task string) error
}

// ErrorHandler is called for every modified failed snapshot with the error
// records that were not present on the previously held snapshot.
type ErrorHandler[T any] interface {
	OnError(s *model.Snapshot[T], task string, distinct []errstore.Record) error
}

// Failer is the legacy form of ErrorHandler. It only runs when the host does
// not implement ErrorHandler.
//
// Deprecated: implement ErrorHandler.
type Failer[T any] interface {
	OnFail(s *model.Snapshot[T], task string) error
}

// Callback names used in logs, metrics and Report.Callbacks.
const (
	StepInit        = "OnInit"
	StepInitialLoad = "OnInitialLoad"
	StepFirstLoad   = "OnFirstLoad"
	StepLoad        = "OnLoad"
	StepChange      = "OnChange"
	StepError       = "OnError"
	StepFail        = "OnFail"

	StepProvide   = "init"
	StepSubscribe = "subscribe"
	StepModified  = "modified"
	StepNormalize = "normalize"
	StepIdle      = "idle"
)

// dispatchInitialLoad runs exactly one of OnInitialLoad or OnFirstLoad.
func dispatchInitialLoad[T any](host any, s *model.Snapshot[T], task string) (string, func() error) {
	if h, ok := host.(InitialLoader[T]); ok {
		return StepInitialLoad, func() error { return h.OnInitialLoad(s, task) }
	}
	if h, ok := host.(FirstLoader[T]); ok {
		return StepFirstLoad, func() error { return h.OnFirstLoad(s, task) }
	}
	return "", nil
}

// dispatchFailure runs exactly one of OnError or OnFail.
func dispatchFailure[T any](host any, s *model.Snapshot[T], task string, distinct []errstore.Record) (string, func() error) {
	if h, ok := host.(ErrorHandler[T]); ok {
		return StepError, func() error { return h.OnError(s, task, distinct) }
	}
	if h, ok := host.(Failer[T]); ok {
		return StepFail, func() error { return h.OnFail(s, task) }
	}
	return "", nil
}
