package lifecycle

import (
	"fmt"
	"runtime/debug"
)

// Fault is a failure of one lifecycle step. Faults are logged, never propagated.
type Fault struct {
	Step string
	Err  error
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Step, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// PanicError wraps a value recovered from a panicking step.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// guard runs fn and converts a returned error or a panic into a Fault.
func guard(step string, fn func() error) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = &Fault{Step: step, Err: &PanicError{Value: r, StackTrace: string(debug.Stack())}}
		}
	}()
	if err := fn(); err != nil {
		return &Fault{Step: step, Err: err}
	}
	return nil
}

// Report describes how one snapshot was processed.
type Report struct {
	// Dropped is set when the snapshot arrived after teardown.
	Dropped bool
	// Modified is the outcome of the modification policy.
	Modified bool
	// Callbacks lists the host callbacks that were invoked, in order.
	Callbacks []string
	// Faults lists every step that failed.
	Faults []Fault
}

// callback runs a host callback, recording its name. A nil fn means the host
// does not implement it.
func (r *Report) callback(step string, fn func() error) {
	if fn == nil {
		return
	}
	r.Callbacks = append(r.Callbacks, step)
	r.run(step, fn)
}

func (r *Report) run(step string, fn func() error) bool {
	if f := guard(step, fn); f != nil {
		r.Faults = append(r.Faults, *f)
		return false
	}
	return true
}
