// Package lifecycle keeps a mounted view in sync with the model provider that
// owns its state.
//
// # Overview
//
// A Coordinator subscribes to a Provider for one subject and processes the
// streamed snapshots strictly in order on a single goroutine. For each
// subscription it asks the provider to initialize the subject and runs
// OnInit. Every streamed snapshot then runs through a fixed sequence:
//
//   - the first snapshot runs OnInitialLoad, or OnFirstLoad when the host only
//     implements the legacy form
//   - every snapshot runs OnLoad
//   - the modification policy decides whether the snapshot is a change; an
//     unmodified snapshot stops here
//   - a change is mirrored into the coordinator's local error store and pushed
//     onto the history chain, which keeps at most three ancestors
//   - failed snapshots run OnError with the records that were not on the
//     previously held snapshot, or OnFail for legacy hosts; all others run
//     OnChange
//   - the task is cleared and the normalized snapshot is written back through
//     Provider.Update
//
// Each step is isolated. A step that returns an error or panics becomes a
// Fault in the snapshot's Report; the run loop logs it and moves on.
//
// # Route reuse
//
// With Options.RouteReuse set, a new route identity on the channel tears the
// current subscription down (flushing the held snapshot to idle) and restarts
// the sequence from OnInit against the new route.
//
// # Teardown
//
// Unmount stops delivery immediately. The held snapshot is flushed to idle and
// the local error store is disposed exactly once, after which late snapshots
// are dropped. Done is closed when teardown has finished.
package lifecycle
