// Package app is the composition root for sluice.
//
// # Overview
//
// Run loads configuration, builds the logger, then wires the pipelines API
// client, the poller, one provider.Hub per view subject and the event bus. It
// starts three goroutines under an errgroup:
//
//   - the poller, which refreshes every active subject
//   - the Prometheus /metrics server, when metrics_bind is set
//   - the front end: the Bubble Tea UI, or the headless logger with --headless
//
// Leaving the front end cancels the others.
//
// # Data Flow
//
//	poller ──Publish──> provider.Hub ──Model──> lifecycle.Coordinator ──callbacks──> host (ui / logHost)
//	                        ^                            │
//	                        └──────── Update / Idle ─────┘
//
// Mounting a view initializes its subject in the hub, which kicks the poller.
// A first refresh publishes a loading snapshot; every refresh then publishes
// either the loaded data or a failed snapshot carrying an error record.
//
// # Polling Behavior
//
// Every round refreshes each active subject once. When any refresh fails, the
// next round is delayed by calculateBackoff: the base interval doubled per
// consecutive failing round, capped at 30 seconds. A successful round resets
// the delay. Two or more failing rounds mark the API offline.
//
// # Error Records
//
// A failed call records "Pipelines_Public_<Method>_<Status|Generic>" on the
// subject's snapshot, unless that code is already present. Repeating the same
// failure therefore leaves the snapshot unmodified and does not notify hosts
// again. A successful refresh removes every record of the feed's methods by
// pattern.
package app
