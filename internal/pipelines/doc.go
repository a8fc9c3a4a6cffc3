// Package pipelines provides an HTTP client for the pipelines management API.
//
// # Overview
//
// The client covers the read-only endpoints the poller needs:
//
//   - GET /api/pipelines: every pipeline with its current state
//   - GET /api/pipelines/{id}: one pipeline including its stages
//   - GET /api/pipelines/{id}/runs?limit=N: recent runs, newest first
//
// Requests carry a context, set Accept: application/json and a sluice/*
// User-Agent, and time out after five seconds.
//
// # Errors
//
// Responses with status 400 or above become *APIError, which carries the
// method, path and status code. errors.Is(err, ErrNotFound) matches a 404.
// Network and decode failures are wrapped with fmt.Errorf.
//
// ErrorCode turns a failed call into the stable code stored in error records,
// for example "Pipelines_Public_FetchPipeline_404" or
// "Pipelines_Public_FetchRuns_Generic" when no status is available.
//
// # URL Construction
//
// NewClient accepts "127.0.0.1:7490" or a full URL such as
// "https://pipelines.internal:8443". The scheme defaults to http and any path,
// query or fragment on the base URL is dropped.
package pipelines
