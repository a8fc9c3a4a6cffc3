package pipelines

import "time"

// Pipeline states reported by the API.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateFailed   = "failed"
	StatePaused   = "paused"
	StateDisabled = "disabled"
)

// Pipeline mirrors an entry of /api/pipelines.
type Pipeline struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	State     string  `json:"state"`
	Schedule  string  `json:"schedule"`
	LastRunAt string  `json:"lastRunAt"`
	LastError string  `json:"lastError"`
	Stages    []Stage `json:"stages"`
}

// Stage is one step of a pipeline definition.
type Stage struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// ListResponse mirrors /api/pipelines.
type ListResponse struct {
	Items []Pipeline `json:"items"`
}

// Run describes one execution of a pipeline.
type Run struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId"`
	Status     string `json:"status"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
	Message    string `json:"message"`
}

// RunsResponse mirrors /api/pipelines/{id}/runs.
type RunsResponse struct {
	Items []Run `json:"items"`
}

// Detail is a pipeline together with its most recent runs.
type Detail struct {
	Pipeline Pipeline
	Runs     []Run
}

// ParsedLastRunAt returns the parsed LastRunAt timestamp.
func (p Pipeline) ParsedLastRunAt() time.Time {
	return parseTime(p.LastRunAt)
}

// ParsedStartedAt returns the parsed StartedAt timestamp.
func (r Run) ParsedStartedAt() time.Time {
	return parseTime(r.StartedAt)
}

// ParsedFinishedAt returns the parsed FinishedAt timestamp.
func (r Run) ParsedFinishedAt() time.Time {
	return parseTime(r.FinishedAt)
}

// Duration returns how long the run took, or has been running as of now.
// Zero when the start time is unknown.
func (r Run) Duration(now time.Time) time.Duration {
	start := r.ParsedStartedAt()
	if start.IsZero() {
		return 0
	}
	end := r.ParsedFinishedAt()
	if end.IsZero() {
		end = now
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

const apiTimestampLayout = "2006-01-02 15:04:05"

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(apiTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
