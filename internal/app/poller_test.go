package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
	"github.com/five82/sluice/internal/provider"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	// Verify that backoff never exceeds maxBackoff regardless of input
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

// fakeFetcher serves canned responses and counts calls.
type fakeFetcher struct {
	mu          sync.Mutex
	list        []pipelines.Pipeline
	listErr     error
	pipeline    map[string]pipelines.Pipeline
	pipelineErr error
	runsErr     error
	calls       int
}

func (f *fakeFetcher) FetchPipelines(context.Context) ([]pipelines.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.list, f.listErr
}

func (f *fakeFetcher) FetchPipeline(_ context.Context, id string) (*pipelines.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.pipelineErr != nil {
		return nil, f.pipelineErr
	}
	p, ok := f.pipeline[id]
	if !ok {
		return nil, &pipelines.APIError{Method: http.MethodGet, Path: "/api/pipelines/" + id, StatusCode: http.StatusNotFound}
	}
	return &p, nil
}

func (f *fakeFetcher) FetchRuns(_ context.Context, id string, _ int) ([]pipelines.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	return []pipelines.Run{{ID: "r1", PipelineID: id, Status: "succeeded"}}, nil
}

func (f *fakeFetcher) set(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newListFeed(t *testing.T, f *fakeFetcher) (*Poller, *provider.Hub[[]pipelines.Pipeline]) {
	t.Helper()
	p := NewPoller(time.Second, nil)
	hub := provider.NewHub[[]pipelines.Pipeline]()
	AddFeed(p, hub, listLoader(f), pipelines.MethodFetchPipelines)
	_, err := hub.Init(context.Background(), pipelines.SubjectList, nil)
	require.NoError(t, err)
	return p, hub
}

func TestPoller_RefreshPublishesLoaded(t *testing.T) {
	f := &fakeFetcher{list: []pipelines.Pipeline{{ID: "etl"}}}
	p, hub := newListFeed(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := hub.Model(ctx, pipelines.SubjectList, nil)
	require.NoError(t, err)

	failed := p.refreshAll(context.Background())

	assert.False(t, failed)
	var statuses []model.Status
	for len(stream) > 0 {
		statuses = append(statuses, (<-stream).Status)
	}
	assert.Equal(t, []model.Status{model.StatusInitialized, model.StatusLoading, model.StatusLoaded}, statuses)

	s := hub.Snapshot(pipelines.SubjectList)
	assert.Equal(t, TaskRefresh, s.Task)
	require.Len(t, s.Data, 1)
	assert.Equal(t, "etl", s.Data[0].ID)
}

func TestPoller_FailureRecordsOnceAndSuccessClears(t *testing.T) {
	f := &fakeFetcher{listErr: &pipelines.APIError{StatusCode: http.StatusServiceUnavailable}}
	p, hub := newListFeed(t, f)
	ctx := context.Background()

	require.True(t, p.refreshAll(ctx))
	first := hub.Snapshot(pipelines.SubjectList)
	assert.Equal(t, model.StatusFailed, first.Status)
	recs := first.Errors.FindRecords("Pipelines_Public_FetchPipelines_503")
	require.Len(t, recs, 1)
	assert.Equal(t, http.StatusServiceUnavailable, recs[0].StatusCode)

	// Same failure again keeps the original record untouched.
	require.True(t, p.refreshAll(ctx))
	second := hub.Snapshot(pipelines.SubjectList)
	assert.True(t, first.Errors.Equal(second.Errors))

	f.set(func(f *fakeFetcher) {
		f.listErr = nil
		f.list = []pipelines.Pipeline{{ID: "etl"}}
	})
	require.False(t, p.refreshAll(ctx))
	third := hub.Snapshot(pipelines.SubjectList)
	assert.Equal(t, model.StatusLoaded, third.Status)
	assert.Zero(t, third.Errors.Len())
}

func TestPoller_DetailFailureNamesFailingMethod(t *testing.T) {
	f := &fakeFetcher{
		pipeline: map[string]pipelines.Pipeline{"etl": {ID: "etl"}},
		runsErr:  errors.New("execute request: connection reset"),
	}
	p := NewPoller(time.Second, nil)
	hub := provider.NewHub[pipelines.Detail]()
	AddFeed(p, hub, detailLoader(f, 5), pipelines.MethodFetchPipeline, pipelines.MethodFetchRuns)
	route := model.Params{pipelines.RouteKey: "etl"}
	_, err := hub.Init(context.Background(), pipelines.SubjectDetail, route)
	require.NoError(t, err)

	require.True(t, p.refreshAll(context.Background()))
	s := hub.Snapshot(pipelines.SubjectDetail)
	assert.True(t, s.Errors.HasCode("Pipelines_Public_FetchRuns_Generic"))

	// A missing pipeline clears nothing and adds the 404 record.
	_, err = hub.Init(context.Background(), pipelines.SubjectDetail, model.Params{pipelines.RouteKey: "gone"})
	require.NoError(t, err)
	require.True(t, p.refreshAll(context.Background()))
	s = hub.Snapshot(pipelines.SubjectDetail)
	rec, ok := pipelines.NotFound(s.Errors.Records())
	require.True(t, ok)
	assert.Equal(t, "Pipelines_Public_FetchPipeline_404", rec.Code)
	assert.Equal(t, pipelines.SubjectDetail, rec.SubjectID)

	f.set(func(f *fakeFetcher) { f.runsErr = nil })
	_, err = hub.Init(context.Background(), pipelines.SubjectDetail, route)
	require.NoError(t, err)
	require.False(t, p.refreshAll(context.Background()))
	s = hub.Snapshot(pipelines.SubjectDetail)
	assert.Zero(t, s.Errors.Len())
	assert.Len(t, s.Data.Runs, 1)
}

func TestPoller_IdleSubjectsAreSkipped(t *testing.T) {
	f := &fakeFetcher{}
	p, hub := newListFeed(t, f)
	ctx := context.Background()

	s := hub.Snapshot(pipelines.SubjectList)
	require.NoError(t, hub.Idle(ctx, s.WithStatus(model.StatusIdle)))
	p.refreshAll(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.calls)
}

func TestPoller_RunBacksOffAndKicks(t *testing.T) {
	f := &fakeFetcher{listErr: errors.New("down")}
	p, _ := newListFeed(t, f)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Failures() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Offline())

	p.Kick()
	require.Eventually(t, p.Offline, time.Second, 5*time.Millisecond)

	f.set(func(f *fakeFetcher) { f.listErr = nil })
	p.Kick()
	require.Eventually(t, func() bool { return p.Failures() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClearPattern(t *testing.T) {
	got := clearPattern([]string{pipelines.MethodFetchPipeline, pipelines.MethodFetchRuns})
	assert.Equal(t, "^(?:Pipelines_Public_FetchPipeline_|Pipelines_Public_FetchRuns_)", got)
}
