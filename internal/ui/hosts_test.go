package ui

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

func collect() (*[]tea.Msg, func(tea.Msg)) {
	var got []tea.Msg
	return &got, func(msg tea.Msg) { got = append(got, msg) }
}

func quietBus() *events.Bus {
	return events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestViewHost_ForwardsChanges(t *testing.T) {
	got, send := collect()
	h := &viewHost[pipelines.Detail]{send: send, mountID: "m1"}
	s := model.NewSnapshot[pipelines.Detail](pipelines.SubjectDetail, pipelineRoute("etl"))

	require.NoError(t, h.OnInit(s, ""))
	require.NoError(t, h.OnChange(s, "refresh"))

	require.Len(t, *got, 2)
	msg, ok := (*got)[1].(snapshotMsg[pipelines.Detail])
	require.True(t, ok)
	assert.Equal(t, "m1", msg.mountID)
	assert.Same(t, s, msg.snapshot)
	assert.Empty(t, msg.failures)
}

func TestViewHost_DetailNotFoundRequestsNavigation(t *testing.T) {
	got, send := collect()
	bus := quietBus()
	var navs []events.Navigate
	bus.Subscribe(events.TopicNavigate, func(ev events.Event) {
		navs = append(navs, ev.Payload.(events.Navigate))
	})
	h := &viewHost[pipelines.Detail]{send: send, bus: bus, mountID: "m1"}

	s := model.NewSnapshot[pipelines.Detail](pipelines.SubjectDetail, pipelineRoute("gone"))
	s.Status = model.StatusFailed
	rec := errstore.Record{
		Code:       "Pipelines_Public_FetchPipeline_404",
		SubjectID:  pipelines.SubjectDetail,
		Cause:      errors.New("not found"),
		StatusCode: http.StatusNotFound,
	}
	require.NoError(t, h.OnError(s, "", []errstore.Record{rec}))

	require.Len(t, *got, 1)
	assert.Equal(t, []errstore.Record{rec}, (*got)[0].(snapshotMsg[pipelines.Detail]).failures)
	require.Len(t, navs, 1)
	assert.Equal(t, pipelines.SubjectList, navs[0].Subject)
	assert.Equal(t, rec.Code, navs[0].Reason)
}

func TestViewHost_ListFailureDoesNotNavigate(t *testing.T) {
	_, send := collect()
	bus := quietBus()
	published := 0
	bus.Subscribe(events.TopicNavigate, func(events.Event) { published++ })
	h := &viewHost[[]pipelines.Pipeline]{send: send, bus: bus}

	s := model.NewSnapshot[[]pipelines.Pipeline](pipelines.SubjectList, nil)
	s.Status = model.StatusFailed
	recs := []errstore.Record{{Code: "Pipelines_Public_FetchPipelines_404", StatusCode: http.StatusNotFound}}
	require.NoError(t, h.OnError(s, "", recs))

	detail := &viewHost[pipelines.Detail]{send: send, bus: bus}
	ds := model.NewSnapshot[pipelines.Detail](pipelines.SubjectDetail, pipelineRoute("etl"))
	ds.Status = model.StatusFailed
	require.NoError(t, detail.OnError(ds, "", []errstore.Record{{Code: "Pipelines_Public_FetchRuns_500", StatusCode: 500}}))

	assert.Zero(t, published)
}

func TestWatchProblems_ForwardsRecords(t *testing.T) {
	got, send := collect()
	store := errstore.New()
	watchProblems(store, pipelines.SubjectList, "m1", send)

	store.RecordStatus("Pipelines_Public_FetchPipelines_503", pipelines.SubjectList, errors.New("unavailable"), 503)
	store.Clear()

	require.Len(t, *got, 2)
	first := (*got)[0].(problemsMsg)
	assert.Equal(t, pipelines.SubjectList, first.subject)
	assert.Equal(t, "m1", first.mountID)
	require.Len(t, first.records, 1)
	assert.Equal(t, 503, first.records[0].StatusCode)
	assert.Empty(t, (*got)[1].(problemsMsg).records)

	store.Dispose()
	store.Record("late", pipelines.SubjectList, nil)
	assert.Len(t, *got, 2)
}
