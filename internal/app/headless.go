package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/lifecycle"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

// logHost reports lifecycle callbacks to the log.
type logHost[T any] struct {
	logger   *slog.Logger
	bus      *events.Bus
	describe func(T) []slog.Attr
}

func (h *logHost[T]) OnInit(s *model.Snapshot[T], _ string) error {
	h.logger.Info("subject mounted",
		slog.String("subject", s.SubjectID),
		slog.Any("route", s.Route),
	)
	return nil
}

func (h *logHost[T]) OnInitialLoad(s *model.Snapshot[T], _ string) error {
	h.logger.Debug("first snapshot",
		slog.String("subject", s.SubjectID),
		slog.String("status", s.Status.String()),
	)
	return nil
}

func (h *logHost[T]) OnChange(s *model.Snapshot[T], task string) error {
	attrs := []slog.Attr{
		slog.String("subject", s.SubjectID),
		slog.String("status", s.Status.String()),
	}
	if task != "" {
		attrs = append(attrs, slog.String("task", task))
	}
	if h.describe != nil && s.Status == model.StatusLoaded {
		attrs = append(attrs, h.describe(s.Data)...)
	}
	h.logger.LogAttrs(context.Background(), slog.LevelInfo, "subject changed", attrs...)
	return nil
}

func (h *logHost[T]) OnError(s *model.Snapshot[T], _ string, distinct []errstore.Record) error {
	for _, rec := range distinct {
		attrs := []slog.Attr{
			slog.String("subject", s.SubjectID),
			slog.String("code", rec.Code),
		}
		if rec.StatusCode > 0 {
			attrs = append(attrs, slog.Int("status_code", rec.StatusCode))
		}
		if rec.Cause != nil {
			attrs = append(attrs, slog.String("error", rec.Cause.Error()))
		}
		h.logger.LogAttrs(context.Background(), slog.LevelError, "subject failed", attrs...)
	}
	if rec, ok := pipelines.NotFound(distinct); ok && s.SubjectID == pipelines.SubjectDetail && h.bus != nil {
		h.bus.Publish(events.TopicNavigate, events.Navigate{Subject: pipelines.SubjectList, Reason: rec.Code})
	}
	return nil
}

func describeList(items []pipelines.Pipeline) []slog.Attr {
	failing := 0
	running := 0
	for _, p := range items {
		switch p.State {
		case pipelines.StateFailed:
			failing++
		case pipelines.StateRunning:
			running++
		}
	}
	return []slog.Attr{
		slog.Int("pipelines", len(items)),
		slog.Int("running", running),
		slog.Int("failed", failing),
	}
}

func describeDetail(d pipelines.Detail) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("pipeline", d.Pipeline.ID),
		slog.String("state", d.Pipeline.State),
		slog.Int("runs", len(d.Runs)),
	}
	if len(d.Runs) > 0 {
		attrs = append(attrs, slog.String("last_run", d.Runs[0].Status))
	}
	return attrs
}

// runHeadless mounts the list view, and the detail view when pipelineID is
// set, with logging hosts until ctx is cancelled.
func runHeadless(ctx context.Context, w *wiring, pipelineID string) error {
	list := lifecycle.New[[]pipelines.Pipeline](w.listHub,
		&logHost[[]pipelines.Pipeline]{logger: w.logger, bus: w.bus, describe: describeList},
		lifecycle.Options[[]pipelines.Pipeline]{Subject: pipelines.SubjectList, Logger: w.logger},
	)
	if err := list.Mount(ctx); err != nil {
		return err
	}
	mounted := []interface {
		Unmount()
		Done() <-chan struct{}
	}{list}

	var detail *lifecycle.Coordinator[pipelines.Detail]
	if id := strings.TrimSpace(pipelineID); id != "" {
		detail = lifecycle.New[pipelines.Detail](w.detailHub,
			&logHost[pipelines.Detail]{logger: w.logger, bus: w.bus, describe: describeDetail},
			lifecycle.Options[pipelines.Detail]{
				Subject: pipelines.SubjectDetail,
				Route:   model.Params{pipelines.RouteKey: id},
				Logger:  w.logger,
			},
		)
		if err := detail.Mount(ctx); err != nil {
			list.Unmount()
			return err
		}
		mounted = append(mounted, detail)
	}

	unsubscribe := w.bus.Subscribe(events.TopicNavigate, func(ev events.Event) {
		nav, ok := ev.Payload.(events.Navigate)
		if !ok {
			return
		}
		w.logger.Warn("navigation requested",
			slog.String("subject", nav.Subject),
			slog.String("reason", nav.Reason),
		)
		if nav.Subject == pipelines.SubjectList && detail != nil {
			detail.Unmount()
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	for _, c := range mounted {
		c.Unmount()
	}
	for _, c := range mounted {
		<-c.Done()
	}
	return nil
}
