package ui

import (
	"context"
	"log/slog"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/lifecycle"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
	"github.com/five82/sluice/internal/provider"
)

// unmountWait bounds how long shutdown waits for coordinators to tear down.
const unmountWait = 3 * time.Second

type (
	listCoordinator   = lifecycle.Coordinator[[]pipelines.Pipeline]
	detailCoordinator = lifecycle.Coordinator[pipelines.Detail]
)

// mounts owns the coordinators behind the views. Methods are called from the
// Bubble Tea loop only, and from Run once the loop has exited.
type mounts struct {
	ctx        context.Context
	logger     *slog.Logger
	listHub    *provider.Hub[[]pipelines.Pipeline]
	detailHub  *provider.Hub[pipelines.Detail]
	bus        *events.Bus
	routeReuse bool
	send       func(tea.Msg)

	list    *listCoordinator
	detail  *detailCoordinator
	routes  chan model.Params
	retired []*detailCoordinator
}

func (ms *mounts) mountList() error {
	host := &viewHost[[]pipelines.Pipeline]{send: ms.send, bus: ms.bus}
	c := lifecycle.New[[]pipelines.Pipeline](ms.listHub, host, lifecycle.Options[[]pipelines.Pipeline]{
		Subject: pipelines.SubjectList,
		Logger:  ms.logger,
	})
	host.mountID = c.MountID()
	watchProblems(c.Errors(), pipelines.SubjectList, c.MountID(), ms.send)
	if err := c.Mount(ms.ctx); err != nil {
		return err
	}
	ms.list = c
	return nil
}

func (ms *mounts) listMountID() string {
	if ms.list == nil {
		return ""
	}
	return ms.list.MountID()
}

// openDetail shows pipeline id in the detail pane and returns the mount id
// whose messages the pane should accept. With route reuse the running
// coordinator is restarted on the new route; otherwise it is replaced.
func (ms *mounts) openDetail(id string) (string, error) {
	route := pipelineRoute(id)
	if ms.routeReuse && ms.detail != nil {
		offerRoute(ms.routes, route)
		return ms.detail.MountID(), nil
	}
	ms.closeDetail()

	host := &viewHost[pipelines.Detail]{send: ms.send, bus: ms.bus}
	opts := lifecycle.Options[pipelines.Detail]{
		Subject: pipelines.SubjectDetail,
		Route:   route,
		Logger:  ms.logger,
	}
	if ms.routeReuse {
		ms.routes = make(chan model.Params, 1)
		opts.RouteReuse = ms.routes
	}
	c := lifecycle.New[pipelines.Detail](ms.detailHub, host, opts)
	host.mountID = c.MountID()
	watchProblems(c.Errors(), pipelines.SubjectDetail, c.MountID(), ms.send)
	if err := c.Mount(ms.ctx); err != nil {
		return "", err
	}
	ms.detail = c
	return c.MountID(), nil
}

// closeDetail unmounts the detail coordinator without waiting; a callback may
// be blocked sending to the loop that called us.
func (ms *mounts) closeDetail() {
	if ms.detail == nil {
		return
	}
	ms.detail.Unmount()
	ms.retired = slices.DeleteFunc(ms.retired, func(c *detailCoordinator) bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	})
	ms.retired = append(ms.retired, ms.detail)
	ms.detail = nil
	ms.routes = nil
}

// unmountAll tears every coordinator down and waits for teardown to finish.
func (ms *mounts) unmountAll() {
	ms.closeDetail()

	all := append([]*detailCoordinator(nil), ms.retired...)
	ms.retired = nil
	if ms.list != nil {
		ms.list.Unmount()
	}

	deadline := time.After(unmountWait)
	wait := func(done <-chan struct{}, subject string) bool {
		select {
		case <-done:
			return true
		case <-deadline:
			ms.logger.Warn("timed out waiting for unmount", slog.String("subject", subject))
			return false
		}
	}
	if ms.list != nil && !wait(ms.list.Done(), pipelines.SubjectList) {
		return
	}
	for _, c := range all {
		if !wait(c.Done(), pipelines.SubjectDetail) {
			return
		}
	}
}

// offerRoute replaces any route still queued on ch with route.
func offerRoute(ch chan model.Params, route model.Params) {
	select {
	case ch <- route:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- route:
	default:
	}
}
