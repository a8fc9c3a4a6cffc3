package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

func listLoader(f pipelines.Fetcher) Loader[[]pipelines.Pipeline] {
	return func(ctx context.Context, _ model.Params) ([]pipelines.Pipeline, error) {
		items, err := f.FetchPipelines(ctx)
		if err != nil {
			return nil, callFailed(pipelines.MethodFetchPipelines, err)
		}
		return items, nil
	}
}

func detailLoader(f pipelines.Fetcher, runLimit int) Loader[pipelines.Detail] {
	return func(ctx context.Context, route model.Params) (pipelines.Detail, error) {
		id := strings.TrimSpace(route.Get(pipelines.RouteKey))
		if id == "" {
			return pipelines.Detail{}, callFailed(pipelines.MethodFetchPipeline, fmt.Errorf("route has no %s", pipelines.RouteKey))
		}
		p, err := f.FetchPipeline(ctx, id)
		if err != nil {
			return pipelines.Detail{}, callFailed(pipelines.MethodFetchPipeline, err)
		}
		runs, err := f.FetchRuns(ctx, id, runLimit)
		if err != nil {
			return pipelines.Detail{}, callFailed(pipelines.MethodFetchRuns, err)
		}
		return pipelines.Detail{Pipeline: *p, Runs: runs}, nil
	}
}
