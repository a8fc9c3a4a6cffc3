package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/sluice/internal/config"
	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/pipelines"
	"github.com/five82/sluice/internal/prefs"
	"github.com/five82/sluice/internal/provider"
	"github.com/five82/sluice/internal/ui"
)

// Options configure the sluice application.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses ~/.config/sluice/prefs.toml
	PollEvery  time.Duration // zero uses the config value
	LogLevel   string        // empty uses the config value
	Headless   bool
	Pipeline   string // detail view to mount in headless mode
	Stderr     io.Writer
}

// wiring holds the shared components both front ends mount against.
type wiring struct {
	cfg       config.Config
	logger    *slog.Logger
	client    *pipelines.Client
	poller    *Poller
	listHub   *provider.Hub[[]pipelines.Pipeline]
	detailHub *provider.Hub[pipelines.Detail]
	bus       *events.Bus
}

func newWiring(cfg config.Config, logger *slog.Logger, client *pipelines.Client) *wiring {
	poller := NewPoller(cfg.PollInterval, logger)
	listHub := provider.NewHub[[]pipelines.Pipeline](provider.WithLogger(logger), provider.WithOnActivate(poller.Kick))
	detailHub := provider.NewHub[pipelines.Detail](provider.WithLogger(logger), provider.WithOnActivate(poller.Kick))

	AddFeed(poller, listHub, listLoader(client), pipelines.MethodFetchPipelines)
	AddFeed(poller, detailHub, detailLoader(client, pipelines.DefaultRunLimit),
		pipelines.MethodFetchPipeline, pipelines.MethodFetchRuns)

	return &wiring{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		poller:    poller,
		listHub:   listHub,
		detailHub: detailHub,
		bus:       events.NewBus(logger),
	}
}

// Run boots sluice until the context is cancelled or the UI exits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = opts.PollEvery
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger, closeLog, err := newLogger(cfg, opts.Headless, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	client, err := pipelines.NewClient(cfg.APIURL)
	if err != nil {
		return fmt.Errorf("init pipelines client: %w", err)
	}

	w := newWiring(cfg, logger, client)
	logger.Info("sluice starting",
		slog.String("api_url", cfg.APIURL),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Bool("headless", opts.Headless),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.poller.Run(gctx) })
	if cfg.MetricsBind != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsBind, logger) })
	}
	g.Go(func() error {
		// Leaving the front end stops everything else.
		defer cancel()
		if opts.Headless {
			pipeline := opts.Pipeline
			if pipeline == "" {
				pipeline = userPrefs.LastPipeline
			}
			return runHeadless(gctx, w, pipeline)
		}
		return ui.Run(ui.Options{
			Context:      gctx,
			Logger:       logger,
			List:         w.listHub,
			Detail:       w.detailHub,
			Bus:          w.bus,
			Status:       w.poller,
			APIURL:       cfg.APIURL,
			RouteReuse:   cfg.RouteReuse,
			ThemeName:    userPrefs.Theme,
			LastPipeline: userPrefs.LastPipeline,
			PrefsPath:    opts.PrefsPath,
			LogPath:      cfg.LogFile,
		})
	})

	return g.Wait()
}
