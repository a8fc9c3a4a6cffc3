package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/five82/sluice/internal/app"
)

type runFunc func(ctx context.Context, opts app.Options) error

func runApp(ctx context.Context, opts app.Options) error {
	return app.Run(ctx, opts)
}

// newRootCmd builds the sluice command. run receives the parsed options.
func newRootCmd(run runFunc) *cobra.Command {
	var (
		opts     app.Options
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "sluice",
		Short: "Terminal monitor for data pipelines",
		Long: `sluice polls a pipelines API and shows every pipeline, its recent runs
and any failed requests in a terminal UI. Without a terminal it runs headless
and reports changes to the log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel != "" {
				switch level := strings.ToLower(strings.TrimSpace(logLevel)); level {
				case "debug", "info", "warn", "error":
					opts.LogLevel = level
				default:
					return fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", logLevel)
				}
			}
			if opts.PollEvery < 0 {
				return fmt.Errorf("--poll must not be negative")
			}
			if !opts.Headless && !isTerminal(os.Stdout) {
				opts.Headless = true
			}
			opts.Stderr = cmd.ErrOrStderr()
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file path (default ~/.config/sluice/config.toml)")
	flags.StringVar(&opts.PrefsPath, "prefs", "", "preferences file path (default ~/.config/sluice/prefs.toml)")
	flags.DurationVar(&opts.PollEvery, "poll", 0, "refresh interval, e.g. 5s (default from config)")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.Headless, "headless", false, "log changes instead of starting the terminal UI")
	flags.StringVar(&opts.Pipeline, "pipeline", "", "pipeline to watch in headless mode (default last opened)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
