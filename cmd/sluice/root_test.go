package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/sluice/internal/app"
)

func capture(got *app.Options, calls *int) runFunc {
	return func(_ context.Context, opts app.Options) error {
		*got = opts
		*calls++
		return nil
	}
}

func TestRootCmd_FlagsBecomeOptions(t *testing.T) {
	var got app.Options
	calls := 0
	cmd := newRootCmd(capture(&got, &calls))
	cmd.SetArgs([]string{
		"--config", "/tmp/sluice.toml",
		"--prefs", "/tmp/prefs.toml",
		"--poll", "5s",
		"--log-level", "DEBUG",
		"--headless",
		"--pipeline", "etl",
	})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Equal(t, 1, calls)
	assert.Equal(t, "/tmp/sluice.toml", got.ConfigPath)
	assert.Equal(t, "/tmp/prefs.toml", got.PrefsPath)
	assert.Equal(t, 5*time.Second, got.PollEvery)
	assert.Equal(t, "debug", got.LogLevel)
	assert.True(t, got.Headless)
	assert.Equal(t, "etl", got.Pipeline)
	assert.NotNil(t, got.Stderr)
}

func TestRootCmd_RejectsBadInput(t *testing.T) {
	for name, args := range map[string][]string{
		"log level":     {"--log-level", "loud"},
		"negative poll": {"--poll", "-1s"},
		"positional":    {"extra"},
	} {
		t.Run(name, func(t *testing.T) {
			var got app.Options
			calls := 0
			cmd := newRootCmd(capture(&got, &calls))
			cmd.SetArgs(args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			assert.Error(t, cmd.ExecuteContext(context.Background()))
			assert.Zero(t, calls)
		})
	}
}

func TestVersionCmd(t *testing.T) {
	calls := 0
	var got app.Options
	cmd := newRootCmd(capture(&got, &calls))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "sluice version "+version+"\n", out.String())
	assert.Zero(t, calls)
}
