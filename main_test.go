package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gidra39/lrsweep/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dryRunSweep = `
runs:
  - tag: spectral_lr_0
    lr_muls: [1, 1, 1, 1]
    cooldown_frac: 0.5
    spectral_lr_mul: 0
`

func TestRunCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.LogDir = dir

	sweepFile := filepath.Join(dir, "sweep.yaml")
	require.NoError(t, os.WriteFile(sweepFile, []byte(dryRunSweep), 0o644))

	assert.Equal(t, 2, run(ctx, "bogus", nil, cfg))
	assert.Equal(t, 0, run(ctx, "help", nil, cfg))
	assert.Equal(t, 0, run(ctx, "sweep", []string{"-sweep", sweepFile, "-dry-run"}, cfg))
	assert.Equal(t, 1, run(ctx, "sweep", []string{"-sweep", filepath.Join(dir, "missing.yaml")}, cfg))
	assert.Equal(t, 1, run(ctx, "plot", []string{filepath.Join(dir, "missing.txt")}, cfg))
	assert.Equal(t, 1, run(ctx, "plot", nil, cfg), "no logs in the log directory")
	assert.Equal(t, 0, run(ctx, "spectral", nil, cfg))
	assert.Equal(t, 0, run(ctx, "monitor", []string{"-once"}, cfg))
	assert.Equal(t, 1, run(ctx, "history", nil, cfg), "ledger not configured")

	cfg.LedgerPath = filepath.Join(dir, "ledger.db")
	assert.Equal(t, 0, run(ctx, "history", []string{"-yaml"}, cfg))
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestPlotMissingLogPrintsNoHeader(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.LogDir = dir

	present := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(present, nil, 0o644))
	missing := filepath.Join(dir, "missing.txt")

	tests := []struct {
		name string
		args []string
	}{
		{"single", []string{missing}},
		{"compare", []string{present, missing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := 0
			out := captureStdout(t, func() { code = runPlot(tt.args, cfg) })
			assert.Equal(t, 1, code)
			assert.Empty(t, out)
		})
	}

	got, ok := firstMissing([]string{present, missing})
	assert.True(t, ok)
	assert.Equal(t, missing, got)
	_, ok = firstMissing([]string{present})
	assert.False(t, ok)
}
