package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, 30*time.Second, cfg.PollEvery())
	assert.Equal(t, 1600, cfg.TargetStep)
	assert.Equal(t, []string{"baseline_std_0", "spectral_lr_0", "spectral_lr_1"}, cfg.RunPatterns())
	assert.Equal(t, "torchrun", cfg.LaunchCommand)
	assert.InDelta(t, 3.28, cfg.TargetValLoss, 1e-9)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lrsweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("LOG_DIR: runs\nNPROC_PER_NODE: 4\nTARGET_STEP: 500\n"), 0o644))

	t.Setenv("NPROC_PER_NODE", "2")

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, "runs", cfg.LogDir)
	assert.Equal(t, 500, cfg.TargetStep)
	assert.Equal(t, 2, cfg.NprocPerNode, "environment wins over the file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SECONDS", "0")

	_, err := load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PollInterval")
}

func TestRunPatternsTrimsBlanks(t *testing.T) {
	cfg := Defaults()
	cfg.MonitorRunPatterns = " a, ,b ,"
	assert.Equal(t, []string{"a", "b"}, cfg.RunPatterns())
}

func TestSearchUpwardsForFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker.env"), nil, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})

	found, err := SearchUpwardsForFile("marker.env")
	require.NoError(t, err)
	assert.Equal(t, "marker.env", filepath.Base(found))

	_, err = SearchUpwardsForFile("definitely-missing-file.env")
	assert.True(t, errors.Is(err, ErrFileNotFound))
}
