package charts

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gidra39/lrsweep/logparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
)

const runLog = `step:0/1600 val_loss:5.0000 lr_mul:1.0000 beta1:0.8000 beta2:0.9500 batch_size:131072 train_time:0ms
step:1/1600 train_loss:4.9000 lr_mul:1.0000 beta1:0.8000 beta2:0.9500 batch_size:131072 train_time:90ms
step:800/1600 val_loss:3.3000 lr_mul:0.8000 beta1:0.8500 beta2:0.9500 batch_size:262144 train_time:60000ms
step:1200/1600 val_loss:3.2700 lr_mul:0.5000 beta1:0.9000 beta2:0.9900 batch_size:262144 train_time:90500ms
step:1600/1600 val_loss:3.2500 lr_mul:0.1000 beta1:0.9000 beta2:0.9900 batch_size:262144 train_time:120000ms
`

const slowLog = `step:0/1600 val_loss:5.0000 lr_mul:1.0000 beta1:0.8000 beta2:0.9500 batch_size:131072 train_time:0ms
step:1600/1600 val_loss:3.2900 lr_mul:0.1000 beta1:0.9000 beta2:0.9900 batch_size:131072 train_time:130000ms
`

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestTimeToTarget(t *testing.T) {
	val := []logparse.ValRecord{
		{Step: 0, ValLoss: 5.0},
		{Step: 800, ValLoss: 3.3, TrainTimeMS: 60000},
		{Step: 1200, ValLoss: 3.27, TrainTimeMS: 90500},
		{Step: 1600, ValLoss: 3.2, TrainTimeMS: 120000},
	}

	hit, ok := TimeToTarget(val, DefaultTarget)
	require.True(t, ok)
	assert.Equal(t, TargetHit{Step: 1200, Seconds: 90.5}, hit)

	_, ok = TimeToTarget(val[:2], DefaultTarget)
	assert.False(t, ok)
}

func TestLossAnnotationOmittedWhenTargetMissed(t *testing.T) {
	dir := t.TempDir()
	ds, err := LoadDatasets([]string{writeLog(t, dir, "slow.txt", slowLog)})
	require.NoError(t, err)

	note := LossAnnotation(ds[0], DefaultTarget)
	assert.Equal(t, "Final Loss: 3.2900", note)

	panels, err := LossPanels(ds, DefaultTarget)
	require.NoError(t, err)
	require.Len(t, panels, 5)
	assert.NotContains(t, panels[0].Title.Text, "Reached")
	assert.NotContains(t, panels[1].Title.Text, "Time to")
}

func TestLossAnnotationWhenTargetReached(t *testing.T) {
	dir := t.TempDir()
	ds, err := LoadDatasets([]string{writeLog(t, dir, "run.txt", runLog)})
	require.NoError(t, err)

	note := LossAnnotation(ds[0], DefaultTarget)
	assert.Equal(t, "Final Loss: 3.2500  Reached 3.28 at step 1200 (90.5s)", note)

	panels, err := LossPanels(ds, DefaultTarget)
	require.NoError(t, err)
	assert.Equal(t, "Validation Loss Over Time\nrun\n"+note, panels[0].Title.Text)
	assert.Contains(t, panels[2].Title.Text, "Max: 1.0000  Min: 0.1000  Final: 0.1000")
	assert.Contains(t, panels[3].Title.Text, "Final beta1: 0.9000  Final beta2: 0.9900")
	assert.Contains(t, panels[4].Title.Text, "Batch sizes: 131,072, 262,144")
	assert.Equal(t, 3.2, panels[0].Y.Min)
	assert.Equal(t, 5.25, panels[0].Y.Max)
}

func TestComparisonTitles(t *testing.T) {
	dir := t.TempDir()
	ds, err := LoadDatasets([]string{
		writeLog(t, dir, "a.txt", runLog),
		writeLog(t, dir, "b.txt", slowLog),
	})
	require.NoError(t, err)
	require.Len(t, ds, 2)

	panels, err := LossPanels(ds, DefaultTarget)
	require.NoError(t, err)
	assert.Equal(t, "Validation Loss Comparison", panels[0].Title.Text)
	assert.Equal(t, "Batch Size Schedule Comparison", panels[4].Title.Text)
}

func TestLoadDatasets(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "good.txt", runLog)
	empty := writeLog(t, dir, "empty.txt", "step:1/10 lr_mul:1.0\n")

	ds, err := LoadDatasets([]string{empty, good})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "good", ds[0].Name)

	_, err = LoadDatasets([]string{empty})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = LoadDatasets([]string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	one := []Dataset{{Path: "logs/run-1.txt"}}
	assert.Equal(t, "logs/run-1.png", OutputPath(one, "logs"))

	two := []Dataset{{Path: "logs/a.txt"}, {Path: "other/b.txt"}}
	assert.Equal(t, filepath.Join("logs", "comparison.png"), OutputPath(two, "logs"))
}

func TestMostRecentLog(t *testing.T) {
	dir := t.TempDir()
	_, err := MostRecentLog(dir)
	assert.ErrorIs(t, err, ErrNoLogs)

	old := writeLog(t, dir, "old.txt", runLog)
	newer := writeLog(t, dir, "new.txt", runLog)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := MostRecentLog(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	ds, err := LoadDatasets([]string{writeLog(t, dir, "run.txt", runLog)})
	require.NoError(t, err)

	s := Summarize(ds[0], DefaultTarget)
	assert.Equal(t, 1600, s.TotalSteps)
	assert.True(t, s.Reached)
	assert.Equal(t, []int{131072, 262144}, s.BatchSizes)
	assert.InDelta(t, 1.75, s.Improvement, 1e-9)

	out := &bytes.Buffer{}
	WriteSummary(out, s)
	text := out.String()
	assert.Contains(t, text, "Training Summary: run")
	assert.Contains(t, text, "Loss improvement: 1.7500\n")
	assert.Contains(t, text, "Reached 3.28 loss at step: 1200\n")
	assert.Contains(t, text, "Time to reach 3.28: 90.5s (1.51 min)\n")
	assert.Contains(t, text, "Total training time: 120.0s (2.00 min)\n")
	assert.Contains(t, text, "Batch sizes: 131,072, 262,144\n")

	ds, err = LoadDatasets([]string{writeLog(t, dir, "slow.txt", slowLog)})
	require.NoError(t, err)
	out.Reset()
	WriteSummary(out, Summarize(ds[0], DefaultTarget))
	assert.Contains(t, out.String(), "Target loss of 3.28 not yet reached")
	assert.NotContains(t, out.String(), "Reached")
}

func TestRenderLoss(t *testing.T) {
	dir := t.TempDir()
	ds, err := LoadDatasets([]string{
		writeLog(t, dir, "a.txt", runLog),
		writeLog(t, dir, "b.txt", slowLog),
	})
	require.NoError(t, err)

	out := OutputPath(ds, dir)
	require.NoError(t, RenderLoss(ds, DefaultTarget, out))
	assertPNG(t, out)
}

func spectralLog(final string) string {
	return "step:0/1600 val_loss:5.0000 spec_attn:[0.1, 0.2] spec_mlp:[0.3,-0.5]\n" +
		"step:1600/1600 val_loss:" + final + " spec_attn:[0.05,0.07] spec_mlp:[0.0,0.0]\n"
}

func TestSpectralLRFromName(t *testing.T) {
	v, ok := SpectralLRFromName("logs/lrmul-1-1-1-1-cd0.4-spectral_lr_0.5-20250101-000000.txt")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	v, ok = SpectralLRFromName("spectral_lr_1-x.txt")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = SpectralLRFromName("baseline_std_0-x.txt")
	assert.False(t, ok)
}

func TestSpectralSweep(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "r-spectral_lr_1-a.txt", spectralLog("3.30"))
	writeLog(t, dir, "r-spectral_lr_0-a.txt", spectralLog("3.28"))
	writeLog(t, dir, "r-spectral_lr_0.5-a.txt", spectralLog("3.275"))
	writeLog(t, dir, "r-spectral_lr_2-a.txt", "no validation here\n")
	writeLog(t, dir, "r-baseline_std_0-a.txt", spectralLog("3.0"))

	runs, err := FindSpectralRuns(dir)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []float64{0, 0.5, 1}, []float64{runs[0].SpectralLR, runs[1].SpectralLR, runs[2].SpectralLR})

	rows := RankSpectral(runs)
	assert.Equal(t, []string{StatusGood, StatusBest, StatusWorse}, []string{rows[0].Status, rows[1].Status, rows[2].Status})
	assert.InDelta(t, 0.025, rows[2].Delta, 1e-9)

	zero, better, ok := BeatsZero(runs)
	require.True(t, ok)
	assert.Equal(t, 0.0, zero.SpectralLR)
	require.Len(t, better, 1)
	assert.Equal(t, 0.5, better[0].SpectralLR)

	out := &bytes.Buffer{}
	WriteSpectralRuns(out, runs)
	WriteSpectralSummary(out, runs)
	text := out.String()
	assert.Contains(t, text, "Found 3 spectral_lr runs:")
	assert.Contains(t, text, "Best configuration: spectral_lr=0.50 (loss: 3.275000)")
	assert.Contains(t, text, "Found 1 configurations that beat spectral_lr=0:")
	assert.Contains(t, text, "spectral_lr=0.50: 0.005000 better")

	path := SpectralOutputPath(dir, len(runs), time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Equal(t, filepath.Join(dir, "spectral_sweep_3runs_20250304-050607.png"), path)
	require.NoError(t, RenderSpectral(runs, DefaultTarget, path))
	assertPNG(t, path)
}

func TestSpectralWithoutRuns(t *testing.T) {
	_, err := FindSpectralRuns(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSpectralRuns)
}

func TestSpectralZeroUnbeaten(t *testing.T) {
	runs := []SpectralRun{
		{SpectralLR: 0, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 3.2}}},
		{SpectralLR: 1, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 3.3}}},
	}
	out := &bytes.Buffer{}
	WriteSpectralSummary(out, runs)
	assert.Contains(t, out.String(), "No non-zero spectral_lr beats spectral_lr=0")
}

func TestSpectralSinglePointPerRun(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "r-spectral_lr_0-a.txt", "step:10/1600 val_loss:5.0 spec_attn:[0.1,0.2] spec_mlp:[0.3,0.5]\n")

	runs, err := FindSpectralRuns(dir)
	require.NoError(t, err)

	panels, err := SpectralPanels(runs, DefaultTarget)
	require.NoError(t, err)
	for _, p := range panels[1:] {
		assert.Greater(t, p.Y.Min, 0.0)
		assert.Greater(t, p.Y.Max, p.Y.Min)
	}
	assert.InDelta(t, 0.075, panels[1].Y.Min, 1e-9)
	assert.InDelta(t, 0.3, panels[1].Y.Max, 1e-9)

	path := filepath.Join(dir, "single.png")
	assert.NotPanics(t, func() {
		require.NoError(t, RenderSpectral(runs, DefaultTarget, path))
	})
	assertPNG(t, path)
}

func TestSpectralDegenerateRatios(t *testing.T) {
	tests := []struct {
		name string
		runs []SpectralRun
		log  bool
	}{
		{
			name: "identical means across runs",
			runs: []SpectralRun{
				{SpectralLR: 0, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 4, Attn: []float64{0.4}, MLP: []float64{0.4}}, {Step: 2, ValLoss: 3.9, Attn: []float64{0.4}, MLP: []float64{-0.4}}}},
				{SpectralLR: 1, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 4.1, Attn: []float64{0.4}, MLP: []float64{0.4}}}},
			},
			log: true,
		},
		{
			name: "all zero vectors",
			runs: []SpectralRun{
				{SpectralLR: 0, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 4, Attn: []float64{0, 0}, MLP: []float64{0}}}},
			},
		},
		{
			name: "no vectors",
			runs: []SpectralRun{
				{SpectralLR: 0.5, Records: []logparse.SpectralRecord{{Step: 1, ValLoss: 4}, {Step: 2, ValLoss: 3.5}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			panels, err := SpectralPanels(tt.runs, DefaultTarget)
			require.NoError(t, err)
			for _, p := range panels[1:] {
				_, isLog := p.Y.Scale.(plot.LogScale)
				assert.Equal(t, tt.log, isLog)
				if isLog {
					assert.Greater(t, p.Y.Min, 0.0)
				}
			}

			path := filepath.Join(t.TempDir(), "sweep.png")
			assert.NotPanics(t, func() {
				require.NoError(t, RenderSpectral(tt.runs, DefaultTarget, path))
			})
			assertPNG(t, path)
		})
	}
}
