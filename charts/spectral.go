package charts

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/logparse"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SpectralGoodDelta is the largest gap from the best final loss still rated
// Good.
const SpectralGoodDelta = 0.01

// logPad widens log-scale ratio axes on both sides.
const logPad = 2

var spectralLRRE = regexp.MustCompile(`spectral_lr_([\d.]+)`)

var (
	spectralWidth       = 14 * vg.Inch
	spectralPanelHeight = 4 * vg.Inch
)

// ErrNoSpectralRuns is returned when no spectral sweep log has validation data.
var ErrNoSpectralRuns = errors.New("no spectral_lr runs found")

// SpectralRun is one log of the spectral learning-rate sweep.
type SpectralRun struct {
	SpectralLR float64
	Path       string
	Records    []logparse.SpectralRecord
}

// FinalLoss is the last recorded validation loss.
func (r SpectralRun) FinalLoss() float64 {
	return r.Records[len(r.Records)-1].ValLoss
}

// SpectralLRFromName extracts the spectral learning-rate multiplier from a
// log file name.
func SpectralLRFromName(name string) (float64, bool) {
	m := spectralLRRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimRight(m[1], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FindSpectralRuns collects <dir>/*spectral_lr_*-*.txt logs that carry
// validation data, ordered by spectral learning rate.
func FindSpectralRuns(dir string) ([]SpectralRun, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*spectral_lr_*-*.txt"))
	if err != nil {
		return nil, errors.Wrap(err, "glob spectral logs")
	}

	var runs []SpectralRun
	for _, p := range paths {
		lr, ok := SpectralLRFromName(p)
		if !ok {
			continue
		}
		l, err := logparse.ParseFile(p)
		if err != nil {
			log.Warn().Err(err).Str("log", p).Msg("skipping unreadable log")
			continue
		}
		if len(l.Spectral) == 0 {
			continue
		}
		runs = append(runs, SpectralRun{SpectralLR: lr, Path: p, Records: l.Spectral})
	}
	if len(runs) == 0 {
		return nil, ErrNoSpectralRuns
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].SpectralLR < runs[j].SpectralLR })
	return runs, nil
}

// SpectralOutputPath is <dir>/spectral_sweep_<n>runs_<timestamp>.png.
func SpectralOutputPath(dir string, n int, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("spectral_sweep_%druns_%s.png", n, now.Format("20060102-150405")))
}

// RenderSpectral draws validation loss and the mean spectral ratios of the
// attention and MLP layers into path.
func RenderSpectral(runs []SpectralRun, target float64, path string) error {
	panels, err := SpectralPanels(runs, target)
	if err != nil {
		return err
	}
	return saveStacked(panels, spectralWidth, spectralPanelHeight, path)
}

// SpectralPanels builds the three sweep panels. Ratio panels use a log
// scale, so only positive means are drawn.
func SpectralPanels(runs []SpectralRun, target float64) ([]*plot.Plot, error) {
	loss := newPanel("Spectral LR Sweep: Validation Loss", "Step", "Validation Loss")
	for i, r := range runs {
		xys := make(plotter.XYs, len(r.Records))
		for j, rec := range r.Records {
			xys[j] = plotter.XY{X: float64(rec.Step), Y: rec.ValLoss}
		}
		label := fmt.Sprintf("spectral_lr=%.2f (final: %.4f)", r.SpectralLR, r.FinalLoss())
		if _, err := addLine(loss, xys, label, seriesColor(i), true, nil); err != nil {
			return nil, err
		}
	}
	addHLine(loss, target, "Target: "+targetLabel(target), targetColor)

	attn, err := ratioPanel(runs, "Spectral Ratio Evolution: Attention Layers", "Mean |ρ| (Attention)", logparse.SpectralRecord.AttnMean)
	if err != nil {
		return nil, err
	}
	mlp, err := ratioPanel(runs, "Spectral Ratio Evolution: MLP Layers", "Mean |ρ| (MLP)", logparse.SpectralRecord.MLPMean)
	if err != nil {
		return nil, err
	}
	return []*plot.Plot{loss, attn, mlp}, nil
}

func ratioPanel(runs []SpectralRun, heading, yLabel string, mean func(logparse.SpectralRecord) (float64, bool)) (*plot.Plot, error) {
	p := newPanel(heading, "Step", yLabel)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, r := range runs {
		var xys plotter.XYs
		for _, rec := range r.Records {
			if v, ok := mean(rec); ok && v > 0 {
				xys = append(xys, plotter.XY{X: float64(rec.Step), Y: v})
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
		if len(xys) == 0 {
			continue
		}
		if _, err := addLine(p, xys, fmt.Sprintf("spectral_lr=%.2f", r.SpectralLR), seriesColor(i), true, nil); err != nil {
			return nil, err
		}
	}
	if hi > 0 {
		setLogRange(p, lo, hi)
	}
	return p, nil
}

// setLogRange puts p's Y axis on a log scale spanning [lo, hi] padded by a
// factor of two, so the range stays positive even when lo equals hi.
func setLogRange(p *plot.Plot, lo, hi float64) {
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Min = lo / logPad
	p.Y.Max = hi * logPad
}

// Spectral verdicts.
const (
	StatusBest  = "BEST"
	StatusGood  = "Good"
	StatusWorse = "Worse"
)

// SpectralRow is one line of the sweep results table.
type SpectralRow struct {
	SpectralLR float64
	FinalLoss  float64
	Delta      float64
	Status     string
}

// RankSpectral rates every run against the lowest final loss. Rows keep the
// order of runs; the first run with the lowest loss is BEST.
func RankSpectral(runs []SpectralRun) []SpectralRow {
	if len(runs) == 0 {
		return nil
	}
	best := 0
	for i, r := range runs {
		if r.FinalLoss() < runs[best].FinalLoss() {
			best = i
		}
	}

	rows := make([]SpectralRow, len(runs))
	for i, r := range runs {
		delta := r.FinalLoss() - runs[best].FinalLoss()
		status := StatusWorse
		switch {
		case i == best:
			status = StatusBest
		case delta < SpectralGoodDelta:
			status = StatusGood
		}
		rows[i] = SpectralRow{SpectralLR: r.SpectralLR, FinalLoss: r.FinalLoss(), Delta: delta, Status: status}
	}
	return rows
}

// BeatsZero returns the runs with a positive spectral learning rate whose
// final loss is below the zero run's. hasZero is false when no run used zero.
func BeatsZero(runs []SpectralRun) (zero SpectralRun, better []SpectralRun, hasZero bool) {
	for _, r := range runs {
		if r.SpectralLR == 0 {
			zero, hasZero = r, true
			break
		}
	}
	if !hasZero {
		return SpectralRun{}, nil, false
	}
	for _, r := range runs {
		if r.SpectralLR > 0 && r.FinalLoss() < zero.FinalLoss() {
			better = append(better, r)
		}
	}
	return zero, better, true
}

// WriteSpectralRuns lists the runs found.
func WriteSpectralRuns(w io.Writer, runs []SpectralRun) {
	fmt.Fprintf(w, "Found %d spectral_lr runs:\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "  spectral_lr=%.2f: %s\n", r.SpectralLR, filepath.Base(r.Path))
	}
}

// WriteSpectralSummary prints the sweep results table and the comparison
// against the zero baseline.
func WriteSpectralSummary(w io.Writer, runs []SpectralRun) {
	rows := RankSpectral(runs)
	if len(rows) == 0 {
		return
	}
	re := lipgloss.NewRenderer(w)
	bold := re.NewStyle().Bold(true)
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, bold.Render("SPECTRAL LR SWEEP RESULTS"), rule)
	fmt.Fprintf(w, "%-12s | %-12s | %-12s | %s\n", "spectral_lr", "Final Loss", "Δ vs Best", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	var best SpectralRow
	for _, row := range rows {
		if row.Status == StatusBest {
			best = row
		}
		fmt.Fprintf(w, "%-12.2f | %-12.6f | %-12.6f | %s\n", row.SpectralLR, row.FinalLoss, row.Delta, row.Status)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "\nBest configuration: spectral_lr=%.2f (loss: %.6f)\n", best.SpectralLR, best.FinalLoss)

	zero, better, ok := BeatsZero(runs)
	if !ok {
		return
	}
	if len(better) == 0 {
		fmt.Fprintln(w, "\nNo non-zero spectral_lr beats spectral_lr=0")
		fmt.Fprintln(w, "   Conclusion: Spectral learning does not help for this task")
		return
	}
	fmt.Fprintf(w, "\nFound %d configurations that beat spectral_lr=0:\n", len(better))
	for _, r := range better {
		fmt.Fprintf(w, "   spectral_lr=%.2f: %.6f better\n", r.SpectralLR, zero.FinalLoss()-r.FinalLoss())
	}
}
