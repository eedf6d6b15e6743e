package charts

import (
	"fmt"
	"math"
	"strings"

	"github.com/gidra39/lrsweep/logparse"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	lossYMin   = 3.2
	lossYMax   = 5.25
	markedRuns = 3
)

var (
	lossWidth       = 10 * vg.Inch
	lossPanelHeight = 4.4 * vg.Inch
)

// RenderLoss draws the five-panel loss chart for datasets into path.
func RenderLoss(datasets []Dataset, target float64, path string) error {
	panels, err := LossPanels(datasets, target)
	if err != nil {
		return err
	}
	return saveStacked(panels, lossWidth, lossPanelHeight, path)
}

// LossPanels builds, top to bottom: validation loss, cumulative train time,
// lr_mul, Adam betas and batch size.
func LossPanels(datasets []Dataset, target float64) ([]*plot.Plot, error) {
	builders := []func([]Dataset, float64) (*plot.Plot, error){
		lossPanel,
		timePanel,
		lrPanel,
		betaPanel,
		batchPanel,
	}
	panels := make([]*plot.Plot, 0, len(builders))
	for _, build := range builders {
		p, err := build(datasets, target)
		if err != nil {
			return nil, err
		}
		panels = append(panels, p)
	}
	return panels, nil
}

func title(datasets []Dataset, single, multi string, notes ...string) string {
	if len(datasets) != 1 {
		return multi
	}
	lines := []string{single}
	for _, n := range notes {
		if n != "" {
			lines = append(lines, n)
		}
	}
	return strings.Join(lines, "\n")
}

// legendLabel hides per-run legend entries on single-run panels that carry
// their notes in the title.
func legendLabel(datasets []Dataset, name string) string {
	if len(datasets) == 1 {
		return ""
	}
	return name
}

// LossAnnotation is the single-run note on the loss panel. It names the
// target only when a validation loss reached it.
func LossAnnotation(d Dataset, target float64) string {
	val := d.Log.Val
	if len(val) == 0 {
		return ""
	}
	note := fmt.Sprintf("Final Loss: %.4f", val[len(val)-1].ValLoss)
	if hit, ok := TimeToTarget(val, target); ok {
		note += fmt.Sprintf("  Reached %s at step %d (%.1fs)", targetLabel(target), hit.Step, hit.Seconds)
	}
	return note
}

func lossPanel(datasets []Dataset, target float64) (*plot.Plot, error) {
	var notes []string
	if len(datasets) == 1 {
		notes = append(notes, datasets[0].Name, LossAnnotation(datasets[0], target))
	}
	p := newPanel(title(datasets, "Validation Loss Over Time", "Validation Loss Comparison", notes...), "Step", "Validation Loss")

	marked := len(datasets) <= markedRuns
	for i, d := range datasets {
		xys := make(plotter.XYs, len(d.Log.Val))
		for j, v := range d.Log.Val {
			xys[j] = plotter.XY{X: float64(v.Step), Y: v.ValLoss}
		}
		if _, err := addLine(p, xys, d.Name, seriesColor(i), marked, nil); err != nil {
			return nil, err
		}
	}
	addHLine(p, target, "Target: "+targetLabel(target), targetColor)

	p.Y.Min = lossYMin
	if target < lossYMin {
		p.Y.Min = target - 0.08
	}
	p.Y.Max = lossYMax
	return p, nil
}

func timePanel(datasets []Dataset, target float64) (*plot.Plot, error) {
	var note string
	if len(datasets) == 1 {
		if val := datasets[0].Log.Val; len(val) > 0 {
			total := val[len(val)-1].TrainTimeSeconds()
			note = fmt.Sprintf("Total Time: %.1fs (%.2f min)", total, minutes(total))
		}
	}
	p := newPanel(title(datasets, "Cumulative Training Time", "Training Time Comparison", note), "Step", "Training Time (seconds)")

	marked := len(datasets) <= markedRuns
	for i, d := range datasets {
		xys := make(plotter.XYs, len(d.Log.Val))
		for j, v := range d.Log.Val {
			xys[j] = plotter.XY{X: float64(v.Step), Y: v.TrainTimeSeconds()}
		}
		if _, err := addLine(p, xys, legendLabel(datasets, d.Name), seriesColor(i), marked, nil); err != nil {
			return nil, err
		}
	}

	if len(datasets) == 1 {
		if hit, ok := TimeToTarget(datasets[0].Log.Val, target); ok {
			addHLine(p, hit.Seconds, fmt.Sprintf("Time to %s: %.1fs", targetLabel(target), hit.Seconds), reachColor)
		}
	}
	return p, nil
}

func lrPanel(datasets []Dataset, _ float64) (*plot.Plot, error) {
	var note string
	if len(datasets) == 1 && len(datasets[0].Log.Steps) > 0 {
		steps := datasets[0].Log.Steps
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, s := range steps {
			lo = math.Min(lo, s.LRMul)
			hi = math.Max(hi, s.LRMul)
		}
		note = fmt.Sprintf("Max: %.4f  Min: %.4f  Final: %.4f", hi, lo, steps[len(steps)-1].LRMul)
	}
	p := newPanel(title(datasets, "Learning Rate Schedule", "Learning Rate Schedule Comparison", note), "Step", "Learning Rate Multiplier (lr_mul)")

	for i, d := range datasets {
		xys := make(plotter.XYs, len(d.Log.Steps))
		for j, s := range d.Log.Steps {
			xys[j] = plotter.XY{X: float64(s.Step), Y: s.LRMul}
		}
		if _, err := addLine(p, xys, legendLabel(datasets, d.Name), seriesColor(i), false, nil); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func betaSeries(steps []logparse.StepRecord) (beta1, beta2 plotter.XYs) {
	for _, s := range steps {
		if s.Beta1 == nil || s.Beta2 == nil {
			continue
		}
		beta1 = append(beta1, plotter.XY{X: float64(s.Step), Y: *s.Beta1})
		beta2 = append(beta2, plotter.XY{X: float64(s.Step), Y: *s.Beta2})
	}
	return beta1, beta2
}

func betaPanel(datasets []Dataset, _ float64) (*plot.Plot, error) {
	var note string
	if len(datasets) == 1 {
		if b1, b2 := betaSeries(datasets[0].Log.Steps); len(b1) > 0 {
			note = fmt.Sprintf("Final beta1: %.4f  Final beta2: %.4f", b1[len(b1)-1].Y, b2[len(b2)-1].Y)
		}
	}
	p := newPanel(title(datasets, "Adam Beta Schedule", "Adam Beta Schedule Comparison", note), "Step", "Beta Values")

	for i, d := range datasets {
		b1, b2 := betaSeries(d.Log.Steps)
		if _, err := addLine(p, b1, d.Name+" (beta1)", seriesColor(i), false, nil); err != nil {
			return nil, err
		}
		if _, err := addLine(p, b2, d.Name+" (beta2)", seriesColor(i), false, dashed); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func batchPanel(datasets []Dataset, _ float64) (*plot.Plot, error) {
	var note string
	if len(datasets) == 1 {
		if sizes := distinctBatchSizes(datasets[0].Log.Steps); len(sizes) > 0 {
			note = "Batch sizes: " + commaList(sizes)
		}
	}
	p := newPanel(title(datasets, "Batch Size Schedule", "Batch Size Schedule Comparison", note), "Step", "Batch Size")

	for i, d := range datasets {
		var xys plotter.XYs
		for _, s := range d.Log.Steps {
			if s.BatchSize != nil {
				xys = append(xys, plotter.XY{X: float64(s.Step), Y: float64(*s.BatchSize)})
			}
		}
		line, err := addLine(p, xys, legendLabel(datasets, d.Name), seriesColor(i), false, nil)
		if err != nil {
			return nil, err
		}
		if line != nil {
			line.StepStyle = plotter.PostStep
		}
	}
	return p, nil
}
