package monitor

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/types"

	"github.com/charmbracelet/lipgloss"
)

const ruleWidth = 80

// Improvement is the first recorded validation loss minus the latest one.
// It needs more than one record and a validation loss on the latest record.
func Improvement(s types.RunStatus) (improvement, first float64, ok bool) {
	latest, has := s.Latest()
	if !has || len(s.Metrics) < 2 || latest.ValLoss == nil {
		return 0, 0, false
	}
	first, ok = s.FirstValLoss()
	if !ok {
		return 0, 0, false
	}
	return first - *latest.ValLoss, first, true
}

// Ranked is one row of the loss comparison.
type Ranked struct {
	Rank    int
	Name    string
	ValLoss float64
	Delta   float64
}

// Rank orders runs by their latest validation loss, best first, with the
// distance from the best. Runs without any validation loss are left out.
func Rank(statuses []types.RunStatus) []Ranked {
	var rows []Ranked
	for _, s := range statuses {
		if loss, ok := s.LastValLoss(); ok {
			rows = append(rows, Ranked{Name: s.Name, ValLoss: loss})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ValLoss < rows[j].ValLoss })
	for i := range rows {
		rows[i].Rank = i + 1
		rows[i].Delta = rows[i].ValLoss - rows[0].ValLoss
	}
	return rows
}

// Complete reports whether every found run has reached target. No found
// runs, or a found run without metrics, is never complete.
func Complete(statuses []types.RunStatus, target int) bool {
	found := 0
	for _, s := range statuses {
		if !s.Found {
			continue
		}
		found++
		latest, ok := s.Latest()
		if !ok || latest.Step < target {
			return false
		}
	}
	return found > 0
}

type reporter struct {
	w       io.Writer
	heading lipgloss.Style
	dim     lipgloss.Style
}

func newReporter(w io.Writer) reporter {
	r := lipgloss.NewRenderer(w)
	return reporter{
		w:       w,
		heading: r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
	}
}

func (r reporter) banner(title string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n", rule, r.heading.Render(title), rule)
}

// WriteStatus prints the per-run status block.
func WriteStatus(w io.Writer, statuses []types.RunStatus, target int, now time.Time) {
	r := newReporter(w)
	r.banner("Training Status - " + now.Format("2006-01-02 15:04:05"))

	for _, s := range statuses {
		fmt.Fprintf(w, "\n%s:\n", r.heading.Render(s.Name))
		if !s.Found {
			fmt.Fprintln(w, r.dim.Render("  Not found"))
			continue
		}
		fmt.Fprintf(w, "  Path: %s\n", s.Path)

		latest, ok := s.Latest()
		if !ok {
			fmt.Fprintln(w, "  Status: Starting...")
			continue
		}

		fmt.Fprintf(w, "  Step: %d/%d\n", latest.Step, target)
		if latest.ValLoss != nil {
			fmt.Fprintf(w, "  Val Loss: %.4f\n", *latest.ValLoss)
		}
		fmt.Fprintf(w, "  Train Time: %.1fs\n", s.TrainTimeElapsed().Seconds())

		if imp, first, ok := Improvement(s); ok {
			fmt.Fprintf(w, "  Improvement: %.4f (from %.4f)\n", imp, first)
		}
		if s.Skipped > 0 {
			fmt.Fprintf(w, "  Skipped lines: %d\n", s.Skipped)
		}
	}
}

// WriteComparison prints the loss ranking table.
func WriteComparison(w io.Writer, statuses []types.RunStatus) {
	r := newReporter(w)
	r.banner("Loss Comparison (latest validation loss)")

	rows := Rank(statuses)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No validation losses available yet")
		return
	}

	fmt.Fprintf(w, "\n%-6s %-25s %-12s %s\n", "Rank", "Config", "Val Loss", "Δ from best")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, row := range rows {
		delta := fmt.Sprintf("%.4f", row.Delta)
		if row.Delta > 0 {
			delta = "+" + delta
		}
		fmt.Fprintf(w, "%-6d %-25s %.6f    %s\n", row.Rank, row.Name, row.ValLoss, delta)
	}
}
