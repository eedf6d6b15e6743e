package charts

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

func minutes(secs float64) float64 { return secs / 60 }

func targetLabel(target float64) string {
	return fmt.Sprintf("%.2f", target)
}

func commaList(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, bs := range sizes {
		parts[i] = humanize.Comma(int64(bs))
	}
	return strings.Join(parts, ", ")
}

// WriteSummary prints the training summary for one run.
func WriteSummary(w io.Writer, s Summary) {
	heading := lipgloss.NewRenderer(w).NewStyle().Bold(true)
	fmt.Fprintf(w, "\n%s\n", heading.Render("=== Training Summary: "+s.Name+" ==="))
	fmt.Fprintf(w, "Total steps: %d\n", s.TotalSteps)
	fmt.Fprintf(w, "Initial val loss: %.4f\n", s.InitialLoss)
	fmt.Fprintf(w, "Final val loss: %.4f\n", s.FinalLoss)
	if s.HasImproved {
		fmt.Fprintf(w, "Loss improvement: %.4f\n", s.Improvement)
	}

	target := targetLabel(s.Target)
	if s.Reached {
		fmt.Fprintf(w, "Reached %s loss at step: %d\n", target, s.Hit.Step)
		fmt.Fprintf(w, "Time to reach %s: %.1fs (%.2f min)\n", target, s.Hit.Seconds, minutes(s.Hit.Seconds))
	} else {
		fmt.Fprintf(w, "Target loss of %s not yet reached\n", target)
	}
	fmt.Fprintf(w, "Total training time: %.1fs (%.2f min)\n", s.TotalSeconds, minutes(s.TotalSeconds))
	if len(s.BatchSizes) > 0 {
		fmt.Fprintf(w, "Batch sizes: %s\n", commaList(s.BatchSizes))
	}
}
