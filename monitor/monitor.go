// Package monitor polls the trainer's log directory and reports progress of
// the tracked runs until they all reach the target step.
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/types"

	"github.com/rs/zerolog/log"
)

type Options struct {
	LogDir    string
	Patterns  []string
	ScanLimit int
	Target    int
	Interval  time.Duration
}

type Monitor struct {
	opts Options
	out  io.Writer
	now  func() time.Time

	// OnComplete is called once when every tracked run reached the target.
	OnComplete func(ctx context.Context, statuses []types.RunStatus)
}

func New(opts Options, out io.Writer) *Monitor {
	return &Monitor{opts: opts, out: out, now: time.Now}
}

// Poll scans the log directory and reads the tracked runs' metrics.
func (m *Monitor) Poll() ([]types.RunStatus, error) {
	tracked, err := FindRuns(m.opts.LogDir, m.opts.Patterns, m.opts.ScanLimit)
	if err != nil {
		return nil, err
	}
	return Collect(tracked), nil
}

// Once polls and prints a single report. It reports whether all tracked runs
// are complete.
func (m *Monitor) Once() (bool, error) {
	statuses, err := m.Poll()
	if err != nil {
		return false, err
	}
	WriteStatus(m.out, statuses, m.opts.Target, m.now())
	WriteComparison(m.out, statuses)
	return Complete(statuses, m.opts.Target), nil
}

// Run reports every interval until all tracked runs are complete, returning
// nil, or until ctx is done, returning ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	fmt.Fprintln(m.out, "Starting monitoring... (Ctrl+C to stop)")

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		statuses, err := m.Poll()
		if err != nil {
			log.Warn().Err(err).Str("dir", m.opts.LogDir).Msg("poll failed")
		} else {
			WriteStatus(m.out, statuses, m.opts.Target, m.now())
			WriteComparison(m.out, statuses)

			if Complete(statuses, m.opts.Target) {
				rule := strings.Repeat("=", ruleWidth)
				fmt.Fprintf(m.out, "\n%s\nAll runs complete!\n%s\n", rule, rule)
				if m.OnComplete != nil {
					m.OnComplete(ctx, statuses)
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(m.out, "\n\nMonitoring stopped.")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
