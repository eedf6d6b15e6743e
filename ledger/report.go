package ledger

import (
	"fmt"
	"io"
	"time"

	"github.com/gidra39/lrsweep/types"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WriteTable prints entries as a table with times relative to now.
func WriteTable(w io.Writer, entries []types.LedgerEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintf(w, "%-5s %-16s %-10s %-5s %-16s %-14s %s\n", "ID", "Sweep", "State", "Exit", "Started", "Duration", "Run")
	for _, e := range entries {
		duration := "-"
		if e.FinishedAt != nil {
			duration = e.FinishedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%-5d %-16s %-10s %-5d %-16s %-14s %s\n",
			e.ID, e.SweepID, e.State, e.ExitCode,
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			duration, e.RunID)
	}
}

// WriteYAML exports entries as a YAML sequence.
func WriteYAML(w io.Writer, entries []types.LedgerEntry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if entries == nil {
		entries = []types.LedgerEntry{}
	}
	if err := enc.Encode(entries); err != nil {
		return errors.Wrap(err, "encode ledger")
	}
	return errors.Wrap(enc.Close(), "flush ledger")
}
