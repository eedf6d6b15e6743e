package types

import "time"

// MetricRecord is one line of a run's metrics.jsonl, written by the trainer.
type MetricRecord struct {
	Step      int      `json:"step"`
	ValLoss   *float64 `json:"val_loss,omitempty"`
	TrainTime float64  `json:"train_time"` // milliseconds
}

// RunStatus is what the monitor knows about one tracked run at a poll.
type RunStatus struct {
	Name    string
	Path    string
	Found   bool
	Metrics []MetricRecord
	// Skipped counts metrics lines that did not decode.
	Skipped int
}

func (s RunStatus) Started() bool {
	return len(s.Metrics) > 0
}

func (s RunStatus) Latest() (MetricRecord, bool) {
	if len(s.Metrics) == 0 {
		return MetricRecord{}, false
	}
	return s.Metrics[len(s.Metrics)-1], true
}

// FirstValLoss returns the earliest recorded validation loss.
func (s RunStatus) FirstValLoss() (float64, bool) {
	for _, m := range s.Metrics {
		if m.ValLoss != nil {
			return *m.ValLoss, true
		}
	}
	return 0, false
}

// LastValLoss returns the most recent recorded validation loss.
func (s RunStatus) LastValLoss() (float64, bool) {
	for i := len(s.Metrics) - 1; i >= 0; i-- {
		if s.Metrics[i].ValLoss != nil {
			return *s.Metrics[i].ValLoss, true
		}
	}
	return 0, false
}

// TrainTimeElapsed converts the latest cumulative train time to a duration.
func (s RunStatus) TrainTimeElapsed() time.Duration {
	latest, ok := s.Latest()
	if !ok {
		return 0
	}
	return time.Duration(latest.TrainTime * float64(time.Millisecond))
}

// RunState is the lifecycle of one launched run as recorded in the ledger.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// LedgerEntry is one launched run.
type LedgerEntry struct {
	ID         int64      `json:"id" yaml:"id"`
	SweepID    string     `json:"sweep_id" yaml:"sweep_id"`
	RunID      string     `json:"run_id" yaml:"run_id"`
	Tag        string     `json:"tag" yaml:"tag"`
	State      RunState   `json:"state" yaml:"state"`
	ExitCode   int        `json:"exit_code" yaml:"exit_code"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}
