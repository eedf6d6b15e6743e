// Package charts renders trainer logs into stacked PNG charts and prints the
// matching text summaries.
package charts

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gidra39/lrsweep/logparse"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTarget is the validation loss the trainer is chasing.
const DefaultTarget = 3.28

// ErrNoLogs is returned when a log directory holds no *.txt logs.
var ErrNoLogs = errors.New("no log files found")

// ErrNoData is returned when none of the given logs contain validation lines.
var ErrNoData = errors.New("no validation loss data found")

// Dataset is one parsed log file.
type Dataset struct {
	Name string
	Path string
	Log  *logparse.Log
}

// Stem is the file name without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDatasets parses every path. A missing file is an error; a log without
// validation lines is skipped with a warning.
func LoadDatasets(paths []string) ([]Dataset, error) {
	var out []Dataset
	for _, p := range paths {
		l, err := logparse.ParseFile(p)
		if err != nil {
			return nil, err
		}
		if len(l.Val) == 0 {
			log.Warn().Str("log", p).Msg("no validation loss data found")
			continue
		}
		out = append(out, Dataset{Name: Stem(p), Path: p, Log: l})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// MostRecentLog returns the most recently modified *.txt file in dir.
func MostRecentLog(dir string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return "", errors.Wrap(err, "glob logs")
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var cands []candidate
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		cands = append(cands, candidate{path: p, mtime: info.ModTime().UnixNano()})
	}
	if len(cands) == 0 {
		return "", errors.Wrap(ErrNoLogs, dir)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].mtime > cands[j].mtime })
	return cands[0].path, nil
}

// OutputPath is <log>.png for a single dataset and <logDir>/comparison.png
// otherwise.
func OutputPath(datasets []Dataset, logDir string) string {
	if len(datasets) == 1 {
		p := datasets[0].Path
		return strings.TrimSuffix(p, filepath.Ext(p)) + ".png"
	}
	return filepath.Join(logDir, "comparison.png")
}

// TargetHit is the first validation record at or below the target loss.
type TargetHit struct {
	Step    int
	Seconds float64
}

// TimeToTarget finds the first validation record with loss <= target.
func TimeToTarget(val []logparse.ValRecord, target float64) (TargetHit, bool) {
	for _, v := range val {
		if v.ValLoss <= target {
			return TargetHit{Step: v.Step, Seconds: v.TrainTimeSeconds()}, true
		}
	}
	return TargetHit{}, false
}

// Summary is the per-run digest printed after plotting.
type Summary struct {
	Name         string
	TotalSteps   int
	InitialLoss  float64
	FinalLoss    float64
	Improvement  float64
	HasImproved  bool
	Target       float64
	Hit          TargetHit
	Reached      bool
	TotalSeconds float64
	BatchSizes   []int
}

// Summarize digests d against target.
func Summarize(d Dataset, target float64) Summary {
	val := d.Log.Val
	s := Summary{Name: d.Name, Target: target}
	if len(val) == 0 {
		return s
	}
	first, last := val[0], val[len(val)-1]
	s.TotalSteps = last.Step
	s.InitialLoss = first.ValLoss
	s.FinalLoss = last.ValLoss
	if len(val) > 1 {
		s.Improvement = first.ValLoss - last.ValLoss
		s.HasImproved = true
	}
	s.Hit, s.Reached = TimeToTarget(val, target)
	s.TotalSeconds = last.TrainTimeSeconds()
	s.BatchSizes = distinctBatchSizes(d.Log.Steps)
	return s
}

func distinctBatchSizes(steps []logparse.StepRecord) []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range steps {
		if s.BatchSize == nil || seen[*s.BatchSize] {
			continue
		}
		seen[*s.BatchSize] = true
		out = append(out, *s.BatchSize)
	}
	sort.Ints(out)
	return out
}
