package monitor

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/types"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MetricsFileName is the trainer's per-run metrics stream.
const MetricsFileName = "metrics.jsonl"

// Tracked is the run directory chosen for one name pattern. Path is empty
// when no recent directory matched.
type Tracked struct {
	Name string
	Path string
}

type entry struct {
	name    string
	isDir   bool
	modTime time.Time
}

// FindRuns picks, for each pattern, the most recently modified run directory
// under dir whose name contains it. Only the limit most recent entries of any
// kind are considered; plain files in that window are skipped. A directory is
// claimed by the first pattern it contains.
func FindRuns(dir string, patterns []string, limit int) ([]Tracked, error) {
	tracked := make([]Tracked, len(patterns))
	for i, p := range patterns {
		tracked[i].Name = p
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return tracked, nil
		}
		return nil, errors.Wrapf(err, "read log dir %s", dir)
	}

	var entries []entry
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: d.Name(), isDir: d.IsDir(), modTime: info.ModTime()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	for _, e := range entries {
		if !e.isDir {
			continue
		}
		for i, p := range patterns {
			if !strings.Contains(e.name, p) {
				continue
			}
			if tracked[i].Path == "" {
				tracked[i].Path = filepath.Join(dir, e.name)
			}
			break
		}
	}
	return tracked, nil
}

// ReadMetrics reads a run's metrics.jsonl. A missing file yields no records
// and no error. Lines that do not decode, such as a final line the trainer is
// still writing, are skipped and counted.
func ReadMetrics(runDir string) ([]types.MetricRecord, int, error) {
	f, err := os.Open(filepath.Join(runDir, MetricsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrap(err, "open metrics")
	}
	defer f.Close()

	var (
		records []types.MetricRecord
		skipped int
		lineNo  int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec types.MetricRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			log.Debug().Err(err).Str("run", runDir).Int("line", lineNo).Msg("skipping malformed metrics line")
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, skipped, errors.Wrap(err, "scan metrics")
	}
	return records, skipped, nil
}

// Collect resolves tracked runs into statuses.
func Collect(tracked []Tracked) []types.RunStatus {
	statuses := make([]types.RunStatus, 0, len(tracked))
	for _, t := range tracked {
		s := types.RunStatus{Name: t.Name, Path: t.Path, Found: t.Path != ""}
		if s.Found {
			recs, skipped, err := ReadMetrics(t.Path)
			if err != nil {
				log.Warn().Err(err).Str("run", t.Path).Msg("unable to read metrics")
			}
			s.Metrics = recs
			s.Skipped = skipped
		}
		statuses = append(statuses, s)
	}
	return statuses
}
