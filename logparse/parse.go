// Package logparse extracts validation and per-step schedule records from the
// trainer's free-text log files.
package logparse

import (
	"bufio"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// ValRecord is a full validation line.
type ValRecord struct {
	Step        int
	ValLoss     float64
	LRMul       float64
	Beta1       float64
	Beta2       float64
	BatchSize   int
	TrainTimeMS float64
}

// TrainTimeSeconds is the cumulative train time in seconds.
func (r ValRecord) TrainTimeSeconds() float64 {
	return r.TrainTimeMS / 1000
}

// StepRecord is a schedule sample. Fields a grammar does not expose stay nil.
type StepRecord struct {
	Step      int
	LRMul     float64
	Beta1     *float64
	Beta2     *float64
	BatchSize *int
	Grammar   string
}

// SpectralRecord is a validation point with optional spectral ratio vectors.
type SpectralRecord struct {
	Step    int
	ValLoss float64
	Attn    []float64
	MLP     []float64
}

func meanAbs(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vs {
		sum += math.Abs(v)
	}
	return sum / float64(len(vs)), true
}

// AttnMean is the mean absolute attention-layer spectral ratio.
func (r SpectralRecord) AttnMean() (float64, bool) { return meanAbs(r.Attn) }

// MLPMean is the mean absolute MLP-layer spectral ratio.
func (r SpectralRecord) MLPMean() (float64, bool) { return meanAbs(r.MLP) }

// Log holds everything extracted from one file, in file order.
type Log struct {
	Val      []ValRecord
	Steps    []StepRecord
	Spectral []SpectralRecord
}

const maxLineSize = 4 << 20

// Parse reads r line by line. Lines matching no grammar are skipped.
func Parse(r io.Reader) (*Log, error) {
	out := &Log{}
	seen := make(map[int]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()

		if v, ok := MatchVal(line); ok {
			out.Val = append(out.Val, v)
		}

		if m := MatchStep(line); m.Matched() {
			// legacy lines repeat steps already logged by richer lines
			if m.Grammar != GrammarLegacy || !seen[m.Record.Step] {
				out.Steps = append(out.Steps, m.Record)
				seen[m.Record.Step] = true
			}
		}

		if s, ok := MatchSpectral(line); ok {
			out.Spectral = append(out.Spectral, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan log")
	}
	return out, nil
}

// ParseFile parses the log at path.
func ParseFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return l, nil
}
