package logparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Step grammar names, richest first.
const (
	GrammarFull   = "full"
	GrammarBetas  = "betas"
	GrammarLegacy = "legacy"
)

var (
	valRE = regexp.MustCompile(`step:(\d+)/\d+\s+val_loss:([\d.]+)\s+lr_mul:([\d.]+)\s+beta1:([\d.]+)\s+beta2:([\d.]+)\s+batch_size:(\d+)\s+train_time:([\d.]+)ms`)

	fullRE   = regexp.MustCompile(`step:(\d+)/\d+\s+.*?lr_mul:([\d.]+)\s+beta1:([\d.]+)\s+beta2:([\d.]+)\s+batch_size:(\d+)`)
	betasRE  = regexp.MustCompile(`step:(\d+)/\d+\s+.*?lr_mul:([\d.]+)\s+beta1:([\d.]+)\s+beta2:([\d.]+)`)
	legacyRE = regexp.MustCompile(`step:(\d+)/\d+\s+lr_mul:([\d.]+)`)

	specStepRE = regexp.MustCompile(`step:(\d+)/`)
	specLossRE = regexp.MustCompile(`val_loss:([\d.]+)`)
	specAttnRE = regexp.MustCompile(`spec_attn:\[([0-9eE+.,\-\s]+)\]`)
	specMLPRE  = regexp.MustCompile(`spec_mlp:\[([0-9eE+.,\-\s]+)\]`)
)

// Grammar is one named step-line matcher.
type Grammar struct {
	Name  string
	re    *regexp.Regexp
	build func(m []string) (StepRecord, bool)
}

// Match is the outcome of running the step grammars over one line. Grammar
// is empty when nothing matched.
type Match struct {
	Grammar string
	Record  StepRecord
}

func (m Match) Matched() bool { return m.Grammar != "" }

// StepGrammars are tried in order; the first that matches wins.
var StepGrammars = []Grammar{
	{Name: GrammarFull, re: fullRE, build: buildFull},
	{Name: GrammarBetas, re: betasRE, build: buildBetas},
	{Name: GrammarLegacy, re: legacyRE, build: buildLegacy},
}

// MatchStep runs StepGrammars over line. A grammar whose numeric fields fail
// to convert counts as not matching and the next one is tried.
func MatchStep(line string) Match {
	for _, g := range StepGrammars {
		m := g.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rec, ok := g.build(m)
		if !ok {
			continue
		}
		rec.Grammar = g.Name
		return Match{Grammar: g.Name, Record: rec}
	}
	return Match{}
}

// numbers converts regexp captures, failing on the first malformed value.
type numbers struct{ ok bool }

func (n *numbers) int(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		n.ok = false
	}
	return v
}

func (n *numbers) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		n.ok = false
	}
	return v
}

func buildFull(m []string) (StepRecord, bool) {
	n := numbers{ok: true}
	beta1, beta2 := n.float(m[3]), n.float(m[4])
	batch := n.int(m[5])
	rec := StepRecord{
		Step:      n.int(m[1]),
		LRMul:     n.float(m[2]),
		Beta1:     &beta1,
		Beta2:     &beta2,
		BatchSize: &batch,
	}
	return rec, n.ok
}

func buildBetas(m []string) (StepRecord, bool) {
	n := numbers{ok: true}
	beta1, beta2 := n.float(m[3]), n.float(m[4])
	rec := StepRecord{
		Step:  n.int(m[1]),
		LRMul: n.float(m[2]),
		Beta1: &beta1,
		Beta2: &beta2,
	}
	return rec, n.ok
}

func buildLegacy(m []string) (StepRecord, bool) {
	n := numbers{ok: true}
	rec := StepRecord{
		Step:  n.int(m[1]),
		LRMul: n.float(m[2]),
	}
	return rec, n.ok
}

// MatchVal extracts a validation record from a full validation line.
func MatchVal(line string) (ValRecord, bool) {
	m := valRE.FindStringSubmatch(line)
	if m == nil {
		return ValRecord{}, false
	}
	n := numbers{ok: true}
	rec := ValRecord{
		Step:        n.int(m[1]),
		ValLoss:     n.float(m[2]),
		LRMul:       n.float(m[3]),
		Beta1:       n.float(m[4]),
		Beta2:       n.float(m[5]),
		BatchSize:   n.int(m[6]),
		TrainTimeMS: n.float(m[7]),
	}
	return rec, n.ok
}

// MatchSpectral extracts step, loss and spectral ratio vectors from any line
// carrying a validation loss. A vector that fails to parse is left absent.
func MatchSpectral(line string) (SpectralRecord, bool) {
	if !strings.Contains(line, "val_loss:") {
		return SpectralRecord{}, false
	}
	sm := specStepRE.FindStringSubmatch(line)
	lm := specLossRE.FindStringSubmatch(line)
	if sm == nil || lm == nil {
		return SpectralRecord{}, false
	}
	n := numbers{ok: true}
	rec := SpectralRecord{Step: n.int(sm[1]), ValLoss: n.float(lm[1])}
	if !n.ok {
		return SpectralRecord{}, false
	}
	if am := specAttnRE.FindStringSubmatch(line); am != nil {
		rec.Attn = parseVector(am[1])
	}
	if mm := specMLPRE.FindStringSubmatch(line); mm != nil {
		rec.MLP = parseVector(mm[1])
	}
	return rec, true
}

func parseVector(s string) []float64 {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}
