package sweep

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout formats the sweep start time embedded in run ids.
const TimestampLayout = "20060102-150405"

// Trainer environment variable names.
const (
	EnvRunID                  = "RUN_ID"
	EnvLRMuls                 = "LR_MULS"
	EnvCooldownFrac           = "COOLDOWN_FRAC"
	EnvLRDecayType            = "LR_DECAY_TYPE"
	EnvLRDecayFinal           = "LR_DECAY_FINAL"
	EnvLRDecaySwitchStep      = "LR_DECAY_SWITCH_STEP"
	EnvLRDecaySecondType      = "LR_DECAY_SECOND_TYPE"
	EnvLRDecaySecondFinal     = "LR_DECAY_SECOND_FINAL"
	EnvSpectralLRMul          = "SPECTRAL_LR_MUL"
	EnvBatchSizes             = "BATCH_SIZES"
	EnvNumScheduledIterations = "NUM_SCHEDULED_ITERATIONS"
	EnvNumExtensionIterations = "NUM_EXTENSION_ITERATIONS"
	EnvValLossEvery           = "VAL_LOSS_EVERY"
	EnvValLossLastSteps       = "VAL_LOSS_LAST_STEPS"
	EnvValLossEveryLast       = "VAL_LOSS_EVERY_LAST"
	EnvLibraryPath            = "LD_LIBRARY_PATH"
)

// Timestamp renders t the way run ids expect it.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// shortFloat keeps six significant digits and drops trailing zeros.
func shortFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinFloats(vs []float64, sep string, f func(float64) string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = f(v)
	}
	return strings.Join(parts, sep)
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// RunID derives the run identity of c for a sweep started at stamp. Runs of
// one sweep share stamp, so distinct tags keep ids distinct.
func RunID(c Config, stamp string) string {
	var cooldown float64
	if c.CooldownFrac != nil {
		cooldown = *c.CooldownFrac
	}
	return "lrmul-" + joinFloats(c.LRMuls, "-", shortFloat) +
		"-cd" + shortFloat(cooldown) +
		"-" + c.Tag +
		"-" + stamp
}

// Vars flattens c into the trainer's environment variables. Optional fields
// that are unset produce no variable at all.
func (t *Table) Vars(c Config, runID string) map[string]string {
	vars := map[string]string{
		EnvRunID:                  runID,
		EnvLRMuls:                 joinFloats(c.LRMuls, ",", formatFloat),
		EnvLRDecayType:            c.DecayType(),
		EnvBatchSizes:             joinInts(t.BatchSizes(c)),
		EnvNumScheduledIterations: strconv.Itoa(t.Defaults.NumScheduledIterations),
		EnvNumExtensionIterations: strconv.Itoa(t.Defaults.NumExtensionIterations),
		EnvValLossEvery:           strconv.Itoa(t.Defaults.ValLossEvery),
		EnvValLossLastSteps:       strconv.Itoa(t.Defaults.ValLossLastSteps),
		EnvValLossEveryLast:       strconv.Itoa(t.Defaults.ValLossEveryLast),
	}
	if c.CooldownFrac != nil {
		vars[EnvCooldownFrac] = formatFloat(*c.CooldownFrac)
	}
	if c.LRDecayFinal != nil {
		vars[EnvLRDecayFinal] = formatFloat(*c.LRDecayFinal)
	}
	if c.LRDecaySwitchStep != nil {
		vars[EnvLRDecaySwitchStep] = strconv.Itoa(*c.LRDecaySwitchStep)
	}
	if c.LRDecaySecondType != "" {
		vars[EnvLRDecaySecondType] = c.LRDecaySecondType
	}
	if c.LRDecaySecondFinal != nil {
		vars[EnvLRDecaySecondFinal] = formatFloat(*c.LRDecaySecondFinal)
	}
	if c.SpectralLRMul != nil {
		vars[EnvSpectralLRMul] = formatFloat(*c.SpectralLRMul)
	}
	if c.ValLossEvery != nil {
		vars[EnvValLossEvery] = strconv.Itoa(*c.ValLossEvery)
	}
	return vars
}

// Environ overlays vars on base (KEY=VALUE pairs, as from os.Environ) and
// prepends libPrefix to LD_LIBRARY_PATH. The result is sorted by key.
func Environ(base []string, vars map[string]string, libPrefix string) []string {
	merged := make(map[string]string, len(base)+len(vars)+1)
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	if libPrefix != "" {
		if cur := merged[EnvLibraryPath]; cur != "" {
			merged[EnvLibraryPath] = libPrefix + string(os.PathListSeparator) + cur
		} else {
			merged[EnvLibraryPath] = libPrefix
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + merged[k]
	}
	return out
}
