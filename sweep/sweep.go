// Package sweep holds the sweep configuration table: the ordered list of
// learning-rate schedule settings launched back to back by the launcher.
package sweep

import (
	"path/filepath"
	"strings"

	"github.com/gidra39/lrsweep/validation"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Decay curve selectors understood by the trainer.
const (
	DecayLinear   = "linear"
	DecayExp      = "exp"
	DecayConstant = "constant"
)

var DefaultBatchSizes = []int{131072, 262144, 393216, 393216}

var ErrEmptyTable = errors.New("sweep table has no runs")

// Config is one sweep member. Pointer fields are optional; nil means the
// trainer's own default applies and no variable is exported for it.
type Config struct {
	Tag                string    `koanf:"tag" json:"tag" validate:"required,excludesall=/"`
	LRMuls             []float64 `koanf:"lr_muls" json:"lr_muls" validate:"len=4,dive,gt=0"`
	CooldownFrac       *float64  `koanf:"cooldown_frac" json:"cooldown_frac" validate:"required,gte=0,lte=1"`
	LRDecayType        string    `koanf:"lr_decay_type" json:"lr_decay_type,omitempty" validate:"omitempty,oneof=linear exp constant"`
	LRDecayFinal       *float64  `koanf:"lr_decay_final" json:"lr_decay_final,omitempty" validate:"omitempty,gte=0"`
	LRDecaySwitchStep  *int      `koanf:"lr_decay_switch_step" json:"lr_decay_switch_step,omitempty" validate:"omitempty,gt=0"`
	LRDecaySecondType  string    `koanf:"lr_decay_second_type" json:"lr_decay_second_type,omitempty" validate:"omitempty,oneof=linear exp constant"`
	LRDecaySecondFinal *float64  `koanf:"lr_decay_second_final" json:"lr_decay_second_final,omitempty" validate:"omitempty,gte=0"`
	BatchSizes         []int     `koanf:"batch_sizes" json:"batch_sizes,omitempty" validate:"omitempty,dive,gt=0"`
	SpectralLRMul      *float64  `koanf:"spectral_lr_mul" json:"spectral_lr_mul,omitempty" validate:"omitempty,gte=0"`
	Script             string    `koanf:"script" json:"script,omitempty"`
	ValLossEvery       *int      `koanf:"val_loss_every" json:"val_loss_every,omitempty" validate:"omitempty,gt=0"`
}

// DecayType returns the primary decay curve, linear when unset.
func (c Config) DecayType() string {
	if c.LRDecayType == "" {
		return DecayLinear
	}
	return c.LRDecayType
}

// Defaults apply to every run that does not override them.
type Defaults struct {
	BatchSizes             []int  `koanf:"batch_sizes" json:"batch_sizes" validate:"omitempty,dive,gt=0"`
	NumScheduledIterations int    `koanf:"num_scheduled_iterations" json:"num_scheduled_iterations" validate:"gt=0"`
	NumExtensionIterations int    `koanf:"num_extension_iterations" json:"num_extension_iterations" validate:"gte=0"`
	ValLossEvery           int    `koanf:"val_loss_every" json:"val_loss_every" validate:"gt=0"`
	ValLossLastSteps       int    `koanf:"val_loss_last_steps" json:"val_loss_last_steps" validate:"gte=0"`
	ValLossEveryLast       int    `koanf:"val_loss_every_last" json:"val_loss_every_last" validate:"gt=0"`
	Script                 string `koanf:"script" json:"script,omitempty"`
}

// Table is a loaded, validated sweep.
type Table struct {
	Defaults Defaults `koanf:"defaults" json:"defaults"`
	Runs     []Config `koanf:"runs" json:"runs" validate:"required,min=1,unique=Tag,dive"`
}

func newTable() *Table {
	return &Table{
		Defaults: Defaults{
			NumScheduledIterations: 1560,
			NumExtensionIterations: 40,
			ValLossEvery:           10,
			ValLossLastSteps:       100,
			ValLossEveryLast:       10,
		},
	}
}

// Load reads a sweep table from a YAML or JSON file.
func Load(path string) (*Table, error) {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, errors.Wrapf(err, "load sweep file %s", path)
	}

	t := newTable()
	if err := k.Unmarshal("", t); err != nil {
		return nil, errors.Wrapf(err, "decode sweep file %s", path)
	}
	if len(t.Defaults.BatchSizes) == 0 {
		t.Defaults.BatchSizes = append([]int(nil), DefaultBatchSizes...)
	}

	if err := t.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep file %s", path)
	}
	return t, nil
}

// Validate checks field constraints plus rules that span fields.
func (t *Table) Validate() error {
	if len(t.Runs) == 0 {
		return ErrEmptyTable
	}
	if err := validation.Validate.Struct(t); err != nil {
		return err
	}
	for _, c := range t.Runs {
		if c.LRDecaySecondType != "" && c.LRDecaySwitchStep == nil {
			return errors.Errorf("run %q: lr_decay_second_type needs lr_decay_switch_step", c.Tag)
		}
		if c.LRDecaySecondFinal != nil && c.LRDecaySecondType == "" {
			return errors.Errorf("run %q: lr_decay_second_final needs lr_decay_second_type", c.Tag)
		}
	}
	return nil
}

// BatchSizes resolves the batch-size schedule for c.
func (t *Table) BatchSizes(c Config) []int {
	if len(c.BatchSizes) > 0 {
		return c.BatchSizes
	}
	if len(t.Defaults.BatchSizes) > 0 {
		return t.Defaults.BatchSizes
	}
	return DefaultBatchSizes
}

// Script resolves the training script for c, falling back to fallback.
func (t *Table) Script(c Config, fallback string) string {
	switch {
	case c.Script != "":
		return c.Script
	case t.Defaults.Script != "":
		return t.Defaults.Script
	default:
		return fallback
	}
}
