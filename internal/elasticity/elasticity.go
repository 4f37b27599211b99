// Package elasticity loads and queries the price-change elasticity table:
// ordered buckets of price-change percentages mapping pricing goals to
// customer loss/gain bands, plus churn and risk thresholds.
package elasticity

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

//go:embed table.yaml
var defaultTable []byte

// ScenarioBand bounds expected customer movement for one scenario level.
// All values are percentages of the active customer base.
type ScenarioBand struct {
	CustomerLossMin float64 `yaml:"customer_loss_min" json:"customer_loss_min"`
	CustomerLossMax float64 `yaml:"customer_loss_max" json:"customer_loss_max"`
	CustomerGainMin float64 `yaml:"customer_gain_min" json:"customer_gain_min"`
	CustomerGainMax float64 `yaml:"customer_gain_max" json:"customer_gain_max"`
}

// GoalProfile holds the three scenario-level bands for one pricing goal.
type GoalProfile struct {
	Conservative ScenarioBand `yaml:"conservative" json:"conservative"`
	Base         ScenarioBand `yaml:"base" json:"base"`
	Aggressive   ScenarioBand `yaml:"aggressive" json:"aggressive"`
}

// Level returns the band for a scenario level.
func (p GoalProfile) Level(g model.Goal) ScenarioBand {
	switch g {
	case model.GoalConservative:
		return p.Conservative
	case model.GoalAggressive:
		return p.Aggressive
	default:
		return p.Base
	}
}

// Bucket is one price-change percentage range. Ranges are closed-open
// [MinPct, MaxPct); the last bucket's upper bound is open-ended.
type Bucket struct {
	MinPct   float64                    `yaml:"min_pct" json:"min_pct"`
	MaxPct   float64                    `yaml:"max_pct" json:"max_pct"`
	Profiles map[model.Goal]GoalProfile `yaml:"profiles" json:"profiles"`
}

// ChurnAdjustment holds the stepped churn multiplier thresholds. The
// multiplier is deliberately flat between the thresholds (no interpolation);
// changing that is a product decision, not a fix.
type ChurnAdjustment struct {
	HighThreshold  float64 `yaml:"high_threshold" json:"high_threshold"`
	HighMultiplier float64 `yaml:"high_multiplier" json:"high_multiplier"`
	LowThreshold   float64 `yaml:"low_threshold" json:"low_threshold"`
	LowMultiplier  float64 `yaml:"low_multiplier" json:"low_multiplier"`
}

// RiskThresholds maps absolute price-change percent to base risk bands.
type RiskThresholds struct {
	LowMax    float64 `yaml:"low_max" json:"low_max"`
	MediumMax float64 `yaml:"medium_max" json:"medium_max"`
}

// Config is the loaded elasticity table. Immutable after load; inject it
// into the simulation engine rather than reading it as a singleton.
type Config struct {
	Buckets []Bucket        `yaml:"buckets" json:"buckets"`
	Churn   ChurnAdjustment `yaml:"churn" json:"churn"`
	Risk    RiskThresholds  `yaml:"risk" json:"risk"`
}

// Default returns the embedded elasticity table.
func Default() (*Config, error) {
	return parse(defaultTable)
}

// Load reads an elasticity table from a YAML file. An empty path falls back
// to the embedded default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "elasticity: read %s", path)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "elasticity: parse table")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bucket ordering and threshold sanity. Failures are
// operator faults, reported as ConfigurationError.
func (c *Config) Validate() error {
	if len(c.Buckets) == 0 {
		return fault.NewConfiguration("elasticity table has no buckets")
	}
	for i, b := range c.Buckets {
		if b.MinPct >= b.MaxPct {
			return fault.NewConfiguration("bucket %d: min %.1f >= max %.1f", i, b.MinPct, b.MaxPct)
		}
		if i > 0 && b.MinPct < c.Buckets[i-1].MaxPct {
			return fault.NewConfiguration("bucket %d overlaps bucket %d", i, i-1)
		}
		for _, g := range model.Goals() {
			if _, ok := b.Profiles[g]; !ok {
				return fault.NewConfiguration("bucket %d: missing profile for goal %s", i, g)
			}
		}
	}
	if c.Risk.LowMax <= 0 || c.Risk.MediumMax <= c.Risk.LowMax {
		return fault.NewConfiguration("risk thresholds: low_max %.1f, medium_max %.1f", c.Risk.LowMax, c.Risk.MediumMax)
	}
	if c.Churn.HighMultiplier <= 0 || c.Churn.LowMultiplier <= 0 {
		return fault.NewConfiguration("churn multipliers must be positive")
	}
	return nil
}

// FindBucket returns the first bucket whose closed-open range contains pct.
// A pct at or beyond the last bucket's max still matches the last bucket
// (open upper tail); a pct below the first bucket's min matches nothing.
func (c *Config) FindBucket(pct float64) *Bucket {
	for i := range c.Buckets {
		if pct >= c.Buckets[i].MinPct && pct < c.Buckets[i].MaxPct {
			return &c.Buckets[i]
		}
	}
	last := &c.Buckets[len(c.Buckets)-1]
	if pct >= last.MinPct {
		return last
	}
	return nil
}

// ChurnMultiplier returns the loss/gain band multiplier for a global churn
// rate. Flat 1.0 between the thresholds; stepped on purpose.
func (c *Config) ChurnMultiplier(globalChurnRate float64) float64 {
	switch {
	case globalChurnRate >= c.Churn.HighThreshold:
		return c.Churn.HighMultiplier
	case globalChurnRate <= c.Churn.LowThreshold:
		return c.Churn.LowMultiplier
	default:
		return 1.0
	}
}

// DeriveRiskLevel classifies the absolute price change, then adjusts for the
// pricing goal: conservative softens high to medium, aggressive raises low
// to medium and everything else to high, base passes through.
func (c *Config) DeriveRiskLevel(absPriceChangePct float64, goal model.Goal) model.RiskLevel {
	var base model.RiskLevel
	switch {
	case absPriceChangePct <= c.Risk.LowMax:
		base = model.RiskLow
	case absPriceChangePct <= c.Risk.MediumMax:
		base = model.RiskMedium
	default:
		base = model.RiskHigh
	}

	switch goal {
	case model.GoalConservative:
		if base == model.RiskHigh {
			return model.RiskMedium
		}
		return base
	case model.GoalAggressive:
		if base == model.RiskLow {
			return model.RiskMedium
		}
		return model.RiskHigh
	default:
		return base
	}
}
