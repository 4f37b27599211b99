// Package simulation turns a proposed price change and business metrics into
// deterministic, bucketed elasticity projections.
package simulation

import (
	"math"

	"go.uber.org/zap"

	"github.com/pricelens/pricelens/internal/elasticity"
	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

// Engine computes elasticity projections against an injected, immutable
// table. Safe for concurrent use.
type Engine struct {
	table *elasticity.Config
}

// NewEngine creates an Engine. Returns nil if table is nil.
func NewEngine(table *elasticity.Config) *Engine {
	if table == nil {
		return nil
	}
	return &Engine{table: table}
}

// Input holds everything one simulation run needs.
type Input struct {
	CurrentPrice    float64
	NewPrice        float64
	ActiveCustomers int
	Currency        string
	GlobalMRR       float64
	GlobalChurnRate float64 // percent
	Goal            model.Goal
}

// Simulate produces bounded projections for each scenario level under the
// chosen pricing goal. A price change that lands outside every bucket means
// the table is misconfigured and is reported as a ConfigurationError.
func (e *Engine) Simulate(in Input) (*model.SimulationResult, error) {
	if in.CurrentPrice <= 0 {
		return nil, fault.NewValidation("current_price", "must be positive")
	}
	if in.NewPrice <= 0 {
		return nil, fault.NewValidation("new_price", "must be positive")
	}
	if in.ActiveCustomers < 0 {
		return nil, fault.NewValidation("active_customers", "must not be negative")
	}
	if in.GlobalChurnRate < 0 || in.GlobalChurnRate > 100 {
		return nil, fault.NewValidation("global_churn_rate", "must be a percentage between 0 and 100")
	}
	if in.GlobalMRR < 0 {
		return nil, fault.NewValidation("global_mrr", "must not be negative")
	}
	if !model.ValidGoal(in.Goal) {
		return nil, fault.NewValidation("goal", "must be conservative, base, or aggressive")
	}

	pct := (in.NewPrice - in.CurrentPrice) / in.CurrentPrice * 100

	bucket := e.table.FindBucket(pct)
	if bucket == nil {
		return nil, fault.NewConfiguration("no elasticity bucket matches price change %.1f%%", pct)
	}
	profile, ok := bucket.Profiles[in.Goal]
	if !ok {
		return nil, fault.NewConfiguration("bucket [%.1f, %.1f) has no profile for goal %s", bucket.MinPct, bucket.MaxPct, in.Goal)
	}

	multiplier := e.table.ChurnMultiplier(in.GlobalChurnRate)

	bands := make(map[model.Goal]model.BandProjection, 3)
	for _, level := range model.Goals() {
		bands[level] = project(profile.Level(level), multiplier, in.ActiveCustomers, in.NewPrice)
	}

	risk := e.table.DeriveRiskLevel(math.Abs(pct), in.Goal)

	// Reported MRR is a cross-check, not an input to the bands: projections
	// derive from customer counts at the new price. A large gap between
	// reported and implied MRR means per-seat pricing or stale inputs.
	if in.GlobalMRR > 0 && in.ActiveCustomers > 0 {
		implied := float64(in.ActiveCustomers) * in.CurrentPrice
		if math.Abs(in.GlobalMRR-implied)/implied > 0.2 {
			zap.L().Warn("simulation: reported MRR diverges from implied MRR",
				zap.Float64("global_mrr", in.GlobalMRR),
				zap.Float64("implied_mrr", implied),
			)
		}
	}

	zap.L().Debug("simulation: projection computed",
		zap.Float64("price_change_pct", pct),
		zap.Float64("bucket_min", bucket.MinPct),
		zap.Float64("bucket_max", bucket.MaxPct),
		zap.Float64("churn_multiplier", multiplier),
		zap.String("goal", string(in.Goal)),
		zap.String("risk_level", string(risk)),
	)

	return &model.SimulationResult{
		CurrentPrice:    in.CurrentPrice,
		NewPrice:        in.NewPrice,
		PriceChangePct:  round1(pct),
		Currency:        in.Currency,
		ActiveCustomers: in.ActiveCustomers,
		Bands:           bands,
		RiskLevel:       risk,
	}, nil
}

// project applies the churn multiplier to a band and converts percentage
// movement into bounded customer, MRR, and ARR ranges.
func project(band elasticity.ScenarioBand, multiplier float64, active int, newPrice float64) model.BandProjection {
	lossMin := band.CustomerLossMin * multiplier
	lossMax := band.CustomerLossMax * multiplier
	gainMin := band.CustomerGainMin * multiplier
	gainMax := band.CustomerGainMax * multiplier

	countMin := roundCount(float64(active) * (1 - lossMax/100 + gainMin/100))
	countMax := roundCount(float64(active) * (1 - lossMin/100 + gainMax/100))

	mrrMin := float64(countMin) * newPrice
	mrrMax := float64(countMax) * newPrice

	return model.BandProjection{
		NewCustomerCountMin: countMin,
		NewCustomerCountMax: countMax,
		NewMRRMin:           round2(mrrMin),
		NewMRRMax:           round2(mrrMax),
		NewARRMin:           round2(mrrMin * 12),
		NewARRMax:           round2(mrrMax * 12),
	}
}

func roundCount(v float64) int {
	if v < 0 {
		return 0
	}
	return int(math.Round(v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
