// Package verdict derives the deterministic side of a verdict: confidence
// and risk scores, and the labels banded from them. Labels are pure
// functions of their scores and are recomputed on every append so they can
// never drift from the score that produced them.
package verdict

import (
	"math"

	"github.com/pricelens/pricelens/internal/model"
)

// ConfidenceLabel bands a confidence score. Scores are clamped to [0, 1]
// before banding.
func ConfidenceLabel(score float64) string {
	switch s := clamp01(score); {
	case s < 0.4:
		return "low"
	case s < 0.7:
		return "medium"
	default:
		return "high"
	}
}

// RiskLabel bands a risk score with the same cut points as confidence.
func RiskLabel(score float64) string {
	switch s := clamp01(score); {
	case s < 0.4:
		return "low"
	case s < 0.7:
		return "medium"
	default:
		return "high"
	}
}

// riskScores maps a simulation risk level to its deterministic score.
var riskScores = map[model.RiskLevel]float64{
	model.RiskLow:    0.2,
	model.RiskMedium: 0.5,
	model.RiskHigh:   0.8,
}

// DeriveRiskScore converts a simulation risk level and the magnitude of the
// price change into a risk score. Larger moves within the same level push
// the score up slightly without crossing into the next band.
func DeriveRiskScore(level model.RiskLevel, absPriceChangePct float64) float64 {
	score, ok := riskScores[level]
	if !ok {
		score = 0.5
	}
	score += math.Min(absPriceChangePct/100, 0.5) * 0.15
	return clamp01(score)
}

// DeriveConfidence scores how much the engine trusts its own projection
// given the context provenance: explicitly supplied fields raise it,
// defaulted fields lower it.
func DeriveConfidence(ctx model.DecisionContext) float64 {
	score := 0.6
	for _, f := range []model.Field[string]{
		ctx.CompanyStage, ctx.BusinessModel, ctx.PrimaryKPI, ctx.MarketType, ctx.MarketSegment,
	} {
		switch {
		case !f.Resolved():
			score -= 0.05
		case f.Source == model.SourceUser:
			score += 0.05
		case f.Source == model.SourceDefault:
			score -= 0.03
		}
	}
	return math.Max(0.1, math.Min(score, 0.95))
}

// Finalize stamps deterministic scores and recomputed labels onto a verdict
// whose narrative came from the inference collaborator. It never trusts
// labels from upstream.
func Finalize(v model.Verdict, ctx model.DecisionContext, sim *model.SimulationResult) model.Verdict {
	v.ConfidenceScore = DeriveConfidence(ctx)
	v.ConfidenceLabel = ConfidenceLabel(v.ConfidenceScore)
	v.WhatToExpect.RiskScore = DeriveRiskScore(sim.RiskLevel, math.Abs(sim.PriceChangePct))
	v.WhatToExpect.RiskLabel = RiskLabel(v.WhatToExpect.RiskScore)
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
