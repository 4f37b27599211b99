// Package inference adapts the Claude API into the two generation
// operations the decision engine consumes. It is the only package that
// talks to the model; failures surface as DependencyError so callers can
// retry with backoff instead of treating them as permanent.
package inference

import (
	"context"
	"time"

	"github.com/pricelens/pricelens/internal/model"
)

// ScenarioInputs is what narrative generation needs to describe one
// strategic option.
type ScenarioInputs struct {
	Name        string
	Goal        model.Goal
	Context     model.DecisionContext
	Projection  model.SimulationResult
	CompanyName string
}

// Generator produces AI narrative for verdicts and scenarios. Deterministic
// scores and labels are stamped elsewhere; implementations only fill the
// narrative fields.
type Generator interface {
	// GenerateVerdict drafts the narrative side of a verdict from the
	// current context and simulation results.
	GenerateVerdict(ctx context.Context, dctx model.DecisionContext, sim *model.SimulationResult) (model.Verdict, model.ModelMeta, error)

	// GenerateScenarioNarrative drafts the description for one scenario.
	GenerateScenarioNarrative(ctx context.Context, in ScenarioInputs) (string, error)
}

// Options tunes the Claude-backed generator.
type Options struct {
	Model          string
	MaxTokens      int64
	Timeout        time.Duration
	RequestsPerSec float64
}
