// Package scenario produces the named strategic options attached to a
// decision and tracks which one the user chose. Generation is
// generate-then-commit: every projection and narrative is in hand before
// the aggregate is written, so a cancelled or failed run leaves no
// half-generated scenario set behind.
package scenario

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/inference"
	"github.com/pricelens/pricelens/internal/limits"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/simulation"
	"github.com/pricelens/pricelens/internal/store"
)

// Generator builds scenarios for decisions.
type Generator struct {
	store store.Store
	sim   *simulation.Engine
	gen   inference.Generator
	gate  limits.Gate
	now   func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(st store.Store, sim *simulation.Engine, gen inference.Generator, gate limits.Gate) *Generator {
	return &Generator{
		store: st,
		sim:   sim,
		gen:   gen,
		gate:  gate,
		now:   time.Now,
	}
}

// WithClock overrides the generator clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces one scenario per goal level (the canonical three unless
// a custom set is supplied) and replaces the decision's prior unchosen
// scenarios. A previously chosen scenario is preserved untouched because
// outcomes may already reference it; its goal level is skipped.
func (g *Generator) Generate(ctx context.Context, decisionID string, goals []model.Goal) (*model.Decision, error) {
	if len(goals) == 0 {
		goals = model.Goals()
	}
	for _, goal := range goals {
		if !model.ValidGoal(goal) {
			return nil, fault.NewValidation("goals", "unknown goal "+string(goal))
		}
	}
	goals = dedupeGoals(goals)

	d, err := g.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := g.gate.Check(ctx, d.OwnerID, limits.ResourceScenarios); err != nil {
		return nil, err
	}

	chosen := d.ChosenScenario()

	// Build the full candidate set in memory first.
	candidates := make([]model.Scenario, 0, len(goals))
	for _, goal := range goals {
		if chosen != nil && chosen.Goal == goal {
			continue
		}
		in := d.Inputs
		in.Goal = goal
		sim, err := g.sim.Simulate(simulation.Input{
			CurrentPrice:    in.CurrentPrice,
			NewPrice:        in.NewPrice,
			ActiveCustomers: in.ActiveCustomers,
			Currency:        in.Currency,
			GlobalMRR:       in.GlobalMRR,
			GlobalChurnRate: in.GlobalChurnRate,
			Goal:            goal,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, model.Scenario{
			ID:         uuid.NewString(),
			DecisionID: d.ID,
			Name:       scenarioName(goal),
			Goal:       goal,
			Projection: *sim,
			RiskLevel:  sim.RiskLevel,
			CreatedAt:  g.now(),
		})
	}

	// Fetch all narratives before committing anything.
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range candidates {
		eg.Go(func() error {
			desc, err := g.gen.GenerateScenarioNarrative(egCtx, inference.ScenarioInputs{
				Name:        candidates[i].Name,
				Goal:        candidates[i].Goal,
				Context:     d.Context,
				Projection:  candidates[i].Projection,
				CompanyName: d.CompanyName,
			})
			if err != nil {
				return err
			}
			candidates[i].Description = desc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Commit: chosen scenario survives, everything else is replaced.
	next := make([]model.Scenario, 0, len(candidates)+1)
	if chosen != nil {
		next = append(next, *chosen)
	}
	next = append(next, candidates...)
	d.Scenarios = next
	d.UpdatedAt = g.now()

	if err := g.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}

	zap.L().Info("scenario: generated",
		zap.String("decision_id", d.ID),
		zap.Int("count", len(candidates)),
		zap.Bool("chosen_preserved", chosen != nil),
	)
	return d, nil
}

// Choose marks the target scenario chosen, un-choosing any prior one in the
// same write.
func (g *Generator) Choose(ctx context.Context, decisionID, scenarioID string) (*model.Decision, error) {
	d, err := g.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := d.ChooseScenario(scenarioID); err != nil {
		return nil, err
	}
	d.UpdatedAt = g.now()
	if err := g.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	zap.L().Info("scenario: chosen",
		zap.String("decision_id", d.ID),
		zap.String("scenario_id", scenarioID),
	)
	return d, nil
}

// dedupeGoals drops repeated goal levels, keeping first-seen order.
func dedupeGoals(goals []model.Goal) []model.Goal {
	seen := make(map[model.Goal]bool, len(goals))
	out := goals[:0]
	for _, goal := range goals {
		if seen[goal] {
			continue
		}
		seen[goal] = true
		out = append(out, goal)
	}
	return out
}

func scenarioName(goal model.Goal) string {
	return strings.ToUpper(string(goal[:1])) + string(goal[1:])
}
