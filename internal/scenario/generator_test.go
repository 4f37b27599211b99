package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/elasticity"
	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/inference"
	"github.com/pricelens/pricelens/internal/limits"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/simulation"
	"github.com/pricelens/pricelens/internal/store"
)

type stubNarrator struct {
	narrative string
	err       error
}

func (s *stubNarrator) GenerateVerdict(_ context.Context, _ model.DecisionContext, _ *model.SimulationResult) (model.Verdict, model.ModelMeta, error) {
	return model.Verdict{}, model.ModelMeta{}, errors.New("not used")
}

func (s *stubNarrator) GenerateScenarioNarrative(_ context.Context, in inference.ScenarioInputs) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.narrative + " for " + in.Name, nil
}

func newTestGenerator(t *testing.T, narrator *stubNarrator) (*Generator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	table, err := elasticity.Default()
	require.NoError(t, err)

	g := NewGenerator(st, simulation.NewEngine(table), narrator, limits.NewFixedAllowance(nil))
	return g, st
}

func seedDecision(t *testing.T, st store.Store) *model.Decision {
	t.Helper()
	d := model.NewDecision("owner-1", "Acme", "",
		model.PricingInputs{CurrentPrice: 79, NewPrice: 99, Currency: "USD", ActiveCustomers: 423, GlobalChurnRate: 5, Goal: model.GoalBase},
		model.DecisionContext{CompanyStage: model.UserField("growth")},
		model.Verdict{Headline: "Raise it"},
		model.ModelMeta{},
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	)
	require.NoError(t, st.CreateDecision(context.Background(), d))
	return d
}

func TestGenerate_CanonicalThree(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "steady growth"})
	d := seedDecision(t, st)

	out, err := g.Generate(context.Background(), d.ID, nil)
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 3)

	goals := map[model.Goal]bool{}
	for _, s := range out.Scenarios {
		goals[s.Goal] = true
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, d.ID, s.DecisionID)
		assert.Contains(t, s.Description, "steady growth")
		assert.NotEmpty(t, s.Projection.Bands)
		assert.False(t, s.Chosen)
	}
	assert.True(t, goals[model.GoalConservative])
	assert.True(t, goals[model.GoalBase])
	assert.True(t, goals[model.GoalAggressive])
}

func TestGenerate_ScenarioNamesAndRisk(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "n"})
	d := seedDecision(t, st)

	out, err := g.Generate(context.Background(), d.ID, []model.Goal{model.GoalConservative})
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 1)
	assert.Equal(t, "Conservative", out.Scenarios[0].Name)
	assert.Equal(t, out.Scenarios[0].Projection.RiskLevel, out.Scenarios[0].RiskLevel)
}

func TestGenerate_UnknownGoal(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "n"})
	d := seedDecision(t, st)

	_, err := g.Generate(context.Background(), d.ID, []model.Goal{"yolo"})
	require.Error(t, err)
	assert.True(t, fault.AsValidation(err))
}

func TestGenerate_MissingDecision(t *testing.T) {
	g, _ := newTestGenerator(t, &stubNarrator{narrative: "n"})

	_, err := g.Generate(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.True(t, fault.AsNotFound(err))
}

func TestGenerate_PreservesChosenScenario(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "first run"})
	d := seedDecision(t, st)

	out, err := g.Generate(context.Background(), d.ID, nil)
	require.NoError(t, err)

	chosenID := out.Scenarios[1].ID
	chosenGoal := out.Scenarios[1].Goal
	_, err = g.Choose(context.Background(), d.ID, chosenID)
	require.NoError(t, err)

	// Regeneration replaces the unchosen set but never touches the chosen
	// scenario, and skips its goal level.
	out, err = g.Generate(context.Background(), d.ID, nil)
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 3)

	chosen := out.ChosenScenario()
	require.NotNil(t, chosen)
	assert.Equal(t, chosenID, chosen.ID)
	assert.Contains(t, chosen.Description, "first run")

	for _, s := range out.Scenarios {
		if s.ID == chosenID {
			continue
		}
		assert.NotEqual(t, chosenGoal, s.Goal)
	}
}

func TestGenerate_NarrativeFailureCommitsNothing(t *testing.T) {
	narrator := &stubNarrator{narrative: "ok"}
	g, st := newTestGenerator(t, narrator)
	d := seedDecision(t, st)

	narrator.err = fault.NewDependency("inference", errors.New("timeout"))
	_, err := g.Generate(context.Background(), d.ID, nil)
	require.Error(t, err)
	assert.True(t, fault.AsDependency(err))

	stored, err := st.GetDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Scenarios)
}

func TestGenerate_GateRejection(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	table, err := elasticity.Default()
	require.NoError(t, err)

	gate := limits.NewFixedAllowance(map[limits.Resource]int{limits.ResourceScenarios: 1})
	g := NewGenerator(st, simulation.NewEngine(table), &stubNarrator{narrative: "n"}, gate)
	d := seedDecision(t, st)

	_, err = g.Generate(context.Background(), d.ID, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), d.ID, nil)
	require.Error(t, err)
	assert.True(t, fault.AsLimitExceeded(err))
}

func TestChoose_TransfersFlag(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "n"})
	d := seedDecision(t, st)

	out, err := g.Generate(context.Background(), d.ID, nil)
	require.NoError(t, err)

	first := out.Scenarios[0].ID
	second := out.Scenarios[1].ID

	out, err = g.Choose(context.Background(), d.ID, first)
	require.NoError(t, err)
	require.NotNil(t, out.ChosenScenario())
	assert.Equal(t, first, out.ChosenScenario().ID)

	out, err = g.Choose(context.Background(), d.ID, second)
	require.NoError(t, err)
	assert.Equal(t, second, out.ChosenScenario().ID)

	chosen := 0
	for _, s := range out.Scenarios {
		if s.Chosen {
			chosen++
		}
	}
	assert.Equal(t, 1, chosen)
}

func TestChoose_UnknownScenario(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "n"})
	d := seedDecision(t, st)

	_, err := g.Choose(context.Background(), d.ID, "ghost")
	require.Error(t, err)
	assert.True(t, fault.AsNotFound(err))
}

func TestGenerate_DuplicateGoalsCollapse(t *testing.T) {
	g, st := newTestGenerator(t, &stubNarrator{narrative: "n"})
	d := seedDecision(t, st)

	out, err := g.Generate(context.Background(), d.ID, []model.Goal{model.GoalBase, model.GoalBase, model.GoalConservative, model.GoalBase})
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 2)
	assert.Equal(t, model.GoalBase, out.Scenarios[0].Goal)
	assert.Equal(t, model.GoalConservative, out.Scenarios[1].Goal)
}
