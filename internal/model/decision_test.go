package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestDecision(t *testing.T) *Decision {
	t.Helper()
	d := NewDecision("owner-1", "Acme", "https://acme.example",
		PricingInputs{CurrentPrice: 79, NewPrice: 99, Currency: "USD", ActiveCustomers: 423, GlobalChurnRate: 5, Goal: GoalBase},
		DecisionContext{CompanyStage: UserField("growth")},
		Verdict{Headline: "Raise it"},
		ModelMeta{Model: "claude-sonnet-4-5-20250929", PromptVersion: "v3"},
		testTime,
	)
	require.NoError(t, d.CheckInvariants())
	return d
}

func TestNewDecision_InitialState(t *testing.T) {
	d := newTestDecision(t)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, StatusPending, d.Status)
	assert.Equal(t, 1, d.ContextVersion)
	assert.Equal(t, 1, d.VerdictVersion)
	require.Len(t, d.ContextVersions, 1)
	require.Len(t, d.VerdictVersions, 1)
	require.Len(t, d.StatusEvents, 1)
	assert.Equal(t, StatusPending, d.StatusEvents[0].Status)
	assert.Equal(t, "Raise it", d.Verdict.Headline)
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCompleted, false},
		{StatusApproved, StatusCompleted, true},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusApproved, false},
		{StatusRejected, StatusCompleted, false},
		{StatusCompleted, StatusApproved, false},
		{StatusCompleted, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransition_AppendsEventWithStatus(t *testing.T) {
	d := newTestDecision(t)

	require.NoError(t, d.Transition(StatusApproved, "looks good", "alice", testTime.Add(time.Hour), TransitionOpts{}))
	assert.Equal(t, StatusApproved, d.Status)
	require.Len(t, d.StatusEvents, 2)
	assert.Equal(t, "alice", d.StatusEvents[1].Actor)
	assert.Equal(t, StatusApproved, d.StatusEvents[1].Status)

	impl := testTime.Add(48 * time.Hour)
	require.NoError(t, d.Transition(StatusCompleted, "shipped", "alice", testTime.Add(2*time.Hour), TransitionOpts{ImplementedAt: &impl}))
	assert.Equal(t, StatusCompleted, d.Status)
	require.Len(t, d.StatusEvents, 3)
	require.NotNil(t, d.StatusEvents[2].ImplementedAt)
	assert.Equal(t, impl, *d.StatusEvents[2].ImplementedAt)
	require.NoError(t, d.CheckInvariants())
}

func TestTransition_RejectedIsTerminal(t *testing.T) {
	d := newTestDecision(t)
	require.NoError(t, d.Transition(StatusRejected, "too risky", "bob", testTime, TransitionOpts{}))

	err := d.Transition(StatusApproved, "changed my mind", "bob", testTime, TransitionOpts{})
	require.Error(t, err)

	// A failed transition leaves state and audit trail untouched.
	assert.Equal(t, StatusRejected, d.Status)
	assert.Len(t, d.StatusEvents, 2)
}

func TestRecordRollback_OnlyOnCompleted(t *testing.T) {
	d := newTestDecision(t)

	err := d.RecordRollback("regret", "alice", testTime, testTime)
	require.Error(t, err)

	require.NoError(t, d.Transition(StatusApproved, "", "alice", testTime, TransitionOpts{}))
	require.NoError(t, d.Transition(StatusCompleted, "", "alice", testTime, TransitionOpts{}))

	rollbackAt := testTime.Add(30 * 24 * time.Hour)
	require.NoError(t, d.RecordRollback("churn spiked", "alice", rollbackAt, testTime.Add(time.Hour)))

	// Status stays completed; only the event carries the rollback.
	assert.Equal(t, StatusCompleted, d.Status)
	last := d.StatusEvents[len(d.StatusEvents)-1]
	require.NotNil(t, last.RollbackAt)
	assert.Equal(t, rollbackAt, *last.RollbackAt)
	assert.Equal(t, StatusCompleted, last.Status)
}

func TestAppendContextVersion_AdvancesStreamAndMirror(t *testing.T) {
	d := newTestDecision(t)

	next := DecisionContext{
		CompanyStage:  UserField("scale"),
		BusinessModel: InferredField("b2b saas"),
	}
	d.AppendContextVersion(next, "customer corrected stage", testTime.Add(time.Hour))

	assert.Equal(t, 2, d.ContextVersion)
	require.Len(t, d.ContextVersions, 2)
	assert.Equal(t, "scale", d.Context.CompanyStage.OrZero())
	assert.Equal(t, "growth", d.ContextVersions[0].Context.CompanyStage.OrZero())
	// Verdict stream is independent.
	assert.Equal(t, 1, d.VerdictVersion)
	require.NoError(t, d.CheckInvariants())
}

func TestAppendVerdictVersion_IndependentCounter(t *testing.T) {
	d := newTestDecision(t)

	d.AppendVerdictVersion(Verdict{Headline: "Hold off"}, ModelMeta{Model: "m2"}, testTime.Add(time.Hour))
	d.AppendVerdictVersion(Verdict{Headline: "Raise it again"}, ModelMeta{Model: "m3"}, testTime.Add(2*time.Hour))

	assert.Equal(t, 3, d.VerdictVersion)
	assert.Equal(t, 1, d.ContextVersion)
	assert.Equal(t, "Raise it again", d.Verdict.Headline)
	assert.Equal(t, "m3", d.ModelMeta.Model)
	require.NoError(t, d.CheckInvariants())
}

func TestChooseScenario_TransfersFlagAtomically(t *testing.T) {
	d := newTestDecision(t)
	d.Scenarios = []Scenario{
		{ID: "s1", DecisionID: d.ID, Goal: GoalConservative, Chosen: true},
		{ID: "s2", DecisionID: d.ID, Goal: GoalBase},
		{ID: "s3", DecisionID: d.ID, Goal: GoalAggressive},
	}

	require.NoError(t, d.ChooseScenario("s3"))
	assert.False(t, d.Scenarios[0].Chosen)
	assert.True(t, d.Scenarios[2].Chosen)
	require.NoError(t, d.CheckInvariants())

	chosen := d.ChosenScenario()
	require.NotNil(t, chosen)
	assert.Equal(t, "s3", chosen.ID)
}

func TestChooseScenario_UnknownID(t *testing.T) {
	d := newTestDecision(t)
	d.Scenarios = []Scenario{{ID: "s1"}}

	err := d.ChooseScenario("missing")
	require.Error(t, err)
	assert.True(t, d.ChosenScenario() == nil)
}

func TestSoftDelete_SetsTombstone(t *testing.T) {
	d := newTestDecision(t)
	at := testTime.Add(time.Hour)
	d.SoftDelete(at)

	assert.True(t, d.Deleted)
	require.NotNil(t, d.DeletedAt)
	assert.Equal(t, at, *d.DeletedAt)
}

func TestContextAt_ReconstructsHistory(t *testing.T) {
	d := newTestDecision(t)
	d.AppendContextVersion(DecisionContext{CompanyStage: UserField("scale")}, "update", testTime.Add(2*time.Hour))

	// Before creation: nothing.
	_, ok := d.ContextAt(testTime.Add(-time.Minute))
	assert.False(t, ok)

	// Between v1 and v2: v1.
	ctx, ok := d.ContextAt(testTime.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, "growth", ctx.CompanyStage.OrZero())

	// After v2: v2.
	ctx, ok = d.ContextAt(testTime.Add(3 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, "scale", ctx.CompanyStage.OrZero())
}

func TestVerdictAt_ReconstructsHistory(t *testing.T) {
	d := newTestDecision(t)
	d.AppendVerdictVersion(Verdict{Headline: "Hold off"}, ModelMeta{}, testTime.Add(2*time.Hour))

	v, ok := d.VerdictAt(testTime)
	require.True(t, ok)
	assert.Equal(t, "Raise it", v.Headline)

	v, ok = d.VerdictAt(testTime.Add(2 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, "Hold off", v.Headline)
}

func TestCheckInvariants_DetectsCorruption(t *testing.T) {
	t.Run("version counter drift", func(t *testing.T) {
		d := newTestDecision(t)
		d.ContextVersion = 5
		require.Error(t, d.CheckInvariants())
	})

	t.Run("gap in sequence", func(t *testing.T) {
		d := newTestDecision(t)
		d.AppendContextVersion(DecisionContext{}, "x", testTime)
		d.ContextVersions[1].Version = 7
		require.Error(t, d.CheckInvariants())
	})

	t.Run("mirror diverged from tail", func(t *testing.T) {
		d := newTestDecision(t)
		d.Verdict.Headline = "tampered"
		require.Error(t, d.CheckInvariants())
	})

	t.Run("two chosen scenarios", func(t *testing.T) {
		d := newTestDecision(t)
		d.Scenarios = []Scenario{{ID: "s1", Chosen: true}, {ID: "s2", Chosen: true}}
		require.Error(t, d.CheckInvariants())
	})
}

func TestField_Provenance(t *testing.T) {
	u := UserField("b2b")
	assert.True(t, u.Resolved())
	assert.Equal(t, SourceUser, u.Source)
	assert.Equal(t, "b2b", u.OrZero())

	var unset Field[string]
	assert.False(t, unset.Resolved())
	assert.Equal(t, "", unset.OrZero())

	assert.Equal(t, SourceInferred, InferredField("x").Source)
	assert.Equal(t, SourceDefault, DefaultField("x").Source)
}

func TestScenario_PredictedRange(t *testing.T) {
	s := Scenario{
		Goal: GoalBase,
		Projection: SimulationResult{
			Bands: map[Goal]BandProjection{
				GoalBase: {
					NewCustomerCountMin: 389, NewCustomerCountMax: 415,
					NewMRRMin: 38511, NewMRRMax: 41085,
					NewARRMin: 462132, NewARRMax: 493020,
				},
			},
		},
	}

	lo, hi, ok := s.PredictedRange(KPINewCustomerCount)
	require.True(t, ok)
	assert.Equal(t, 389.0, lo)
	assert.Equal(t, 415.0, hi)

	lo, hi, ok = s.PredictedRange(KPINewARR)
	require.True(t, ok)
	assert.Equal(t, 462132.0, lo)
	assert.Equal(t, 493020.0, hi)

	_, _, ok = s.PredictedRange("conversion_rate")
	assert.False(t, ok)
}
