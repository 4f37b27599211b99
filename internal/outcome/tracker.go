// Package outcome records real-world results against a decision's chosen
// scenario and computes predicted-vs-actual deltas. A decision has exactly
// one outcome record that evolves over time; updates merge into it.
package outcome

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/store"
)

// Tracker owns outcome recording and delta computation.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

// WithClock overrides the tracker clock. Test hook.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RecordParams is a partial outcome update. Nil fields are left unchanged.
// Unparseable free-text dates and numbers become null rather than errors.
type RecordParams struct {
	DecisionTaken   *bool
	DateImplemented string // free text, e.g. "2026-08-01"
	Notes           *string
	Status          *model.OutcomeStatus
	KPIActuals      map[string]string // kpi key -> free-text number
}

// Record merges the partial update into the decision's single outcome
// record, creating it on first call with predicted ranges seeded from the
// chosen scenario. Outcomes may only be recorded while the decision is
// approved or completed.
func (t *Tracker) Record(ctx context.Context, decisionID string, p RecordParams) (*model.Decision, error) {
	d, err := t.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.StatusApproved && d.Status != model.StatusCompleted {
		return nil, fault.NewValidation("status", "outcomes can only be recorded for approved or completed decisions")
	}

	out := d.Outcome
	if out == nil {
		out = &model.Outcome{
			Status: model.OutcomeMeasuring,
			KPIs:   map[string]model.KPIMeasurement{},
		}
		seedPredicted(out, d.ChosenScenario())
	}

	if p.DecisionTaken != nil {
		out.DecisionTaken = p.DecisionTaken
	}
	if p.DateImplemented != "" {
		out.DateImplemented = parseDate(p.DateImplemented)
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	for key, raw := range p.KPIActuals {
		if err := t.applyActual(d, out, key, parseNumber(raw)); err != nil {
			return nil, err
		}
	}
	out.UpdatedAt = t.now()
	d.Outcome = out
	d.UpdatedAt = t.now()

	if err := t.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	zap.L().Info("outcome: recorded",
		zap.String("decision_id", d.ID),
		zap.Int("kpi_count", len(out.KPIs)),
	)
	return d, nil
}

// UpdateKPIActual sets the actual measurement for one KPI. The key must be
// defined by the chosen scenario's projection.
func (t *Tracker) UpdateKPIActual(ctx context.Context, decisionID, kpiKey string, actual float64) (*model.Decision, error) {
	d, err := t.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.StatusApproved && d.Status != model.StatusCompleted {
		return nil, fault.NewValidation("status", "outcomes can only be recorded for approved or completed decisions")
	}

	out := d.Outcome
	if out == nil {
		out = &model.Outcome{
			Status: model.OutcomeMeasuring,
			KPIs:   map[string]model.KPIMeasurement{},
		}
		seedPredicted(out, d.ChosenScenario())
	}
	if err := t.applyActual(d, out, kpiKey, &actual); err != nil {
		return nil, err
	}
	out.UpdatedAt = t.now()
	d.Outcome = out
	d.UpdatedAt = t.now()

	if err := t.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// applyActual validates the KPI key against the chosen scenario and stores
// the measurement. A nil actual (unparseable input) clears nothing; it just
// records null.
func (t *Tracker) applyActual(d *model.Decision, out *model.Outcome, kpiKey string, actual *float64) error {
	chosen := d.ChosenScenario()
	if chosen == nil {
		return fault.NewValidation("scenario", "no chosen scenario to measure against")
	}
	if !knownKPI(chosen, kpiKey) {
		return fault.NewNotFound("kpi", kpiKey)
	}

	m := out.KPIs[kpiKey]
	if m.PredictedMin == nil || m.PredictedMax == nil {
		if lo, hi, ok := chosen.PredictedRange(kpiKey); ok {
			m.PredictedMin = &lo
			m.PredictedMax = &hi
		}
	}
	m.Actual = actual
	if actual != nil {
		now := t.now()
		m.MeasuredAt = &now
	}
	out.KPIs[kpiKey] = m
	return nil
}

// ComputeDeltas classifies each KPI with both a predicted range and an
// actual value. Boundary values are on_track. KPIs missing either side are
// omitted rather than reported as a third class.
func ComputeDeltas(d *model.Decision) []model.ScenarioDelta {
	if d.Outcome == nil {
		return nil
	}

	keys := make([]string, 0, len(d.Outcome.KPIs))
	for k := range d.Outcome.KPIs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var deltas []model.ScenarioDelta
	for _, key := range keys {
		m := d.Outcome.KPIs[key]
		if m.PredictedMin == nil || m.PredictedMax == nil || m.Actual == nil {
			continue
		}
		status := model.DeltaOnTrack
		switch {
		case *m.Actual < *m.PredictedMin:
			status = model.DeltaBelow
		case *m.Actual > *m.PredictedMax:
			status = model.DeltaAbove
		}
		deltas = append(deltas, model.ScenarioDelta{
			KPIKey:       key,
			PredictedMin: *m.PredictedMin,
			PredictedMax: *m.PredictedMax,
			Actual:       *m.Actual,
			Status:       status,
		})
	}
	return deltas
}

// Effective returns the latest reconciled outcome plus computed deltas as a
// single read-optimized view. This is the query surface consumers should
// use; the raw outcome record is for audit.
func (t *Tracker) Effective(ctx context.Context, decisionID string) (*model.EffectiveOutcome, error) {
	d, err := t.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	view := &model.EffectiveOutcome{
		DecisionID: d.ID,
		Outcome:    d.Outcome,
		Deltas:     ComputeDeltas(d),
	}
	if chosen := d.ChosenScenario(); chosen != nil {
		view.ScenarioID = chosen.ID
	}
	return view, nil
}

// seedPredicted copies the chosen scenario's projected ranges into the new
// outcome record so deltas can be computed even if the scenario is later
// regenerated. A decision without a chosen scenario gets an empty seed.
func seedPredicted(out *model.Outcome, chosen *model.Scenario) {
	if chosen == nil {
		return
	}
	for _, key := range chosen.KPIKeys() {
		lo, hi, ok := chosen.PredictedRange(key)
		if !ok {
			continue
		}
		out.KPIs[key] = model.KPIMeasurement{PredictedMin: &lo, PredictedMax: &hi}
	}
}

func knownKPI(s *model.Scenario, key string) bool {
	for _, k := range s.KPIKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// parseDate accepts the date layouts the dashboard sends. Anything else is
// null, never an error.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// parseNumber strips common currency/percent noise and parses a float.
// Unparseable input is null, never an error.
func parseNumber(raw string) *float64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.NewReplacer("$", "", ",", "", "%", "").Replace(cleaned)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
