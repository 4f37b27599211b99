package model

import "time"

// OutcomeStatus tracks where a recorded outcome sits in its measurement
// lifecycle.
type OutcomeStatus string

const (
	OutcomeMeasuring  OutcomeStatus = "measuring"
	OutcomeReconciled OutcomeStatus = "reconciled"
)

// KPIMeasurement pairs a predicted range (from the chosen scenario at
// recording time) with the actual measured value.
type KPIMeasurement struct {
	PredictedMin *float64   `json:"predicted_min,omitempty"`
	PredictedMax *float64   `json:"predicted_max,omitempty"`
	Actual       *float64   `json:"actual,omitempty"`
	MeasuredAt   *time.Time `json:"measured_at,omitempty"`
}

// Outcome is the single evolving record of real-world results for a
// decision. Updates merge into it; there is never more than one per decision.
type Outcome struct {
	DecisionTaken   *bool                     `json:"decision_taken,omitempty"`
	DateImplemented *time.Time                `json:"date_implemented,omitempty"`
	KPIs            map[string]KPIMeasurement `json:"kpis,omitempty"`
	Status          OutcomeStatus             `json:"status"`
	Notes           string                    `json:"notes,omitempty"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// DeltaStatus classifies an actual value against its predicted range.
// Boundary values are on_track; there is deliberately no "unknown" class.
type DeltaStatus string

const (
	DeltaBelow   DeltaStatus = "below"
	DeltaOnTrack DeltaStatus = "on_track"
	DeltaAbove   DeltaStatus = "above"
)

// ScenarioDelta compares one KPI's actual value to the chosen scenario's
// predicted range. Derived on read, never persisted as input.
type ScenarioDelta struct {
	KPIKey       string      `json:"kpi_key"`
	PredictedMin float64     `json:"predicted_min"`
	PredictedMax float64     `json:"predicted_max"`
	Actual       float64     `json:"actual"`
	Status       DeltaStatus `json:"status"`
}

// EffectiveOutcome is the read-optimized view combining the latest
// reconciled outcome with its computed deltas. Consumers should use this
// surface; raw outcome history is for audit only.
type EffectiveOutcome struct {
	DecisionID string          `json:"decision_id"`
	ScenarioID string          `json:"scenario_id,omitempty"`
	Outcome    *Outcome        `json:"outcome,omitempty"`
	Deltas     []ScenarioDelta `json:"deltas"`
}
