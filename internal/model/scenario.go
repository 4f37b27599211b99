package model

import "time"

// Goal is the strategic posture used to select elasticity bands.
type Goal string

const (
	GoalConservative Goal = "conservative"
	GoalBase         Goal = "base"
	GoalAggressive   Goal = "aggressive"
)

// Goals lists the canonical goal levels in ascending aggressiveness.
func Goals() []Goal {
	return []Goal{GoalConservative, GoalBase, GoalAggressive}
}

// ValidGoal reports whether g is one of the canonical goal levels.
func ValidGoal(g Goal) bool {
	switch g {
	case GoalConservative, GoalBase, GoalAggressive:
		return true
	}
	return false
}

// RiskLevel classifies a price change's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// KPI keys defined by a scenario projection. UpdateKPIActual rejects keys
// outside the chosen scenario's set.
const (
	KPINewCustomerCount = "new_customer_count"
	KPINewMRR           = "new_mrr"
	KPINewARR           = "new_arr"
	KPIChurnRate        = "churn_rate"
)

// BandProjection is one scenario level's bounded projection.
type BandProjection struct {
	NewCustomerCountMin int     `json:"new_customer_count_min"`
	NewCustomerCountMax int     `json:"new_customer_count_max"`
	NewMRRMin           float64 `json:"new_mrr_min"`
	NewMRRMax           float64 `json:"new_mrr_max"`
	NewARRMin           float64 `json:"new_arr_min"`
	NewARRMax           float64 `json:"new_arr_max"`
}

// SimulationResult is a deterministic elasticity projection for one price
// change. Immutable once computed; recomputation always produces a fresh
// value, never an in-place patch.
type SimulationResult struct {
	CurrentPrice    float64                 `json:"current_price"`
	NewPrice        float64                 `json:"new_price"`
	PriceChangePct  float64                 `json:"price_change_pct"`
	Currency        string                  `json:"currency"`
	ActiveCustomers int                     `json:"active_customers"`
	Bands           map[Goal]BandProjection `json:"bands"`
	RiskLevel       RiskLevel               `json:"risk_level"`
}

// Band returns the projection for the given goal level.
func (r SimulationResult) Band(g Goal) (BandProjection, bool) {
	b, ok := r.Bands[g]
	return b, ok
}

// Scenario is one named strategic option attached to a decision.
type Scenario struct {
	ID          string           `json:"id"`
	DecisionID  string           `json:"decision_id"`
	Name        string           `json:"name"`
	Goal        Goal             `json:"goal"`
	Description string           `json:"description"`
	Projection  SimulationResult `json:"projection"`
	RiskLevel   RiskLevel        `json:"risk_level"`
	Chosen      bool             `json:"chosen"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PredictedRange returns the predicted [min, max] for a KPI key from the
// scenario's own goal band. The second return is false for KPIs the
// projection does not define.
func (s Scenario) PredictedRange(kpiKey string) (min, max float64, ok bool) {
	band, found := s.Projection.Band(s.Goal)
	if !found {
		return 0, 0, false
	}
	switch kpiKey {
	case KPINewCustomerCount:
		return float64(band.NewCustomerCountMin), float64(band.NewCustomerCountMax), true
	case KPINewMRR:
		return band.NewMRRMin, band.NewMRRMax, true
	case KPINewARR:
		return band.NewARRMin, band.NewARRMax, true
	}
	return 0, 0, false
}

// KPIKeys returns the KPI keys this scenario's projection defines.
func (s Scenario) KPIKeys() []string {
	return []string{KPINewCustomerCount, KPINewMRR, KPINewARR}
}
