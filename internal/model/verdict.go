package model

// Verdict is the AI-assisted recommendation plus deterministic confidence and
// risk scoring for a decision. Labels are derived from their scores by the
// verdict package and are never set independently of them.
type Verdict struct {
	Headline          string            `json:"headline"`
	Summary           string            `json:"summary"`
	ConfidenceScore   float64           `json:"confidence_score"` // 0.0-1.0
	ConfidenceLabel   string            `json:"confidence_label"`
	CTA               string            `json:"cta"`
	WhyThisDecision   []string          `json:"why_this_decision"`
	WhatToExpect      RiskOutlook       `json:"what_to_expect"`
	SupportingDetails SupportingDetails `json:"supporting_details"`
}

// RiskOutlook describes the risk side of a verdict.
type RiskOutlook struct {
	RiskScore   float64 `json:"risk_score"` // 0.0-1.0
	RiskLabel   string  `json:"risk_label"`
	Description string  `json:"description"`
}

// SupportingDetails carries the narrative backing for a verdict.
type SupportingDetails struct {
	ExpectedRevenueImpact string `json:"expected_revenue_impact"`
	ChurnOutlook          string `json:"churn_outlook"`
	MarketPositioning     string `json:"market_positioning"`
}

// ModelMeta records which model and prompt produced a verdict, how long
// inference took, and what it cost.
type ModelMeta struct {
	Model         string  `json:"model"`
	PromptVersion string  `json:"prompt_version"`
	LatencyMS     int64   `json:"latency_ms"`
	CostUSD       float64 `json:"cost_usd"`
}
