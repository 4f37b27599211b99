package inference

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricelens/pricelens/internal/cost"
	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/resilience"
	"github.com/pricelens/pricelens/pkg/anthropic"
)

// promptVersion is recorded on every verdict's model metadata so a verdict
// can always be traced to the prompt that produced it.
const promptVersion = "v3"

const verdictSystem = `You are a SaaS pricing analyst. Respond with a single JSON object and nothing else. Fields: headline, summary, cta, why_this_decision (array of strings), risk_description, expected_revenue_impact, churn_outlook, market_positioning.`

const narrativeSystem = `You are a SaaS pricing analyst. Respond with a single JSON object and nothing else. Fields: description.`

// ClaudeGenerator implements Generator against the Anthropic API.
type ClaudeGenerator struct {
	client  anthropic.Client
	calc    *cost.Calculator
	opts    Options
	limiter *rate.Limiter
}

// NewClaudeGenerator creates a generator. A zero RequestsPerSec disables
// client-side rate limiting.
func NewClaudeGenerator(client anthropic.Client, calc *cost.Calculator, opts Options) *ClaudeGenerator {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5-20250929"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return &ClaudeGenerator{client: client, calc: calc, opts: opts, limiter: limiter}
}

// verdictPayload is the JSON shape the model is asked to produce.
type verdictPayload struct {
	Headline              string   `json:"headline"`
	Summary               string   `json:"summary"`
	CTA                   string   `json:"cta"`
	WhyThisDecision       []string `json:"why_this_decision"`
	RiskDescription       string   `json:"risk_description"`
	ExpectedRevenueImpact string   `json:"expected_revenue_impact"`
	ChurnOutlook          string   `json:"churn_outlook"`
	MarketPositioning     string   `json:"market_positioning"`
}

func (g *ClaudeGenerator) GenerateVerdict(ctx context.Context, dctx model.DecisionContext, sim *model.SimulationResult) (model.Verdict, model.ModelMeta, error) {
	var zero model.Verdict

	prompt, err := verdictPrompt(dctx, sim)
	if err != nil {
		return zero, model.ModelMeta{}, err
	}

	start := time.Now()
	resp, err := g.call(ctx, verdictSystem, prompt)
	if err != nil {
		return zero, model.ModelMeta{}, err
	}
	latency := time.Since(start)

	var payload verdictPayload
	if err := decodeJSON(resp.Text(), &payload); err != nil {
		return zero, model.ModelMeta{}, fault.NewDependency("inference", err)
	}

	meta := model.ModelMeta{
		Model:         resp.Model,
		PromptVersion: promptVersion,
		LatencyMS:     latency.Milliseconds(),
		CostUSD:       g.calc.Claude(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}
	resp.Usage.LogCost(resp.Model, "generate_verdict", meta.CostUSD)

	return model.Verdict{
		Headline:        payload.Headline,
		Summary:         payload.Summary,
		CTA:             payload.CTA,
		WhyThisDecision: payload.WhyThisDecision,
		WhatToExpect: model.RiskOutlook{
			Description: payload.RiskDescription,
		},
		SupportingDetails: model.SupportingDetails{
			ExpectedRevenueImpact: payload.ExpectedRevenueImpact,
			ChurnOutlook:          payload.ChurnOutlook,
			MarketPositioning:     payload.MarketPositioning,
		},
	}, meta, nil
}

func (g *ClaudeGenerator) GenerateScenarioNarrative(ctx context.Context, in ScenarioInputs) (string, error) {
	prompt, err := narrativePrompt(in)
	if err != nil {
		return "", err
	}

	resp, err := g.call(ctx, narrativeSystem, prompt)
	if err != nil {
		return "", err
	}

	var payload struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(resp.Text(), &payload); err != nil {
		return "", fault.NewDependency("inference", err)
	}
	if payload.Description == "" {
		return "", fault.NewDependency("inference", eris.New("empty scenario description"))
	}
	return payload.Description, nil
}

// call sends one message with the configured timeout and rate limit,
// retrying transient transport failures. All failures come back as
// DependencyError.
func (g *ClaudeGenerator) call(ctx context.Context, system, prompt string) (*anthropic.MessageResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fault.NewDependency("inference", err)
		}
	}

	var resp *anthropic.MessageResponse
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		r, err := g.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     g.opts.Model,
			MaxTokens: g.opts.MaxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		zap.L().Warn("inference: claude call failed",
			zap.String("model", g.opts.Model),
			zap.Error(err),
		)
		return nil, fault.NewDependency("inference", err)
	}
	return resp, nil
}

func verdictPrompt(dctx model.DecisionContext, sim *model.SimulationResult) (string, error) {
	input := map[string]any{
		"context":    dctx,
		"simulation": sim,
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "inference: marshal verdict prompt")
	}
	return "Evaluate this pricing change and draft a verdict.\n" + string(data), nil
}

func narrativePrompt(in ScenarioInputs) (string, error) {
	input := map[string]any{
		"scenario":   in.Name,
		"goal":       in.Goal,
		"company":    in.CompanyName,
		"context":    in.Context,
		"projection": in.Projection,
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "inference: marshal narrative prompt")
	}
	return "Describe this pricing scenario for the customer.\n" + string(data), nil
}

// decodeJSON tolerates prose around the JSON object by slicing from the
// first '{' to the last '}'.
func decodeJSON(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return eris.Errorf("inference: no JSON object in response: %.80s", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return eris.Wrap(err, "inference: decode response")
	}
	return nil
}
