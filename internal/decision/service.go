// Package decision orchestrates the lifecycle of a pricing decision: the
// versioned aggregate, its status state machine, and verdict regeneration.
// All operations are request-scoped read-modify-write cycles against the
// store; a concurrency conflict is returned to the caller, who retries the
// whole operation.
package decision

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/inference"
	"github.com/pricelens/pricelens/internal/limits"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/simulation"
	"github.com/pricelens/pricelens/internal/store"
	"github.com/pricelens/pricelens/internal/verdict"
)

// Service wires the decision aggregate to its collaborators.
type Service struct {
	store store.Store
	sim   *simulation.Engine
	gen   inference.Generator
	gate  limits.Gate
	now   func() time.Time
}

// NewService creates a Service. The clock defaults to time.Now and is
// injectable for tests.
func NewService(st store.Store, sim *simulation.Engine, gen inference.Generator, gate limits.Gate) *Service {
	return &Service{
		store: st,
		sim:   sim,
		gen:   gen,
		gate:  gate,
		now:   time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams holds everything needed to open a decision.
type CreateParams struct {
	OwnerID     string
	CompanyName string
	WebsiteURL  string
	Inputs      model.PricingInputs
	Context     model.DecisionContext
}

// Create opens a new pending decision at context and verdict version 1.
// The verdict is generated before anything is written: an inference timeout
// leaves no partial aggregate behind.
func (s *Service) Create(ctx context.Context, p CreateParams) (*model.Decision, error) {
	if p.OwnerID == "" {
		return nil, fault.NewValidation("owner_id", "required")
	}
	if p.CompanyName == "" {
		return nil, fault.NewValidation("company_name", "required")
	}
	if err := s.gate.Check(ctx, p.OwnerID, limits.ResourceDecisions); err != nil {
		return nil, err
	}

	sim, err := s.simulate(p.Inputs)
	if err != nil {
		return nil, err
	}

	v, meta, err := s.generateVerdict(ctx, p.Context, sim)
	if err != nil {
		return nil, err
	}

	d := model.NewDecision(p.OwnerID, p.CompanyName, p.WebsiteURL, p.Inputs, p.Context, v, meta, s.now())
	d.ExpectedImpact = v.SupportingDetails.ExpectedRevenueImpact

	if err := s.store.CreateDecision(ctx, d); err != nil {
		return nil, err
	}

	zap.L().Info("decision: created",
		zap.String("decision_id", d.ID),
		zap.String("owner_id", d.OwnerID),
		zap.Float64("price_change_pct", sim.PriceChangePct),
		zap.String("risk_level", string(sim.RiskLevel)),
	)
	return d, nil
}

// Get loads a decision, excluding soft-deleted ones.
func (s *Service) Get(ctx context.Context, id string) (*model.Decision, error) {
	return s.store.GetDecision(ctx, id)
}

// List returns decisions matching the filter.
func (s *Service) List(ctx context.Context, filter store.DecisionFilter) ([]model.Decision, error) {
	return s.store.ListDecisions(ctx, filter)
}

// AppendContext appends a new context version with a human reason and
// advances the current-context mirror in the same write.
func (s *Service) AppendContext(ctx context.Context, id string, newCtx model.DecisionContext, reason string) (*model.Decision, error) {
	if reason == "" {
		return nil, fault.NewValidation("reason", "required")
	}
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	d.AppendContextVersion(newCtx, reason, s.now())
	if err := s.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	zap.L().Info("decision: context appended",
		zap.String("decision_id", d.ID),
		zap.Int("context_version", d.ContextVersion),
	)
	return d, nil
}

// RegenerateVerdict recomputes a verdict from the current context and a
// fresh simulation, then appends it as a new verdict version. Generation
// completes fully before the write; on inference failure nothing is applied.
func (s *Service) RegenerateVerdict(ctx context.Context, id string) (*model.Decision, error) {
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Check(ctx, d.OwnerID, limits.ResourceVerdicts); err != nil {
		return nil, err
	}

	sim, err := s.simulate(d.Inputs)
	if err != nil {
		return nil, err
	}
	v, meta, err := s.generateVerdict(ctx, d.Context, sim)
	if err != nil {
		return nil, err
	}

	d.AppendVerdictVersion(v, meta, s.now())
	d.ExpectedImpact = v.SupportingDetails.ExpectedRevenueImpact
	if err := s.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}

	zap.L().Info("decision: verdict regenerated",
		zap.String("decision_id", d.ID),
		zap.Int("verdict_version", d.VerdictVersion),
		zap.String("model", meta.Model),
		zap.Int64("latency_ms", meta.LatencyMS),
	)
	return d, nil
}

// TransitionParams carries the audit fields of a status change.
type TransitionParams struct {
	Reason        string
	Actor         string
	ImplementedAt *time.Time
}

// Transition moves a decision to the target status, appending the audit
// event atomically with the status change.
func (s *Service) Transition(ctx context.Context, id string, to model.Status, p TransitionParams) (*model.Decision, error) {
	if p.Actor == "" {
		return nil, fault.NewValidation("actor", "required")
	}
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.Transition(to, p.Reason, p.Actor, s.now(), model.TransitionOpts{ImplementedAt: p.ImplementedAt}); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	zap.L().Info("decision: status changed",
		zap.String("decision_id", d.ID),
		zap.String("status", string(to)),
		zap.String("actor", p.Actor),
	)
	return d, nil
}

// Rollback records rollback intent on a completed decision. The status stays
// completed; only the event carries the rollback timestamp.
func (s *Service) Rollback(ctx context.Context, id, reason, actor string, rollbackAt time.Time) (*model.Decision, error) {
	if actor == "" {
		return nil, fault.NewValidation("actor", "required")
	}
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.RecordRollback(reason, actor, rollbackAt, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Delete tombstones a decision together with its scenarios and outcome.
func (s *Service) Delete(ctx context.Context, id string) error {
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return err
	}
	d.SoftDelete(s.now())
	return s.store.UpdateDecision(ctx, d)
}

// ComparisonEntry is one decision's slice of a side-by-side view.
type ComparisonEntry struct {
	DecisionID     string                `json:"decision_id"`
	CompanyName    string                `json:"company_name"`
	Status         model.Status          `json:"status"`
	Inputs         model.PricingInputs   `json:"inputs"`
	Context        model.DecisionContext `json:"context"`
	ContextVersion int                   `json:"context_version"`
	Verdict        model.Verdict         `json:"verdict"`
	VerdictVersion int                   `json:"verdict_version"`
}

// ComparisonView is the read-only projection across multiple decisions.
type ComparisonView struct {
	Entries []ComparisonEntry `json:"entries"`
}

// Compare builds a side-by-side view of the current context and verdict of
// each decision. Any missing or soft-deleted id fails the whole call.
func (s *Service) Compare(ctx context.Context, ids []string) (*ComparisonView, error) {
	if len(ids) < 2 {
		return nil, fault.NewValidation("ids", "at least two decision ids required")
	}
	view := &ComparisonView{Entries: make([]ComparisonEntry, 0, len(ids))}
	for _, id := range ids {
		d, err := s.store.GetDecision(ctx, id)
		if err != nil {
			return nil, err
		}
		view.Entries = append(view.Entries, ComparisonEntry{
			DecisionID:     d.ID,
			CompanyName:    d.CompanyName,
			Status:         d.Status,
			Inputs:         d.Inputs,
			Context:        d.Context,
			ContextVersion: d.ContextVersion,
			Verdict:        d.Verdict,
			VerdictVersion: d.VerdictVersion,
		})
	}
	return view, nil
}

// HistorySnapshot is the reconstructed state of a decision at a point in
// time.
type HistorySnapshot struct {
	DecisionID string                 `json:"decision_id"`
	At         time.Time              `json:"at"`
	Context    *model.DecisionContext `json:"context,omitempty"`
	Verdict    *model.Verdict         `json:"verdict,omitempty"`
}

// HistoryAt reconstructs the context and verdict in effect at t from the
// append-only version streams.
func (s *Service) HistoryAt(ctx context.Context, id string, t time.Time) (*HistorySnapshot, error) {
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &HistorySnapshot{DecisionID: d.ID, At: t}
	if c, ok := d.ContextAt(t); ok {
		snap.Context = &c
	}
	if v, ok := d.VerdictAt(t); ok {
		snap.Verdict = &v
	}
	return snap, nil
}

func (s *Service) simulate(in model.PricingInputs) (*model.SimulationResult, error) {
	return s.sim.Simulate(simulation.Input{
		CurrentPrice:    in.CurrentPrice,
		NewPrice:        in.NewPrice,
		ActiveCustomers: in.ActiveCustomers,
		Currency:        in.Currency,
		GlobalMRR:       in.GlobalMRR,
		GlobalChurnRate: in.GlobalChurnRate,
		Goal:            in.Goal,
	})
}

// generateVerdict drafts narrative via inference, then stamps deterministic
// scores and labels. Labels always come from scores computed here, never
// from upstream.
func (s *Service) generateVerdict(ctx context.Context, dctx model.DecisionContext, sim *model.SimulationResult) (model.Verdict, model.ModelMeta, error) {
	v, meta, err := s.gen.GenerateVerdict(ctx, dctx, sim)
	if err != nil {
		return model.Verdict{}, model.ModelMeta{}, err
	}
	return verdict.Finalize(v, dctx, sim), meta, nil
}
