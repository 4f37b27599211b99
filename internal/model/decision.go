package model

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/pricelens/pricelens/internal/fault"
)

// Status is a decision's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// allowedTransitions is the lifecycle table. rejected is terminal; completed
// accepts rollback events but no further status change.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusCompleted},
	StatusRejected:  {},
	StatusCompleted: {},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// StatusEvent is one entry in a decision's status audit trail.
type StatusEvent struct {
	Status        Status     `json:"status"`
	Reason        string     `json:"reason"`
	Actor         string     `json:"actor"`
	Timestamp     time.Time  `json:"timestamp"`
	ImplementedAt *time.Time `json:"implemented_at,omitempty"`
	RollbackAt    *time.Time `json:"rollback_at,omitempty"`
}

// ContextVersion is one append-only entry in the context stream. Versions
// are 1-indexed and each carries a full context snapshot.
type ContextVersion struct {
	Version   int             `json:"version"`
	Context   DecisionContext `json:"context"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// VerdictVersion is one append-only entry in the verdict stream. The stream
// counter is independent from the context stream.
type VerdictVersion struct {
	Version   int       `json:"version"`
	Verdict   Verdict   `json:"verdict"`
	ModelMeta ModelMeta `json:"model_meta"`
	CreatedAt time.Time `json:"created_at"`
}

// PricingInputs are the numbers a decision's simulations run against.
type PricingInputs struct {
	CurrentPrice    float64 `json:"current_price"`
	NewPrice        float64 `json:"new_price"`
	Currency        string  `json:"currency"`
	ActiveCustomers int     `json:"active_customers"`
	GlobalMRR       float64 `json:"global_mrr"`
	GlobalChurnRate float64 `json:"global_churn_rate"` // percent, e.g. 5.0
	Goal            Goal    `json:"goal"`
}

// Decision is the aggregate root for one pricing-change proposal. It owns
// two independent append-only version streams (context, verdict), the status
// audit trail, its scenarios, and its single outcome record.
//
// The denormalized Context/Verdict mirrors are only ever written by the
// append methods below; the store verifies them against the version tails on
// every read.
type Decision struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	CompanyName string `json:"company_name"`
	WebsiteURL  string `json:"website_url,omitempty"`

	Status Status        `json:"status"`
	Inputs PricingInputs `json:"inputs"`

	Context         DecisionContext  `json:"context"`
	ContextVersion  int              `json:"context_version"`
	ContextVersions []ContextVersion `json:"context_versions"`

	Verdict         Verdict          `json:"verdict"`
	VerdictVersion  int              `json:"verdict_version"`
	VerdictVersions []VerdictVersion `json:"verdict_versions"`

	StatusEvents []StatusEvent `json:"status_events"`

	ExpectedImpact string    `json:"expected_impact,omitempty"`
	ModelMeta      ModelMeta `json:"model_meta"`

	Scenarios []Scenario `json:"scenarios"`
	Outcome   *Outcome   `json:"outcome,omitempty"`

	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Revision is the optimistic-concurrency token managed by the store.
	// It is not part of the document's domain state.
	Revision int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDecision creates a pending decision at context version 1 and verdict
// version 1 with a creation status event.
func NewDecision(ownerID, companyName, websiteURL string, inputs PricingInputs, ctx DecisionContext, verdict Verdict, meta ModelMeta, now time.Time) *Decision {
	d := &Decision{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		CompanyName: companyName,
		WebsiteURL:  websiteURL,
		Status:      StatusPending,
		Inputs:      inputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.appendContext(ctx, "initial context", now)
	d.appendVerdict(verdict, meta, now)
	d.StatusEvents = append(d.StatusEvents, StatusEvent{
		Status:    StatusPending,
		Reason:    "decision created",
		Actor:     ownerID,
		Timestamp: now,
	})
	return d
}

func (d *Decision) appendContext(ctx DecisionContext, reason string, now time.Time) {
	d.ContextVersion++
	d.ContextVersions = append(d.ContextVersions, ContextVersion{
		Version:   d.ContextVersion,
		Context:   ctx,
		Reason:    reason,
		CreatedAt: now,
	})
	d.Context = ctx
	d.UpdatedAt = now
}

func (d *Decision) appendVerdict(v Verdict, meta ModelMeta, now time.Time) {
	d.VerdictVersion++
	d.VerdictVersions = append(d.VerdictVersions, VerdictVersion{
		Version:   d.VerdictVersion,
		Verdict:   v,
		ModelMeta: meta,
		CreatedAt: now,
	})
	d.Verdict = v
	d.ModelMeta = meta
	d.UpdatedAt = now
}

// AppendContextVersion appends a new context snapshot and advances the
// denormalized mirror. Prior entries are never touched.
func (d *Decision) AppendContextVersion(ctx DecisionContext, reason string, now time.Time) {
	d.appendContext(ctx, reason, now)
}

// AppendVerdictVersion appends a regenerated verdict and advances the
// denormalized mirror. The verdict stream counter is independent from the
// context stream.
func (d *Decision) AppendVerdictVersion(v Verdict, meta ModelMeta, now time.Time) {
	d.appendVerdict(v, meta, now)
}

// TransitionOpts carries the optional fields of a status event.
type TransitionOpts struct {
	ImplementedAt *time.Time
}

// Transition moves the decision to the target status and appends the audit
// event. Status and event always change together.
func (d *Decision) Transition(to Status, reason, actor string, now time.Time, opts TransitionOpts) error {
	if !CanTransition(d.Status, to) {
		return &fault.InvalidTransitionError{From: string(d.Status), To: string(to)}
	}
	d.Status = to
	d.StatusEvents = append(d.StatusEvents, StatusEvent{
		Status:        to,
		Reason:        reason,
		Actor:         actor,
		Timestamp:     now,
		ImplementedAt: opts.ImplementedAt,
	})
	d.UpdatedAt = now
	return nil
}

// RecordRollback appends a rollback-flagged event to a completed decision.
// Legacy semantics carried forward: the status stays completed, only the
// event records the rollback intent.
func (d *Decision) RecordRollback(reason, actor string, rollbackAt, now time.Time) error {
	if d.Status != StatusCompleted {
		return &fault.InvalidTransitionError{From: string(d.Status), To: "rollback"}
	}
	d.StatusEvents = append(d.StatusEvents, StatusEvent{
		Status:     StatusCompleted,
		Reason:     reason,
		Actor:      actor,
		Timestamp:  now,
		RollbackAt: &rollbackAt,
	})
	d.UpdatedAt = now
	return nil
}

// ChosenScenario returns the currently chosen scenario, or nil.
func (d *Decision) ChosenScenario() *Scenario {
	for i := range d.Scenarios {
		if d.Scenarios[i].Chosen {
			return &d.Scenarios[i]
		}
	}
	return nil
}

// ChooseScenario marks the target scenario chosen and un-chooses any prior
// one. Both flips happen in the same write.
func (d *Decision) ChooseScenario(scenarioID string) error {
	target := -1
	for i := range d.Scenarios {
		if d.Scenarios[i].ID == scenarioID {
			target = i
			break
		}
	}
	if target < 0 {
		return fault.NewNotFound("scenario", scenarioID)
	}
	for i := range d.Scenarios {
		d.Scenarios[i].Chosen = i == target
	}
	return nil
}

// SoftDelete tombstones the decision and everything it owns. Audit history
// is preserved; nothing is hard-deleted.
func (d *Decision) SoftDelete(now time.Time) {
	d.Deleted = true
	d.DeletedAt = &now
	d.UpdatedAt = now
}

// ContextAt returns the context snapshot in effect at t, or false if the
// decision did not exist yet.
func (d *Decision) ContextAt(t time.Time) (DecisionContext, bool) {
	var out DecisionContext
	found := false
	for _, cv := range d.ContextVersions {
		if cv.CreatedAt.After(t) {
			break
		}
		out = cv.Context
		found = true
	}
	return out, found
}

// VerdictAt returns the verdict in effect at t, or false if none existed yet.
func (d *Decision) VerdictAt(t time.Time) (Verdict, bool) {
	var out Verdict
	found := false
	for _, vv := range d.VerdictVersions {
		if vv.CreatedAt.After(t) {
			break
		}
		out = vv.Verdict
		found = true
	}
	return out, found
}

// CheckInvariants verifies the append-only version sequencing, the
// denormalized mirrors, and the at-most-one-chosen-scenario rule. A failure
// here signals a bug or a corrupted document, never user error.
func (d *Decision) CheckInvariants() error {
	if d.ContextVersion != len(d.ContextVersions) {
		return d.invariant("context version %d != %d entries", d.ContextVersion, len(d.ContextVersions))
	}
	if d.VerdictVersion != len(d.VerdictVersions) {
		return d.invariant("verdict version %d != %d entries", d.VerdictVersion, len(d.VerdictVersions))
	}
	for i, cv := range d.ContextVersions {
		if cv.Version != i+1 {
			return d.invariant("context version entry %d numbered %d", i, cv.Version)
		}
	}
	for i, vv := range d.VerdictVersions {
		if vv.Version != i+1 {
			return d.invariant("verdict version entry %d numbered %d", i, vv.Version)
		}
	}
	if n := len(d.ContextVersions); n > 0 && !reflect.DeepEqual(d.Context, d.ContextVersions[n-1].Context) {
		return d.invariant("current context diverged from version %d", n)
	}
	if n := len(d.VerdictVersions); n > 0 && !reflect.DeepEqual(d.Verdict, d.VerdictVersions[n-1].Verdict) {
		return d.invariant("current verdict diverged from version %d", n)
	}
	chosen := 0
	for i := range d.Scenarios {
		if d.Scenarios[i].Chosen {
			chosen++
		}
	}
	if chosen > 1 {
		return d.invariant("%d scenarios marked chosen", chosen)
	}
	return nil
}

func (d *Decision) invariant(format string, args ...any) error {
	return &fault.InvariantViolationError{DecisionID: d.ID, Msg: fmt.Sprintf(format, args...)}
}
