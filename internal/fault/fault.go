// Package fault defines the error taxonomy for the decision engine. Callers
// classify failures with the As* predicates rather than matching messages.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError indicates bad input shape or range. The caller can recover
// by correcting the input and retrying.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// NotFoundError indicates an unknown decision, scenario, or KPI id. A
// soft-deleted decision is reported as not found on non-audit surfaces.
type NotFoundError struct {
	Kind string // "decision", "scenario", "kpi"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidTransitionError indicates a lifecycle violation. It always names
// both the current and the requested state.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// ConfigurationError indicates a misconfigured elasticity table or similar
// operator fault. Fatal to the request, not to the process.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// NewConfiguration creates a ConfigurationError.
func NewConfiguration(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ConcurrencyConflictError indicates a lost optimistic-lock race. The caller
// should re-read and retry the whole operation, not just the write.
type ConcurrencyConflictError struct {
	DecisionID       string
	ExpectedRevision int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on decision %s (expected revision %d)", e.DecisionID, e.ExpectedRevision)
}

// DependencyError indicates an inference or persistence collaborator failed
// or timed out. Distinguished from validation so callers retry with backoff.
type DependencyError struct {
	Collaborator string // "inference", "persistence", "limits", "learning"
	Err          error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s: %v", e.Collaborator, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// NewDependency wraps a collaborator failure.
func NewDependency(collaborator string, err error) *DependencyError {
	return &DependencyError{Collaborator: collaborator, Err: err}
}

// LimitExceededError indicates the usage gate rejected a mutating operation.
// User-facing plan limitation, not a system fault.
type LimitExceededError struct {
	Resource string // "decisions", "scenarios", "verdicts"
	Limit    int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("plan limit exceeded for %s (limit %d)", e.Resource, e.Limit)
}

// InvariantViolationError indicates an append-only invariant was observed
// broken on read. This signals a bug and must be surfaced loudly, never
// silently repaired.
type InvariantViolationError struct {
	DecisionID string
	Msg        string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on decision %s: %s", e.DecisionID, e.Msg)
}

// AsValidation reports whether any error in the chain is a ValidationError.
func AsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

// AsNotFound reports whether any error in the chain is a NotFoundError.
func AsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// AsInvalidTransition reports whether any error in the chain is an
// InvalidTransitionError.
func AsInvalidTransition(err error) bool {
	var t *InvalidTransitionError
	return errors.As(err, &t)
}

// AsConfiguration reports whether any error in the chain is a ConfigurationError.
func AsConfiguration(err error) bool {
	var t *ConfigurationError
	return errors.As(err, &t)
}

// AsConcurrencyConflict reports whether any error in the chain is a
// ConcurrencyConflictError.
func AsConcurrencyConflict(err error) bool {
	var t *ConcurrencyConflictError
	return errors.As(err, &t)
}

// AsDependency reports whether any error in the chain is a DependencyError.
func AsDependency(err error) bool {
	var t *DependencyError
	return errors.As(err, &t)
}

// AsLimitExceeded reports whether any error in the chain is a LimitExceededError.
func AsLimitExceeded(err error) bool {
	var t *LimitExceededError
	return errors.As(err, &t)
}

// AsInvariantViolation reports whether any error in the chain is an
// InvariantViolationError.
func AsInvariantViolation(err error) bool {
	var t *InvariantViolationError
	return errors.As(err, &t)
}
