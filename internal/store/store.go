// Package store persists decision aggregates as documents with optimistic
// revision checks. The aggregate is the unit of consistency: every write
// replaces the whole document and must carry the revision it read.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	Status         model.Status `json:"status,omitempty"`
	OwnerID        string       `json:"owner_id,omitempty"`
	IncludeDeleted bool         `json:"include_deleted,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Offset         int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for decision aggregates.
//
// GetDecision and ListDecisions verify aggregate invariants on every read
// and surface an InvariantViolationError rather than repairing a corrupted
// document. Soft-deleted decisions are excluded unless the filter asks for
// them; GetDecision never returns one.
type Store interface {
	// CreateDecision inserts a new aggregate at revision 1.
	CreateDecision(ctx context.Context, d *model.Decision) error

	// GetDecision loads an aggregate by id, excluding tombstoned documents.
	GetDecision(ctx context.Context, id string) (*model.Decision, error)

	// UpdateDecision replaces the document if and only if the stored
	// revision matches d.Revision; on success d.Revision is advanced. A
	// mismatch is a ConcurrencyConflictError and the caller must re-read
	// and retry the whole operation.
	UpdateDecision(ctx context.Context, d *model.Decision) error

	// ListDecisions returns aggregates matching the filter, newest first.
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// wrapDriver classifies a driver failure as a persistence DependencyError so
// callers can retry with backoff instead of treating it as permanent. Nil
// passes through for the rows.Err() call sites.
func wrapDriver(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fault.NewDependency("persistence", eris.Wrapf(err, format, args...))
}
