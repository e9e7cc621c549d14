package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run lookup finds no matching record.
var ErrRunNotFound = errors.New("reconciliation run not found")

// Store defines the interface for reconciliation run persistence.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	// UpdateRun persists the run's mutable fields: state, counts, tx hash,
	// error message and finish time.
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	// ListRuns returns runs for one safe, newest first.
	ListRuns(ctx context.Context, safeID uuid.UUID, limit int) ([]*Run, error)
}
