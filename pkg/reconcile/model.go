// Package reconcile drives the allocation state machine: read balances, diff
// against the active policy, execute the resulting batch. At most one run per
// safe is in flight at any time.
package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// State is a reconciliation run's position in the state machine. A run moves
// reading -> diffing -> executing and ends in one of the terminal states.
type State string

const (
	StateReading   State = "reading"
	StateDiffing   State = "diffing"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	// StateTimeout means the batch was submitted but confirmation was not
	// observed. The outcome is ambiguous; the next run re-reads balances
	// instead of assuming failure.
	StateTimeout State = "timeout"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimeout
}

// Run is one reconciliation attempt for one primary safe on one chain.
type Run struct {
	ID               uuid.UUID
	SafeID           uuid.UUID
	PrimaryAddress   string
	ChainID          int64
	Trigger          Trigger
	State            State
	PlannedTransfers int
	Shortfalls       int
	TxHash           *string
	ErrorMessage     *string
	StartedAt        time.Time
	FinishedAt       *time.Time
}
