package policy

import (
	"context"
	"errors"
)

// ErrPolicyNotFound is returned when no active policy exists for a treasury.
var ErrPolicyNotFound = errors.New("policy not found")

// Store defines the interface for allocation policy persistence.
type Store interface {
	// GetActivePolicy returns the current (non-superseded) policy for a
	// primary Safe address.
	GetActivePolicy(ctx context.Context, primaryAddress string) (*Policy, error)
	// SetPolicy supersedes the active policy, if any, and inserts the given
	// policy as the new active version. The policy's Version is assigned.
	SetPolicy(ctx context.Context, policy *Policy) error
	// History returns all policy versions for a primary Safe address, newest
	// first.
	History(ctx context.Context, primaryAddress string) ([]*Policy, error)
}
