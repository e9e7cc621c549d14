package safes

import (
	"context"
	"errors"
)

// ErrSafeNotFound is returned when a Safe lookup finds no matching record.
var ErrSafeNotFound = errors.New("safe not found")

// Store defines the interface for Safe record persistence.
type Store interface {
	CreateSafe(ctx context.Context, safe *Safe) error
	GetSafe(ctx context.Context, opts ...QueryOption) (*Safe, error)
	ListSafes(ctx context.Context, opts ...QueryOption) ([]*Safe, error)
	UpdateDeployment(ctx context.Context, safe *Safe) error
}

// QueryOptions defines filters for Safe lookups.
type QueryOptions struct {
	ID             *string
	ChainID        *int64
	Category       *Category
	PrimaryAddress *string
	Address        *string
}

// QueryOption is a functional option for querying safes.
type QueryOption func(*QueryOptions)

// WithID filters by Safe record ID.
func WithID(id string) QueryOption {
	return func(opts *QueryOptions) {
		opts.ID = &id
	}
}

// WithChainID filters by chain.
func WithChainID(chainID int64) QueryOption {
	return func(opts *QueryOptions) {
		opts.ChainID = &chainID
	}
}

// WithCategory filters by Safe category.
func WithCategory(category Category) QueryOption {
	return func(opts *QueryOptions) {
		opts.Category = &category
	}
}

// WithPrimaryAddress filters by the owning primary Safe address.
func WithPrimaryAddress(address string) QueryOption {
	return func(opts *QueryOptions) {
		opts.PrimaryAddress = &address
	}
}

// WithAddress filters by the Safe's own address.
func WithAddress(address string) QueryOption {
	return func(opts *QueryOptions) {
		opts.Address = &address
	}
}
