package bridge

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTransactionNotFound is returned when a bridge transaction lookup
	// finds no matching record.
	ErrTransactionNotFound = errors.New("bridge transaction not found")
	// ErrTerminalState is returned when an update targets a transaction
	// already in a terminal state.
	ErrTerminalState = errors.New("bridge transaction already terminal")
)

// Store defines the interface for bridge transaction persistence.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// FindRecentPending returns a pending transaction with the same owner,
	// route and amount created within the dedup window, if one exists.
	FindRecentPending(ctx context.Context, owner string, sourceChainID, destChainID int64, amount *big.Int, window time.Duration) (*Transaction, error)
	ListPending(ctx context.Context) ([]*Transaction, error)
	// SetDepositID backfills the deposit id on a pending transaction once it
	// has been recovered from the deposit receipt. Terminal rows are left
	// untouched.
	SetDepositID(ctx context.Context, id uuid.UUID, depositID uint32) error
	// MarkFilled transitions pending -> filled. Fails with ErrTerminalState
	// if the row is already terminal.
	MarkFilled(ctx context.Context, id uuid.UUID, fillTxHash string, filledAt time.Time) error
	// MarkFailed transitions pending -> failed. Fails with ErrTerminalState
	// if the row is already terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, failedAt time.Time) error
}
