// Package bridge moves treasury funds across chains through an Across-style
// deposit-then-relayer-fill bridge and tracks every transfer through to its
// terminal state.
package bridge

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Status is a bridge transaction's lifecycle state. Transitions are
// monotonic: pending -> filled or pending -> failed, then immutable.
type Status string

const (
	StatusPending Status = "pending"
	StatusFilled  Status = "filled"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusFailed
}

// Transaction is one cross-chain transfer record.
type Transaction struct {
	ID                uuid.UUID
	OwnerAddress      string
	SourceChainID     int64
	DestChainID       int64
	VaultAddress      string
	Amount            *big.Int
	OutputAmount      *big.Int
	BridgeFee         *big.Int
	LPFee             *big.Int
	RelayerGasFee     *big.Int
	RelayerCapitalFee *big.Int
	DepositTxHash     string
	FillTxHash        *string
	DepositID         *uint32
	Status            Status
	ErrorMessage      *string
	CreatedAt         time.Time
	FilledAt          *time.Time
	FailedAt          *time.Time
}
