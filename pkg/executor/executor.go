// Package executor submits allocation plans as single atomic Safe
// transactions. A plan with multiple instructions is wrapped in a MultiSend
// delegatecall so either every transfer lands or the whole batch reverts.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/internal/metrics"
	"github.com/zero-finance/treasury-engine/pkg/allocation"
	"github.com/zero-finance/treasury-engine/pkg/config"
	"github.com/zero-finance/treasury-engine/pkg/evm"
	"github.com/zero-finance/treasury-engine/pkg/signer"
)

var (
	// ErrExecutionInFlight is returned when a submission for the same
	// (safe, chain) pair is already running.
	ErrExecutionInFlight = errors.New("execution already in flight for safe")
	// ErrSubmissionFailed is returned when submission keeps failing after
	// the bounded retry budget is spent.
	ErrSubmissionFailed = errors.New("transaction submission failed")
	// ErrExecutionReverted is returned when the batch reverted on chain.
	// Terminal: retrying the identical batch would revert again.
	ErrExecutionReverted = errors.New("execution reverted on chain")
	// ErrConfirmationTimeout is returned when the transaction was submitted
	// but confirmation was not observed in time. The outcome is ambiguous;
	// the caller must re-read balances before writing to this safe again.
	ErrConfirmationTimeout = errors.New("confirmation timeout, outcome unknown")
)

// Status is the terminal state of one execution.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusTimeout   Status = "timeout"
)

// Result describes the outcome of one executed batch. Receipt is set only
// for mined transactions (confirmed or reverted).
type Result struct {
	TxHash      common.Hash
	Status      Status
	BlockNumber uint64
	Receipt     *types.Receipt
}

// ChainBackend is the subset of chain operations the executor needs.
type ChainBackend interface {
	SafeNonce(ctx context.Context, safe common.Address) (*big.Int, error)
	SafeTransactionHash(ctx context.Context, safe common.Address, tx evm.SafeTx, nonce *big.Int) (common.Hash, error)
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Executor turns allocation plans into confirmed Safe transactions.
type Executor struct {
	backends  map[int64]ChainBackend
	signer    signer.Provider
	multiSend common.Address
	cfg       config.ExecutorConfig
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an executor over the given per-chain backends. multiSend is the
// canonical MultiSend library address, assumed identical on every chain.
func New(backends map[int64]ChainBackend, signerProvider signer.Provider, multiSend common.Address, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		backends:  backends,
		signer:    signerProvider,
		multiSend: multiSend,
		cfg:       cfg,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

func lockKey(safe common.Address, chainID int64) string {
	return safe.Hex() + "/" + strconv.FormatInt(chainID, 10)
}

// tryLock reserves the (safe, chain) pair. Returns false if a submission is
// already in flight.
func (e *Executor) tryLock(safe common.Address, chainID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := lockKey(safe, chainID)
	if _, held := e.inFlight[key]; held {
		return false
	}
	e.inFlight[key] = struct{}{}
	return true
}

func (e *Executor) unlock(safe common.Address, chainID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, lockKey(safe, chainID))
}

// Execute submits the plan's instructions as one atomic Safe transaction and
// waits for confirmation.
func (e *Executor) Execute(ctx context.Context, safe common.Address, chainID int64, instructions []allocation.Instruction) (*Result, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("empty instruction list")
	}

	calls := make([]evm.SafeTx, 0, len(instructions))
	for _, inst := range instructions {
		data, err := evm.PackERC20Transfer(inst.Destination, inst.Amount)
		if err != nil {
			return nil, err
		}
		calls = append(calls, evm.SafeTx{To: inst.Asset, Value: big.NewInt(0), Data: data, Operation: 0})
	}

	return e.ExecuteCalls(ctx, safe, chainID, calls)
}

// ExecuteCalls submits arbitrary calls as one atomic Safe transaction and
// waits for confirmation. Used by the bridge coordinator for its
// approve-then-deposit batches.
//
// Concurrency: at most one execution per (safe, chain) pair; a second call
// while one is running fails with ErrExecutionInFlight and has no side
// effects. The lock is released on every return path, including timeout.
func (e *Executor) ExecuteCalls(ctx context.Context, safe common.Address, chainID int64, calls []evm.SafeTx) (*Result, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("empty call list")
	}
	backend, ok := e.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("no backend for chain %d", chainID)
	}

	if !e.tryLock(safe, chainID) {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrExecutionInFlight, safe.Hex(), chainID)
	}
	defer e.unlock(safe, chainID)

	safeTx, err := buildSafeTx(e.multiSend, calls)
	if err != nil {
		return nil, err
	}

	nonce, err := backend.SafeNonce(ctx, safe)
	if err != nil {
		return nil, fmt.Errorf("failed to read safe nonce: %w", err)
	}
	digest, err := backend.SafeTransactionHash(ctx, safe, safeTx, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to compute safe tx hash: %w", err)
	}
	signature, err := e.signer.Sign(ctx, chainID, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign safe tx: %w", err)
	}
	callData, err := evm.PackExecTransaction(safeTx, signature)
	if err != nil {
		return nil, err
	}

	txHash, err := e.submitWithRetry(ctx, backend, safe, callData)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), "submission_failed").Inc()
		return nil, err
	}

	e.logger.Info("Batch submitted",
		zap.String("safe", safe.Hex()),
		zap.Int64("chain_id", chainID),
		zap.Int("calls", len(calls)),
		zap.String("tx_hash", txHash.Hex()))

	confirmCtx := ctx
	if e.cfg.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		confirmCtx, cancel = context.WithTimeout(ctx, e.cfg.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := backend.WaitMined(confirmCtx, txHash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			metrics.ExecutionsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), "timeout").Inc()
			return &Result{TxHash: txHash, Status: StatusTimeout},
				fmt.Errorf("%w: tx %s", ErrConfirmationTimeout, txHash.Hex())
		}
		return nil, fmt.Errorf("failed waiting for confirmation: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.ExecutionsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), "reverted").Inc()
		return &Result{TxHash: txHash, Status: StatusReverted, BlockNumber: receipt.BlockNumber.Uint64(), Receipt: receipt},
			fmt.Errorf("%w: tx %s", ErrExecutionReverted, txHash.Hex())
	}

	metrics.ExecutionsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), "confirmed").Inc()
	e.logger.Info("Batch confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))

	return &Result{TxHash: txHash, Status: StatusConfirmed, BlockNumber: receipt.BlockNumber.Uint64(), Receipt: receipt}, nil
}

// submitWithRetry retries transient submission failures with exponential
// backoff up to the configured attempt budget.
func (e *Executor) submitWithRetry(ctx context.Context, backend ChainBackend, safe common.Address, callData []byte) (common.Hash, error) {
	attempts := e.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := e.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		txHash, err := backend.Submit(ctx, safe, callData, nil)
		if err == nil {
			return txHash, nil
		}
		lastErr = err

		if attempt < attempts {
			metrics.ExecutionRetries.Inc()
			e.logger.Warn("Submission failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return common.Hash{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return common.Hash{}, fmt.Errorf("%w after %d attempts: %v", ErrSubmissionFailed, attempts, lastErr)
}

// buildSafeTx wraps the calls into one Safe transaction. A single call goes
// out directly; multiple calls go through MultiSend as a delegatecall so the
// batch is atomic.
func buildSafeTx(multiSend common.Address, calls []evm.SafeTx) (evm.SafeTx, error) {
	if len(calls) == 1 {
		return calls[0], nil
	}

	var packed []byte
	for _, call := range calls {
		packed = append(packed, evm.EncodeMultiSendTx(call)...)
	}

	callData, err := evm.PackMultiSend(packed)
	if err != nil {
		return evm.SafeTx{}, err
	}
	return evm.SafeTx{To: multiSend, Value: big.NewInt(0), Data: callData, Operation: 1}, nil
}
