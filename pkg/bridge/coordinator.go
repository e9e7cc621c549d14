package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/internal/metrics"
	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	"github.com/zero-finance/treasury-engine/pkg/chains"
	"github.com/zero-finance/treasury-engine/pkg/config"
	"github.com/zero-finance/treasury-engine/pkg/events"
	"github.com/zero-finance/treasury-engine/pkg/evm"
	"github.com/zero-finance/treasury-engine/pkg/executor"
	"github.com/zero-finance/treasury-engine/pkg/quote"
)

// fillLookbackBlocks bounds the log scan window on the destination chain.
// Wide enough to cover the max fill wait on fast chains.
const fillLookbackBlocks = 50000

// defaultMaxFillWait applies when a chain has no configured max fill wait.
const defaultMaxFillWait = 30 * time.Minute

// QuoteClient fetches bridge fee quotes.
type QuoteClient interface {
	GetSuggestedFees(ctx context.Context, req quote.Request) (*quote.SuggestedFees, error)
}

// Caller executes Safe transaction batches on the source chain.
type Caller interface {
	ExecuteCalls(ctx context.Context, safe common.Address, chainID int64, calls []evm.SafeTx) (*executor.Result, error)
}

// ChainWatcher reads fill events and deposit receipts from a chain.
type ChainWatcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// InitiateRequest describes one bridge transfer to start.
type InitiateRequest struct {
	Owner         common.Address
	SourceChainID int64
	DestChainID   int64
	VaultAddress  common.Address
	Amount        *big.Int
}

// Coordinator initiates bridge deposits and reconciles the local ledger
// against destination-chain fill events.
type Coordinator struct {
	registry *chains.Registry
	store    Store
	quotes   QuoteClient
	caller   Caller
	watchers map[int64]ChainWatcher
	cfg      config.BridgeConfig
	bus      *events.Bus
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator creates a bridge coordinator.
func NewCoordinator(
	registry *chains.Registry,
	store Store,
	quotes QuoteClient,
	caller Caller,
	watchers map[int64]ChainWatcher,
	cfg config.BridgeConfig,
	bus *events.Bus,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		registry: registry,
		store:    store,
		quotes:   quotes,
		caller:   caller,
		watchers: watchers,
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Initiate quotes, submits and records one bridge deposit.
//
// Idempotency: a repeated call with the same (owner, route, amount) within
// the dedup window returns the in-flight pending transaction instead of
// creating a duplicate deposit.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*Transaction, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, apperrors.BadRequestError(nil, "amount must be positive")
	}

	route, err := c.registry.Route(req.SourceChainID, req.DestChainID)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid bridge route")
	}

	existing, err := c.store.FindRecentPending(ctx, req.Owner.Hex(), req.SourceChainID, req.DestChainID, req.Amount, c.cfg.DedupWindow)
	if err == nil {
		c.logger.Info("Duplicate bridge request within dedup window, returning in-flight transaction",
			zap.String("bridge_tx_id", existing.ID.String()))
		return existing, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, apperrors.GeneralError(err)
	}

	fees, err := c.quotes.GetSuggestedFees(ctx, quote.Request{
		InputToken:         route.Source.USDCAddress,
		OutputToken:        route.Destination.USDCAddress,
		OriginChainID:      req.SourceChainID,
		DestinationChainID: req.DestChainID,
		Amount:             req.Amount,
	})
	if err != nil {
		return nil, apperrors.DependencyError(err, "failed to fetch bridge quote")
	}
	if fees.IsAmountTooLow {
		return nil, apperrors.BadRequestError(nil, "amount too low to bridge")
	}

	outputAmount := fees.OutputAmount(req.Amount)
	if outputAmount.Sign() <= 0 {
		return nil, apperrors.BadRequestError(nil, "bridge fees exceed amount")
	}

	calls, err := c.buildDepositCalls(route, req, fees, outputAmount)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	result, err := c.caller.ExecuteCalls(ctx, req.Owner, req.SourceChainID, calls)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrExecutionInFlight):
			return nil, apperrors.LockedError(err, "an execution is already in flight for this safe")
		case errors.Is(err, executor.ErrConfirmationTimeout) && result != nil:
			// The deposit tx is submitted; only its confirmation is unknown.
			// Record the pending row so the dedup window and the fill watcher
			// cover the ambiguous outcome instead of a retry depositing twice.
			c.logger.Warn("Deposit confirmation timed out, recording pending transfer",
				zap.String("deposit_tx_hash", result.TxHash.Hex()))
		default:
			return nil, apperrors.DependencyError(err, "bridge deposit failed")
		}
	}

	tx := &Transaction{
		ID:                uuid.New(),
		OwnerAddress:      req.Owner.Hex(),
		SourceChainID:     req.SourceChainID,
		DestChainID:       req.DestChainID,
		VaultAddress:      req.VaultAddress.Hex(),
		Amount:            req.Amount,
		OutputAmount:      outputAmount,
		BridgeFee:         fees.TotalRelayFee.Total,
		LPFee:             fees.LPFee.Total,
		RelayerGasFee:     fees.RelayerGasFee.Total,
		RelayerCapitalFee: fees.RelayerCapitalFee.Total,
		DepositTxHash:     result.TxHash.Hex(),
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if result.Receipt != nil {
		tx.DepositID = extractDepositID(result.Receipt)
	}

	if err := c.store.Create(ctx, tx); err != nil {
		// The deposit is on chain; losing the row would orphan the funds.
		c.logger.Error("Deposit confirmed but ledger insert failed",
			zap.String("deposit_tx_hash", tx.DepositTxHash),
			zap.Error(err))
		return nil, apperrors.GeneralError(err)
	}

	metrics.BridgeTransfersTotal.WithLabelValues(
		strconv.FormatInt(req.SourceChainID, 10),
		strconv.FormatInt(req.DestChainID, 10),
		string(StatusPending),
	).Inc()
	c.publishStatus(tx)

	c.logger.Info("Bridge deposit submitted",
		zap.String("bridge_tx_id", tx.ID.String()),
		zap.Int64("source_chain", req.SourceChainID),
		zap.Int64("dest_chain", req.DestChainID),
		zap.String("amount", req.Amount.String()),
		zap.String("deposit_tx_hash", tx.DepositTxHash))

	return tx, nil
}

func (c *Coordinator) buildDepositCalls(route chains.Route, req InitiateRequest, fees *quote.SuggestedFees, outputAmount *big.Int) ([]evm.SafeTx, error) {
	approveData, err := evm.PackERC20Approve(route.Source.SpokePool, req.Amount)
	if err != nil {
		return nil, err
	}

	fillDeadline := fees.FillDeadline
	if fillDeadline == 0 {
		maxWait := route.Destination.MaxFillWait
		if maxWait <= 0 {
			maxWait = defaultMaxFillWait
		}
		fillDeadline = uint32(time.Now().Add(maxWait).Unix())
	}

	depositData, err := evm.PackDepositV3(evm.DepositV3Params{
		Depositor:           req.Owner,
		Recipient:           req.VaultAddress,
		InputToken:          route.Source.USDCAddress,
		OutputToken:         route.Destination.USDCAddress,
		InputAmount:         req.Amount,
		OutputAmount:        outputAmount,
		DestinationChainID:  big.NewInt(req.DestChainID),
		ExclusiveRelayer:    fees.ExclusiveRelayer,
		QuoteTimestamp:      fees.QuoteTimestamp,
		FillDeadline:        fillDeadline,
		ExclusivityDeadline: fees.ExclusivityDeadline,
		Message:             []byte{},
	})
	if err != nil {
		return nil, err
	}

	return []evm.SafeTx{
		{To: route.Source.USDCAddress, Value: big.NewInt(0), Data: approveData, Operation: 0},
		{To: route.Source.SpokePool, Value: big.NewInt(0), Data: depositData, Operation: 0},
	}, nil
}

func extractDepositID(receipt *types.Receipt) *uint32 {
	for _, log := range receipt.Logs {
		event, err := evm.ParseDepositEvent(*log)
		if err == nil {
			return &event.DepositID
		}
	}
	return nil
}

// PollFill checks the destination chain for a fill matching the deposit and
// advances the transaction's status.
//
// An unreachable destination RPC leaves the status unchanged; the call is
// safe to repeat. Only the max-wait window elapsing moves a pending
// transaction to failed.
func (c *Coordinator) PollFill(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	destChain, err := c.registry.Resolve(tx.DestChainID)
	if err != nil {
		return nil, err
	}
	watcher, ok := c.watchers[tx.DestChainID]
	if !ok {
		return nil, fmt.Errorf("no watcher for chain %d", tx.DestChainID)
	}

	if tx.DepositID == nil {
		c.recoverDepositID(ctx, tx)
	}

	fill, lookupErr := c.findFill(ctx, watcher, destChain, tx)
	if lookupErr != nil {
		// RPC trouble is not evidence of failure; leave the row alone.
		c.logger.Warn("Fill lookup failed, leaving status unchanged",
			zap.String("bridge_tx_id", tx.ID.String()),
			zap.Error(lookupErr))
		return tx, nil
	}

	if fill != nil {
		filledAt := time.Now().UTC()
		if err := c.store.MarkFilled(ctx, tx.ID, fill.TxHash.Hex(), filledAt); err != nil {
			if errors.Is(err, ErrTerminalState) {
				return c.store.Get(ctx, tx.ID)
			}
			return nil, err
		}
		fillHash := fill.TxHash.Hex()
		tx.Status = StatusFilled
		tx.FillTxHash = &fillHash
		tx.FilledAt = &filledAt

		metrics.BridgeTransfersTotal.WithLabelValues(
			strconv.FormatInt(tx.SourceChainID, 10),
			strconv.FormatInt(tx.DestChainID, 10),
			string(StatusFilled),
		).Inc()
		metrics.BridgeFillDuration.Observe(filledAt.Sub(tx.CreatedAt).Seconds())
		c.publishStatus(tx)

		c.logger.Info("Bridge transfer filled",
			zap.String("bridge_tx_id", tx.ID.String()),
			zap.String("fill_tx_hash", fillHash))
		return tx, nil
	}

	maxWait := destChain.MaxFillWait
	if maxWait <= 0 {
		maxWait = defaultMaxFillWait
	}
	if time.Since(tx.CreatedAt) > maxWait {
		failedAt := time.Now().UTC()
		message := fmt.Sprintf("fill not observed within %s", maxWait)
		if err := c.store.MarkFailed(ctx, tx.ID, message, failedAt); err != nil {
			if errors.Is(err, ErrTerminalState) {
				return c.store.Get(ctx, tx.ID)
			}
			return nil, err
		}
		tx.Status = StatusFailed
		tx.ErrorMessage = &message
		tx.FailedAt = &failedAt

		metrics.BridgeTransfersTotal.WithLabelValues(
			strconv.FormatInt(tx.SourceChainID, 10),
			strconv.FormatInt(tx.DestChainID, 10),
			string(StatusFailed),
		).Inc()
		c.publishStatus(tx)

		c.logger.Warn("Bridge transfer failed: max fill wait exceeded",
			zap.String("bridge_tx_id", tx.ID.String()),
			zap.Duration("max_wait", maxWait))
	}

	return tx, nil
}

// recoverDepositID re-derives the deposit id from the deposit transaction's
// receipt on the source chain. A row recorded while the deposit's
// confirmation timed out carries no deposit id, and without one no fill can
// ever match. Recovery failures leave the row unchanged; the next poll
// retries.
func (c *Coordinator) recoverDepositID(ctx context.Context, tx *Transaction) {
	watcher, ok := c.watchers[tx.SourceChainID]
	if !ok {
		return
	}

	receipt, err := watcher.TransactionReceipt(ctx, common.HexToHash(tx.DepositTxHash))
	if err != nil {
		c.logger.Warn("Deposit receipt lookup failed",
			zap.String("bridge_tx_id", tx.ID.String()),
			zap.String("deposit_tx_hash", tx.DepositTxHash),
			zap.Error(err))
		return
	}

	depositID := extractDepositID(receipt)
	if depositID == nil {
		return
	}
	if err := c.store.SetDepositID(ctx, tx.ID, *depositID); err != nil {
		c.logger.Warn("Failed to persist recovered deposit id",
			zap.String("bridge_tx_id", tx.ID.String()),
			zap.Error(err))
		return
	}
	tx.DepositID = depositID

	c.logger.Info("Recovered deposit id from receipt",
		zap.String("bridge_tx_id", tx.ID.String()),
		zap.Uint32("deposit_id", *depositID))
}

func (c *Coordinator) findFill(ctx context.Context, watcher ChainWatcher, destChain chains.Chain, tx *Transaction) (*evm.FillEvent, error) {
	if tx.DepositID == nil {
		// Still no deposit id to match fills against; the max-wait timeout
		// is the only exit.
		return nil, nil
	}

	latest, err := watcher.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	fromBlock := uint64(0)
	if latest > fillLookbackBlocks {
		fromBlock = latest - fillLookbackBlocks
	}

	logs, err := watcher.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{destChain.SpokePool},
		Topics: [][]common.Hash{
			{evm.FilledV3RelayTopic},
			{common.BigToHash(big.NewInt(tx.SourceChainID))},
			{common.BigToHash(new(big.Int).SetUint64(uint64(*tx.DepositID)))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter fill logs: %w", err)
	}

	for _, log := range logs {
		fill, err := evm.ParseFillEvent(log)
		if err != nil {
			continue
		}
		if fill.OriginChainID.Int64() == tx.SourceChainID && fill.DepositID == *tx.DepositID {
			return fill, nil
		}
	}
	return nil, nil
}

func (c *Coordinator) publishStatus(tx *Transaction) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.TypeBridgeStatusChanged, map[string]string{
		"bridge_tx_id": tx.ID.String(),
		"status":       string(tx.Status),
		"source_chain": strconv.FormatInt(tx.SourceChainID, 10),
		"dest_chain":   strconv.FormatInt(tx.DestChainID, 10),
	})
}

// Start launches the background fill watcher.
func (c *Coordinator) Start() {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.logger.Info("Bridge fill watcher started", zap.Duration("interval", interval))
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.pollAllPending()
			}
		}
	}()
}

// Stop terminates the background watcher and waits for it to exit.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("Bridge fill watcher stopped")
}

func (c *Coordinator) pollAllPending() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pending, err := c.store.ListPending(ctx)
	if err != nil {
		c.logger.Error("Failed to list pending bridge transactions", zap.Error(err))
		return
	}

	for _, tx := range pending {
		if _, err := c.PollFill(ctx, tx.ID); err != nil {
			c.logger.Error("Fill poll failed",
				zap.String("bridge_tx_id", tx.ID.String()),
				zap.Error(err))
		}
	}
}
