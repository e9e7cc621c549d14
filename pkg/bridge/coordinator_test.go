package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/pkg/chains"
	"github.com/zero-finance/treasury-engine/pkg/config"
	"github.com/zero-finance/treasury-engine/pkg/evm"
	"github.com/zero-finance/treasury-engine/pkg/executor"
	"github.com/zero-finance/treasury-engine/pkg/quote"
)

type memBridgeStore struct {
	txs map[uuid.UUID]*Transaction
}

func newMemBridgeStore() *memBridgeStore {
	return &memBridgeStore{txs: make(map[uuid.UUID]*Transaction)}
}

func (s *memBridgeStore) Create(_ context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	copied := *tx
	s.txs[tx.ID] = &copied
	return nil
}

func (s *memBridgeStore) Get(_ context.Context, id uuid.UUID) (*Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (s *memBridgeStore) FindRecentPending(_ context.Context, owner string, sourceChainID, destChainID int64, amount *big.Int, window time.Duration) (*Transaction, error) {
	for _, tx := range s.txs {
		if tx.Status != StatusPending {
			continue
		}
		if tx.OwnerAddress != owner || tx.SourceChainID != sourceChainID || tx.DestChainID != destChainID {
			continue
		}
		if tx.Amount.Cmp(amount) != 0 {
			continue
		}
		if time.Since(tx.CreatedAt) > window {
			continue
		}
		copied := *tx
		return &copied, nil
	}
	return nil, ErrTransactionNotFound
}

func (s *memBridgeStore) ListPending(_ context.Context) ([]*Transaction, error) {
	var out []*Transaction
	for _, tx := range s.txs {
		if tx.Status == StatusPending {
			copied := *tx
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memBridgeStore) SetDepositID(_ context.Context, id uuid.UUID, depositID uint32) error {
	tx, ok := s.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status != StatusPending {
		return nil
	}
	tx.DepositID = &depositID
	return nil
}

func (s *memBridgeStore) MarkFilled(_ context.Context, id uuid.UUID, fillTxHash string, filledAt time.Time) error {
	tx, ok := s.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status != StatusPending {
		return ErrTerminalState
	}
	tx.Status = StatusFilled
	tx.FillTxHash = &fillTxHash
	tx.FilledAt = &filledAt
	return nil
}

func (s *memBridgeStore) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string, failedAt time.Time) error {
	tx, ok := s.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status != StatusPending {
		return ErrTerminalState
	}
	tx.Status = StatusFailed
	tx.ErrorMessage = &errorMessage
	tx.FailedAt = &failedAt
	return nil
}

type mockQuoteClient struct {
	GetSuggestedFeesFunc func(ctx context.Context, req quote.Request) (*quote.SuggestedFees, error)
}

func (m *mockQuoteClient) GetSuggestedFees(ctx context.Context, req quote.Request) (*quote.SuggestedFees, error) {
	return m.GetSuggestedFeesFunc(ctx, req)
}

type mockCaller struct {
	ExecuteCallsFunc func(ctx context.Context, safe common.Address, chainID int64, calls []evm.SafeTx) (*executor.Result, error)
}

func (m *mockCaller) ExecuteCalls(ctx context.Context, safe common.Address, chainID int64, calls []evm.SafeTx) (*executor.Result, error) {
	return m.ExecuteCallsFunc(ctx, safe, chainID, calls)
}

type mockWatcher struct {
	LatestBlockNumberFunc  func(ctx context.Context) (uint64, error)
	FilterLogsFunc         func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceiptFunc func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func (m *mockWatcher) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return m.LatestBlockNumberFunc(ctx)
}

func (m *mockWatcher) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return m.FilterLogsFunc(ctx, q)
}

func (m *mockWatcher) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.TransactionReceiptFunc == nil {
		return nil, ethereum.NotFound
	}
	return m.TransactionReceiptFunc(ctx, txHash)
}

func bridgeTestRegistry(t *testing.T) *chains.Registry {
	t.Helper()
	registry, err := chains.NewRegistry([]config.ChainConfig{
		{
			ChainID:     8453,
			Name:        "base",
			RPCURL:      "http://localhost:8545",
			USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			SpokePool:   "0x09aea4b2242abC8bb4BB78D537A67a245A7bEC64",
			MaxFillWait: 10 * time.Minute,
		},
		{
			ChainID:     42161,
			Name:        "arbitrum",
			RPCURL:      "http://localhost:8546",
			USDCAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
			SpokePool:   "0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A",
			MaxFillWait: 10 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return registry
}

func testFees() *quote.SuggestedFees {
	return &quote.SuggestedFees{
		TotalRelayFee:     quote.Fee{Pct: decimal.NewFromFloat(0.0012), Total: big.NewInt(1200)},
		RelayerCapitalFee: quote.Fee{Pct: decimal.NewFromFloat(0.0002), Total: big.NewInt(200)},
		RelayerGasFee:     quote.Fee{Pct: decimal.NewFromFloat(0.0005), Total: big.NewInt(500)},
		LPFee:             quote.Fee{Pct: decimal.NewFromFloat(0.0005), Total: big.NewInt(500)},
		QuoteTimestamp:    1700000000,
		FillDeadline:      1700003600,
	}
}

var (
	bridgeOwner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bridgeVault = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

func testRequest() InitiateRequest {
	return InitiateRequest{
		Owner:         bridgeOwner,
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault,
		Amount:        big.NewInt(1000000),
	}
}

func newTestCoordinator(store Store, caller Caller, watchers map[int64]ChainWatcher, t *testing.T) *Coordinator {
	t.Helper()
	quotes := &mockQuoteClient{
		GetSuggestedFeesFunc: func(context.Context, quote.Request) (*quote.SuggestedFees, error) {
			return testFees(), nil
		},
	}
	return NewCoordinator(
		bridgeTestRegistry(t),
		store,
		quotes,
		caller,
		watchers,
		config.BridgeConfig{DedupWindow: 10 * time.Minute, PollInterval: time.Minute},
		nil,
		zap.NewNop(),
	)
}

func okCaller() *mockCaller {
	return &mockCaller{
		ExecuteCallsFunc: func(_ context.Context, _ common.Address, _ int64, calls []evm.SafeTx) (*executor.Result, error) {
			return &executor.Result{
				TxHash: common.HexToHash("0xdead"),
				Status: executor.StatusConfirmed,
			}, nil
		},
	}
}

func TestInitiateCreatesPending(t *testing.T) {
	store := newMemBridgeStore()
	caller := okCaller()
	submittedCalls := 0
	inner := caller.ExecuteCallsFunc
	caller.ExecuteCallsFunc = func(ctx context.Context, safe common.Address, chainID int64, calls []evm.SafeTx) (*executor.Result, error) {
		submittedCalls = len(calls)
		return inner(ctx, safe, chainID, calls)
	}

	coordinator := newTestCoordinator(store, caller, nil, t)

	tx, err := coordinator.Initiate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Status != StatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	// approve + depositV3
	if submittedCalls != 2 {
		t.Errorf("expected 2 calls in deposit batch, got %d", submittedCalls)
	}
	if tx.OutputAmount.Int64() != 998800 {
		t.Errorf("expected output amount 998800, got %s", tx.OutputAmount)
	}
	if tx.BridgeFee.Int64() != 1200 {
		t.Errorf("expected bridge fee 1200, got %s", tx.BridgeFee)
	}
}

func TestInitiateDeduplicates(t *testing.T) {
	store := newMemBridgeStore()
	deposits := 0
	caller := &mockCaller{
		ExecuteCallsFunc: func(context.Context, common.Address, int64, []evm.SafeTx) (*executor.Result, error) {
			deposits++
			return &executor.Result{TxHash: common.HexToHash("0xdead"), Status: executor.StatusConfirmed}, nil
		},
	}

	coordinator := newTestCoordinator(store, caller, nil, t)

	first, err := coordinator.Initiate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := coordinator.Initiate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deposits != 1 {
		t.Errorf("expected 1 deposit, got %d", deposits)
	}
	if first.ID != second.ID {
		t.Error("expected duplicate request to return the in-flight transaction")
	}
	if len(store.txs) != 1 {
		t.Errorf("expected 1 row, got %d", len(store.txs))
	}
}

func TestInitiateConfirmationTimeoutRecordsPending(t *testing.T) {
	store := newMemBridgeStore()
	deposits := 0
	submittedHash := common.HexToHash("0xabc1")
	caller := &mockCaller{
		ExecuteCallsFunc: func(context.Context, common.Address, int64, []evm.SafeTx) (*executor.Result, error) {
			deposits++
			return &executor.Result{TxHash: submittedHash, Status: executor.StatusTimeout},
				fmt.Errorf("%w: tx %s", executor.ErrConfirmationTimeout, submittedHash.Hex())
		},
	}

	coordinator := newTestCoordinator(store, caller, nil, t)

	// The deposit tx is on chain even though its confirmation timed out;
	// the transfer must be recorded, not reported as failed.
	tx, err := coordinator.Initiate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != StatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	if tx.DepositTxHash != submittedHash.Hex() {
		t.Errorf("expected submitted tx hash recorded, got %s", tx.DepositTxHash)
	}
	if tx.DepositID != nil {
		t.Error("expected no deposit id before the receipt is known")
	}
	if len(store.txs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(store.txs))
	}

	// A retry of the same request must return the recorded transaction
	// instead of submitting a second deposit.
	again, err := coordinator.Initiate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if again.ID != tx.ID {
		t.Error("expected retry to return the in-flight transaction")
	}
	if deposits != 1 {
		t.Errorf("expected 1 on-chain submission, got %d", deposits)
	}
}

func TestInitiateTimeoutWithoutSubmissionFails(t *testing.T) {
	store := newMemBridgeStore()
	caller := &mockCaller{
		ExecuteCallsFunc: func(context.Context, common.Address, int64, []evm.SafeTx) (*executor.Result, error) {
			return nil, executor.ErrConfirmationTimeout
		},
	}

	coordinator := newTestCoordinator(store, caller, nil, t)

	// Without a submitted tx hash there is nothing to track.
	if _, err := coordinator.Initiate(context.Background(), testRequest()); err == nil {
		t.Error("expected error when no transaction was submitted")
	}
	if len(store.txs) != 0 {
		t.Errorf("expected no rows, got %d", len(store.txs))
	}
}

func TestInitiateDifferentAmountNotDeduplicated(t *testing.T) {
	store := newMemBridgeStore()
	coordinator := newTestCoordinator(store, okCaller(), nil, t)

	if _, err := coordinator.Initiate(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := testRequest()
	req.Amount = big.NewInt(2000000)
	if _, err := coordinator.Initiate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.txs) != 2 {
		t.Errorf("expected 2 rows for distinct amounts, got %d", len(store.txs))
	}
}

func TestInitiateRejectsInvalidRoute(t *testing.T) {
	coordinator := newTestCoordinator(newMemBridgeStore(), okCaller(), nil, t)

	req := testRequest()
	req.DestChainID = req.SourceChainID
	if _, err := coordinator.Initiate(context.Background(), req); err == nil {
		t.Error("expected error for same-chain route")
	}
}

func TestPollFillRPCUnreachableLeavesPending(t *testing.T) {
	store := newMemBridgeStore()
	depositID := uint32(7)
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: "0xdead",
		DepositID:     &depositID,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	_ = store.Create(context.Background(), tx)

	watchers := map[int64]ChainWatcher{
		42161: &mockWatcher{
			LatestBlockNumberFunc: func(context.Context) (uint64, error) {
				return 0, errors.New("rpc unreachable")
			},
		},
	}

	coordinator := newTestCoordinator(store, okCaller(), watchers, t)

	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected status to remain pending, got %s", got.Status)
	}

	// Safe to call again.
	got, err = coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected status to remain pending, got %s", got.Status)
	}
}

func TestPollFillMarksFilled(t *testing.T) {
	store := newMemBridgeStore()
	depositID := uint32(42)
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: "0xdead",
		DepositID:     &depositID,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	_ = store.Create(context.Background(), tx)

	fillLog := makeFillLog(t, 8453, depositID)
	watchers := map[int64]ChainWatcher{
		42161: &mockWatcher{
			LatestBlockNumberFunc: func(context.Context) (uint64, error) { return 1000, nil },
			FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
				return []types.Log{fillLog}, nil
			},
		},
	}

	coordinator := newTestCoordinator(store, okCaller(), watchers, t)

	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFilled {
		t.Errorf("expected filled, got %s", got.Status)
	}
	if got.FillTxHash == nil {
		t.Error("expected fill tx hash to be recorded")
	}
}

func TestPollFillTerminalIsImmutable(t *testing.T) {
	store := newMemBridgeStore()
	filledAt := time.Now().UTC()
	fillHash := "0xf111"
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: "0xdead",
		Status:        StatusFilled,
		FillTxHash:    &fillHash,
		FilledAt:      &filledAt,
		CreatedAt:     time.Now().Add(-time.Hour).UTC(),
	}
	_ = store.Create(context.Background(), tx)

	// No watcher wired: PollFill must return before touching the chain.
	coordinator := newTestCoordinator(store, okCaller(), nil, t)

	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFilled {
		t.Errorf("terminal status mutated to %s", got.Status)
	}
}

func TestPollFillTimesOut(t *testing.T) {
	store := newMemBridgeStore()
	depositID := uint32(9)
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: "0xdead",
		DepositID:     &depositID,
		Status:        StatusPending,
		// Older than the 10 minute max fill wait.
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	_ = store.Create(context.Background(), tx)

	watchers := map[int64]ChainWatcher{
		42161: &mockWatcher{
			LatestBlockNumberFunc: func(context.Context) (uint64, error) { return 1000, nil },
			FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
				return nil, nil
			},
		},
	}

	coordinator := newTestCoordinator(store, okCaller(), watchers, t)

	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected failed after max wait, got %s", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Error("expected error message to be recorded")
	}
}

func TestPollFillRecoversDepositID(t *testing.T) {
	store := newMemBridgeStore()
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: common.HexToHash("0xabc1").Hex(),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	_ = store.Create(context.Background(), tx)

	depositID := uint32(77)
	receipt := &types.Receipt{Logs: []*types.Log{makeDepositLog(42161, depositID)}}
	fillLog := makeFillLog(t, 8453, depositID)

	watchers := map[int64]ChainWatcher{
		8453: &mockWatcher{
			TransactionReceiptFunc: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
				if txHash != common.HexToHash(tx.DepositTxHash) {
					return nil, ethereum.NotFound
				}
				return receipt, nil
			},
		},
		42161: &mockWatcher{
			LatestBlockNumberFunc: func(context.Context) (uint64, error) { return 1000, nil },
			FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
				return []types.Log{fillLog}, nil
			},
		},
	}

	coordinator := newTestCoordinator(store, okCaller(), watchers, t)

	// The row was recorded without a deposit id; the receipt re-check must
	// recover it and let the fill match.
	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFilled {
		t.Errorf("expected filled after deposit id recovery, got %s", got.Status)
	}

	stored, err := store.Get(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.DepositID == nil || *stored.DepositID != depositID {
		t.Error("expected recovered deposit id to be persisted")
	}
}

func TestPollFillReceiptUnavailableLeavesPending(t *testing.T) {
	store := newMemBridgeStore()
	tx := &Transaction{
		ID:            uuid.New(),
		OwnerAddress:  bridgeOwner.Hex(),
		SourceChainID: 8453,
		DestChainID:   42161,
		VaultAddress:  bridgeVault.Hex(),
		Amount:        big.NewInt(1000000),
		DepositTxHash: common.HexToHash("0xabc1").Hex(),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	_ = store.Create(context.Background(), tx)

	watchers := map[int64]ChainWatcher{
		8453: &mockWatcher{
			TransactionReceiptFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
				return nil, ethereum.NotFound
			},
		},
		42161: &mockWatcher{
			LatestBlockNumberFunc: func(context.Context) (uint64, error) { return 1000, nil },
			FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
				return nil, nil
			},
		},
	}

	coordinator := newTestCoordinator(store, okCaller(), watchers, t)

	got, err := coordinator.PollFill(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected status to remain pending, got %s", got.Status)
	}
	if got.DepositID != nil {
		t.Error("expected deposit id to remain unknown")
	}
}

// makeDepositLog builds a V3FundsDeposited log with the destination chain and
// deposit id in its indexed topics.
func makeDepositLog(destChainID int64, depositID uint32) *types.Log {
	return &types.Log{
		Topics: []common.Hash{
			evm.V3FundsDepositedTopic,
			common.BigToHash(big.NewInt(destChainID)),
			common.BigToHash(new(big.Int).SetUint64(uint64(depositID))),
			common.BytesToHash(bridgeOwner.Bytes()),
		},
	}
}

// makeFillLog builds a FilledV3Relay log with the given origin chain and
// deposit id in its indexed topics and a minimal valid data payload.
func makeFillLog(t *testing.T, originChainID int64, depositID uint32) types.Log {
	t.Helper()
	// Non-indexed fields: inputToken, outputToken, inputAmount, outputAmount,
	// repaymentChainId, fillDeadline, exclusivityDeadline, exclusiveRelayer,
	// depositor, recipient, message, relayExecutionInfo.
	data := make([]byte, 0)
	pad := func(b []byte) []byte { return common.LeftPadBytes(b, 32) }
	data = append(data, pad(common.HexToAddress("0x01").Bytes())...) // inputToken
	data = append(data, pad(common.HexToAddress("0x02").Bytes())...) // outputToken
	data = append(data, pad(big.NewInt(1000000).Bytes())...)         // inputAmount
	data = append(data, pad(big.NewInt(998800).Bytes())...)          // outputAmount
	data = append(data, pad(big.NewInt(8453).Bytes())...)            // repaymentChainId
	data = append(data, pad(big.NewInt(1700003600).Bytes())...)      // fillDeadline
	data = append(data, pad(big.NewInt(0).Bytes())...)               // exclusivityDeadline
	data = append(data, pad(common.Address{}.Bytes())...)            // exclusiveRelayer
	data = append(data, pad(bridgeOwner.Bytes())...)                 // depositor
	data = append(data, pad(bridgeVault.Bytes())...)                 // recipient
	// offset of message (dynamic): after 12 head slots = 384
	data = append(data, pad(big.NewInt(384).Bytes())...)
	// offset of relayExecutionInfo tuple (dynamic): after message (384 + 32 empty)
	data = append(data, pad(big.NewInt(416).Bytes())...)
	// message: length 0
	data = append(data, pad(big.NewInt(0).Bytes())...)
	// relayExecutionInfo tuple: updatedRecipient, offset updatedMessage,
	// updatedOutputAmount, fillType, then updatedMessage length 0
	data = append(data, pad(bridgeVault.Bytes())...)
	data = append(data, pad(big.NewInt(128).Bytes())...)
	data = append(data, pad(big.NewInt(998800).Bytes())...)
	data = append(data, pad(big.NewInt(0).Bytes())...)
	data = append(data, pad(big.NewInt(0).Bytes())...)

	return types.Log{
		Address: common.HexToAddress("0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A"),
		Topics: []common.Hash{
			evm.FilledV3RelayTopic,
			common.BigToHash(big.NewInt(originChainID)),
			common.BigToHash(new(big.Int).SetUint64(uint64(depositID))),
			common.BytesToHash(common.HexToAddress("0x99").Bytes()),
		},
		Data:        data,
		TxHash:      common.HexToHash("0xf111"),
		BlockNumber: 900,
	}
}
