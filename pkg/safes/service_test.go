package safes

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockChainClient struct {
	CodeAtFunc            func(ctx context.Context, account common.Address) ([]byte, error)
	ProxyCreationCodeFunc func(ctx context.Context, factory common.Address) ([]byte, error)
	SubmitFunc            func(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	WaitMinedFunc         func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func (m *mockChainClient) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return m.CodeAtFunc(ctx, account)
}

func (m *mockChainClient) ProxyCreationCode(ctx context.Context, factory common.Address) ([]byte, error) {
	return m.ProxyCreationCodeFunc(ctx, factory)
}

func (m *mockChainClient) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	return m.SubmitFunc(ctx, to, data, value)
}

func (m *mockChainClient) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return m.WaitMinedFunc(ctx, txHash)
}

type memStore struct {
	safes []*Safe
}

func (s *memStore) CreateSafe(_ context.Context, safe *Safe) error {
	if safe.ID == uuid.Nil {
		safe.ID = uuid.New()
	}
	s.safes = append(s.safes, safe)
	return nil
}

func (s *memStore) GetSafe(_ context.Context, opts ...QueryOption) (*Safe, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	for _, safe := range s.safes {
		if options.ChainID != nil && safe.ChainID != *options.ChainID {
			continue
		}
		if options.Category != nil && safe.Category != *options.Category {
			continue
		}
		if options.PrimaryAddress != nil && safe.PrimaryAddress != common.HexToAddress(*options.PrimaryAddress) {
			continue
		}
		return safe, nil
	}
	return nil, ErrSafeNotFound
}

func (s *memStore) ListSafes(_ context.Context, _ ...QueryOption) ([]*Safe, error) {
	return s.safes, nil
}

func (s *memStore) UpdateDeployment(_ context.Context, safe *Safe) error {
	for i, existing := range s.safes {
		if existing.ID == safe.ID {
			s.safes[i] = safe
			return nil
		}
	}
	return ErrSafeNotFound
}

var testOpts = DeployerOptions{
	Factory:   common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"),
	Singleton: common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762"),
}

var testPrimary = common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")

func TestEnsureDeployedDeploys(t *testing.T) {
	submitted := false
	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
		CodeAtFunc: func(context.Context, common.Address) ([]byte, error) {
			return nil, nil
		},
		SubmitFunc: func(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
			submitted = true
			return common.HexToHash("0x01"), nil
		},
		WaitMinedFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
		},
	}

	store := &memStore{}
	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	safe, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryTax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !submitted {
		t.Error("expected deployment transaction to be submitted")
	}
	if safe.Status != DeploymentDeployed {
		t.Errorf("expected status deployed, got %s", safe.Status)
	}
	if safe.Address == (common.Address{}) {
		t.Error("expected predicted address to be set")
	}
}

func TestEnsureDeployedIdempotent(t *testing.T) {
	submits := 0
	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
		CodeAtFunc: func(context.Context, common.Address) ([]byte, error) {
			return nil, nil
		},
		SubmitFunc: func(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
			submits++
			return common.HexToHash("0x01"), nil
		},
		WaitMinedFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
		},
	}

	store := &memStore{}
	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	first, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryTax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryTax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if submits != 1 {
		t.Errorf("expected 1 submission, got %d", submits)
	}
	if first.Address != second.Address {
		t.Error("expected same address on repeat call")
	}
}

func TestEnsureDeployedAdoptsExistingCode(t *testing.T) {
	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
		CodeAtFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0xfe}, nil
		},
		SubmitFunc: func(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
			t.Fatal("must not submit when code already exists")
			return common.Hash{}, nil
		},
		WaitMinedFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
			return nil, nil
		},
	}

	store := &memStore{}
	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	safe, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryYield)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if safe.Status != DeploymentDeployed {
		t.Errorf("expected status deployed, got %s", safe.Status)
	}
}

func TestEnsureDeployedAddressMismatch(t *testing.T) {
	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
	}

	store := &memStore{}
	// Seed a record with a different address than the prediction will yield.
	_ = store.CreateSafe(context.Background(), &Safe{
		Category:       CategoryTax,
		ChainID:        8453,
		Address:        common.HexToAddress("0x9999999999999999999999999999999999999999"),
		PrimaryAddress: testPrimary,
		Status:         DeploymentDeployed,
	})

	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	_, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryTax)
	if !errors.Is(err, ErrAddressMismatch) {
		t.Errorf("expected ErrAddressMismatch, got %v", err)
	}
}

func TestEnsureDeployedRevertMarksFailed(t *testing.T) {
	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
		CodeAtFunc: func(context.Context, common.Address) ([]byte, error) {
			return nil, nil
		},
		SubmitFunc: func(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
			return common.HexToHash("0x02"), nil
		},
		WaitMinedFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusFailed}, nil
		},
	}

	store := &memStore{}
	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	_, err := deployer.EnsureDeployed(context.Background(), 8453, testPrimary, CategoryLiquidity)
	if err == nil {
		t.Fatal("expected error for reverted deployment")
	}

	safe, err := store.GetSafe(context.Background(), WithChainID(8453), WithCategory(CategoryLiquidity))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if safe.Status != DeploymentFailed {
		t.Errorf("expected status failed, got %s", safe.Status)
	}
}
