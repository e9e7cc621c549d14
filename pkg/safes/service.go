package safes

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
	"github.com/zero-finance/treasury-engine/pkg/events"
	"github.com/zero-finance/treasury-engine/pkg/evm"
)

// ErrAddressMismatch is returned when a stored Safe record's address does not
// match the address the factory would deploy to. This indicates the factory,
// singleton or derivation inputs changed since the record was created.
var ErrAddressMismatch = errors.New("safe address mismatch")

// ChainClient is the subset of chain operations the deployer needs.
type ChainClient interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	ProxyCreationCode(ctx context.Context, factory common.Address) ([]byte, error)
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DeployerOptions configures the Safe contracts the deployer uses.
type DeployerOptions struct {
	Factory         common.Address
	Singleton       common.Address
	FallbackHandler common.Address
}

// Deployer deploys category Safes at deterministic addresses. Deployment is
// idempotent: re-running for an already deployed Safe is a no-op.
type Deployer struct {
	store   Store
	clients map[int64]ChainClient
	opts    DeployerOptions
	bus     *events.Bus
	logger  *zap.Logger

	mu            sync.Mutex
	creationCodes map[int64][]byte
}

// NewDeployer creates a Safe deployer over the given per-chain clients.
func NewDeployer(store Store, clients map[int64]ChainClient, opts DeployerOptions, bus *events.Bus, logger *zap.Logger) *Deployer {
	return &Deployer{
		store:         store,
		clients:       clients,
		opts:          opts,
		bus:           bus,
		logger:        logger,
		creationCodes: make(map[int64][]byte),
	}
}

func (d *Deployer) creationCode(ctx context.Context, chainID int64, client ChainClient) ([]byte, error) {
	d.mu.Lock()
	code, ok := d.creationCodes[chainID]
	d.mu.Unlock()
	if ok {
		return code, nil
	}

	code, err := client.ProxyCreationCode(ctx, d.opts.Factory)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy creation code: %w", err)
	}

	d.mu.Lock()
	d.creationCodes[chainID] = code
	d.mu.Unlock()
	return code, nil
}

// initializer builds the Safe setup call for a category Safe. The primary
// Safe is the sole owner of every category Safe.
func (d *Deployer) initializer(primary common.Address) ([]byte, error) {
	return evm.PackSafeSetup([]common.Address{primary}, big.NewInt(1), d.opts.FallbackHandler)
}

// PredictAddress computes the address a category Safe will deploy to on the
// given chain, without touching the store.
func (d *Deployer) PredictAddress(ctx context.Context, chainID int64, primary common.Address, category Category) (common.Address, error) {
	client, ok := d.clients[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no client for chain %d", chainID)
	}

	code, err := d.creationCode(ctx, chainID, client)
	if err != nil {
		return common.Address{}, err
	}
	init, err := d.initializer(primary)
	if err != nil {
		return common.Address{}, err
	}

	return evm.PredictProxyAddress(d.opts.Factory, d.opts.Singleton, code, init, SaltNonce(primary, category)), nil
}

// EnsureDeployed makes sure the category Safe for the given primary exists on
// the given chain, deploying it if needed. Returns the Safe record.
//
// If a stored record disagrees with the predicted address, ErrAddressMismatch
// is returned and nothing is deployed.
func (d *Deployer) EnsureDeployed(ctx context.Context, chainID int64, primary common.Address, category Category) (*Safe, error) {
	client, ok := d.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no client for chain %d", chainID)
	}

	predicted, err := d.PredictAddress(ctx, chainID, primary, category)
	if err != nil {
		return nil, err
	}

	safe, err := d.store.GetSafe(ctx,
		WithChainID(chainID),
		WithCategory(category),
		WithPrimaryAddress(primary.Hex()),
	)
	switch {
	case err == nil:
		if safe.Address != predicted {
			return nil, fmt.Errorf("%w: stored %s, predicted %s",
				ErrAddressMismatch, safe.Address.Hex(), predicted.Hex())
		}
		if safe.Status == DeploymentDeployed {
			return safe, nil
		}
	case errors.Is(err, ErrSafeNotFound):
		safe = &Safe{
			Category:       category,
			ChainID:        chainID,
			Address:        predicted,
			PrimaryAddress: primary,
			Status:         DeploymentPending,
			CreatedAt:      time.Now().UTC(),
		}
		if err := d.store.CreateSafe(ctx, safe); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	// Already deployed on chain by someone else, or a previous run that
	// died before the record was updated.
	code, err := client.CodeAt(ctx, predicted)
	if err != nil {
		return nil, fmt.Errorf("failed to check code at %s: %w", predicted.Hex(), err)
	}
	if len(code) > 0 {
		safe.Status = DeploymentDeployed
		if err := d.store.UpdateDeployment(ctx, safe); err != nil {
			return nil, err
		}
		return safe, nil
	}

	return d.deploy(ctx, client, safe, primary, category)
}

func (d *Deployer) deploy(ctx context.Context, client ChainClient, safe *Safe, primary common.Address, category Category) (*Safe, error) {
	init, err := d.initializer(primary)
	if err != nil {
		return nil, err
	}
	callData, err := evm.PackCreateProxyWithNonce(d.opts.Singleton, init, SaltNonce(primary, category))
	if err != nil {
		return nil, err
	}

	d.logger.Info("Deploying category safe",
		zap.Int64("chain_id", safe.ChainID),
		zap.String("category", string(category)),
		zap.String("address", safe.Address.Hex()))

	txHash, err := client.Submit(ctx, d.opts.Factory, callData, nil)
	if err != nil {
		safe.Status = DeploymentFailed
		_ = d.store.UpdateDeployment(ctx, safe)
		return nil, fmt.Errorf("failed to submit safe deployment: %w", err)
	}
	safe.DeployTxHash = &txHash

	receipt, err := client.WaitMined(ctx, txHash)
	if err != nil {
		// Submission succeeded but confirmation did not; leave pending so
		// the next run re-checks on-chain code.
		_ = d.store.UpdateDeployment(ctx, safe)
		return nil, fmt.Errorf("safe deployment not confirmed: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		safe.Status = DeploymentFailed
		_ = d.store.UpdateDeployment(ctx, safe)
		return nil, fmt.Errorf("safe deployment reverted: tx %s", txHash.Hex())
	}

	safe.Status = DeploymentDeployed
	if err := d.store.UpdateDeployment(ctx, safe); err != nil {
		return nil, err
	}

	metrics.SafeDeploymentsTotal.WithLabelValues(strconv.FormatInt(safe.ChainID, 10)).Inc()
	if d.bus != nil {
		d.bus.Publish(events.TypeSafeDeployed, map[string]string{
			"chain_id": strconv.FormatInt(safe.ChainID, 10),
			"category": string(category),
			"address":  safe.Address.Hex(),
		})
	}

	d.logger.Info("Category safe deployed",
		zap.Int64("chain_id", safe.ChainID),
		zap.String("category", string(category)),
		zap.String("address", safe.Address.Hex()),
		zap.String("tx_hash", txHash.Hex()))

	return safe, nil
}

// EnsureAll deploys all allocation category Safes for a primary on a chain.
func (d *Deployer) EnsureAll(ctx context.Context, chainID int64, primary common.Address) (map[Category]*Safe, error) {
	out := make(map[Category]*Safe, len(AllocationCategories))
	for _, category := range AllocationCategories {
		safe, err := d.EnsureDeployed(ctx, chainID, primary, category)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure %s safe: %w", category, err)
		}
		out[category] = safe
	}
	return out, nil
}
