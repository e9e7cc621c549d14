// Package oracle reads USDC balances for treasury Safes across chains. Reads
// fan out in parallel; a failure on one (chain, safe) pair never hides the
// results of the others.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/internal/metrics"
	"github.com/zero-finance/treasury-engine/pkg/chains"
)

// ChainReader is the subset of chain operations the oracle needs.
type ChainReader interface {
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Target identifies one balance to read.
type Target struct {
	ChainID int64
	Account common.Address
}

// Balance is the result of one balance read. Block anchors the read to the
// chain head observed just before it, so callers can judge staleness. Err is
// set when the read failed; Amount is nil in that case.
type Balance struct {
	Target Target
	Amount *big.Int
	Block  uint64
	ReadAt time.Time
	Err    error
}

// Oracle reads token balances across all registered chains.
type Oracle struct {
	registry *chains.Registry
	readers  map[int64]ChainReader
	logger   *zap.Logger
}

// New creates a balance oracle over the given per-chain readers.
func New(registry *chains.Registry, readers map[int64]ChainReader, logger *zap.Logger) *Oracle {
	return &Oracle{
		registry: registry,
		readers:  readers,
		logger:   logger,
	}
}

// ReadBalances reads the USDC balance of every target in parallel. The
// returned slice has one entry per target in the same order; entries whose
// read failed carry a non-nil Err.
func (o *Oracle) ReadBalances(ctx context.Context, targets []Target) []Balance {
	results := make([]Balance, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = o.readOne(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return results
}

func (o *Oracle) readOne(ctx context.Context, target Target) Balance {
	result := Balance{Target: target, ReadAt: time.Now().UTC()}

	chain, err := o.registry.Resolve(target.ChainID)
	if err != nil {
		result.Err = err
		return result
	}

	reader, ok := o.readers[target.ChainID]
	if !ok {
		result.Err = fmt.Errorf("no reader for chain %d", target.ChainID)
		return result
	}

	block, err := reader.LatestBlockNumber(ctx)
	if err != nil {
		metrics.OracleReadErrors.WithLabelValues(strconv.FormatInt(target.ChainID, 10)).Inc()
		o.logger.Warn("Block number read failed",
			zap.Int64("chain_id", target.ChainID),
			zap.Error(err))
		result.Err = fmt.Errorf("block number read failed on chain %d: %w", target.ChainID, err)
		return result
	}

	amount, err := reader.TokenBalance(ctx, chain.USDCAddress, target.Account)
	if err != nil {
		metrics.OracleReadErrors.WithLabelValues(strconv.FormatInt(target.ChainID, 10)).Inc()
		o.logger.Warn("Balance read failed",
			zap.Int64("chain_id", target.ChainID),
			zap.String("account", target.Account.Hex()),
			zap.Error(err))
		result.Err = fmt.Errorf("balance read failed on chain %d: %w", target.ChainID, err)
		return result
	}

	result.Amount = amount
	result.Block = block
	return result
}

// ReadBalance reads a single balance.
func (o *Oracle) ReadBalance(ctx context.Context, target Target) (*big.Int, error) {
	result := o.readOne(ctx, target)
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Amount, nil
}
