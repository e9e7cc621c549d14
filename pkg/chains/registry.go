// Package chains maintains the set of supported chains and the bridge
// routes between them.
package chains

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zero-finance/treasury-engine/pkg/config"
)

var (
	// ErrUnknownChain is returned when a chain ID is not in the registry
	ErrUnknownChain = errors.New("unknown chain")
	// ErrNoRoute is returned when no bridge route exists between two chains
	ErrNoRoute = errors.New("no bridge route between chains")
)

// Chain describes a supported chain and its settlement contracts.
type Chain struct {
	ID                 int64
	Name               string
	RPCURL             string
	USDCAddress        common.Address
	USDCDecimals       int
	ConfirmationBlocks uint64
	SpokePool          common.Address
	MulticallHandler   common.Address
	ExpectedFillTime   time.Duration
	MaxFillWait        time.Duration
}

// Route describes a bridgeable pair of chains.
type Route struct {
	Source      Chain
	Destination Chain
}

// Registry resolves chain IDs to chain descriptors and validates bridge routes.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	chains map[int64]Chain
}

// NewRegistry builds a registry from configuration. Every configured chain
// with a spoke pool is bridgeable to every other such chain.
func NewRegistry(cfgs []config.ChainConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}

	chains := make(map[int64]Chain, len(cfgs))
	for _, cfg := range cfgs {
		if _, exists := chains[cfg.ChainID]; exists {
			return nil, fmt.Errorf("duplicate chain id %d", cfg.ChainID)
		}
		if !common.IsHexAddress(cfg.USDCAddress) {
			return nil, fmt.Errorf("chain %d: invalid usdc address %q", cfg.ChainID, cfg.USDCAddress)
		}

		chain := Chain{
			ID:                 cfg.ChainID,
			Name:               cfg.Name,
			RPCURL:             cfg.RPCURL,
			USDCAddress:        common.HexToAddress(cfg.USDCAddress),
			USDCDecimals:       cfg.USDCDecimals,
			ConfirmationBlocks: cfg.ConfirmationBlocks,
			ExpectedFillTime:   cfg.ExpectedFillTime,
			MaxFillWait:        cfg.MaxFillWait,
		}
		if chain.USDCDecimals == 0 {
			chain.USDCDecimals = 6
		}
		if cfg.SpokePool != "" {
			if !common.IsHexAddress(cfg.SpokePool) {
				return nil, fmt.Errorf("chain %d: invalid spoke pool address %q", cfg.ChainID, cfg.SpokePool)
			}
			chain.SpokePool = common.HexToAddress(cfg.SpokePool)
		}
		if cfg.MulticallHandler != "" {
			if !common.IsHexAddress(cfg.MulticallHandler) {
				return nil, fmt.Errorf("chain %d: invalid multicall handler address %q", cfg.ChainID, cfg.MulticallHandler)
			}
			chain.MulticallHandler = common.HexToAddress(cfg.MulticallHandler)
		}
		chains[cfg.ChainID] = chain
	}

	return &Registry{chains: chains}, nil
}

// Resolve returns the chain descriptor for the given chain ID.
func (r *Registry) Resolve(chainID int64) (Chain, error) {
	chain, ok := r.chains[chainID]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return chain, nil
}

// Route validates that a bridge route exists between two chains and returns it.
// Same-chain routes are rejected; transfers within a chain do not bridge.
func (r *Registry) Route(sourceChainID, destChainID int64) (Route, error) {
	source, err := r.Resolve(sourceChainID)
	if err != nil {
		return Route{}, err
	}
	dest, err := r.Resolve(destChainID)
	if err != nil {
		return Route{}, err
	}
	if sourceChainID == destChainID {
		return Route{}, fmt.Errorf("%w: source and destination are both %d", ErrNoRoute, sourceChainID)
	}
	if source.SpokePool == (common.Address{}) {
		return Route{}, fmt.Errorf("%w: chain %d has no spoke pool", ErrNoRoute, sourceChainID)
	}
	if dest.SpokePool == (common.Address{}) {
		return Route{}, fmt.Errorf("%w: chain %d has no spoke pool", ErrNoRoute, destChainID)
	}
	return Route{Source: source, Destination: dest}, nil
}

// All returns all registered chains sorted by chain ID.
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
