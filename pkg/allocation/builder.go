// Package allocation computes the transfer instructions needed to converge
// on-chain balances toward an allocation policy. The builder is pure: given
// the same policy and balance snapshot it always produces the same plan.
package allocation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zero-finance/treasury-engine/pkg/policy"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

// Instruction is one intended value transfer within a chain.
type Instruction struct {
	Category    safes.Category
	Source      common.Address
	Destination common.Address
	Asset       common.Address
	Amount      *big.Int
	ChainID     int64
}

// Shortfall reports a category whose instruction could not be built because
// the primary Safe lacks the balance to fund it.
type Shortfall struct {
	Category safes.Category
	Needed   *big.Int
	Have     *big.Int
}

// Plan is the builder's output: the instructions to execute plus any
// categories that could not be funded.
type Plan struct {
	Instructions []Instruction
	Shortfalls   []Shortfall
}

// Empty reports whether the plan requires no on-chain writes.
func (p *Plan) Empty() bool {
	return len(p.Instructions) == 0
}

// CategoryState is one category Safe's address and current balance.
type CategoryState struct {
	Address common.Address
	Balance *big.Int
}

// Input is a snapshot of everything the builder needs for one chain.
type Input struct {
	ChainID        int64
	Asset          common.Address
	Policy         *policy.Policy
	PrimaryAddress common.Address
	PrimaryBalance *big.Int
	Categories     map[safes.Category]CategoryState
	DustThreshold  *big.Int
}

// Build computes the transfer plan for one chain. Categories are processed in
// a fixed order (tax, liquidity, yield) so the output is deterministic.
//
// Sweeps only push funds forward: a category holding more than its target is
// left alone. Claw-backs happen only through explicit operator withdrawals.
func Build(in Input) (*Plan, error) {
	if in.Policy == nil {
		return nil, fmt.Errorf("nil policy")
	}
	if in.PrimaryBalance == nil || in.PrimaryBalance.Sign() < 0 {
		return nil, fmt.Errorf("invalid primary balance")
	}
	dust := in.DustThreshold
	if dust == nil {
		dust = big.NewInt(0)
	}

	plan := &Plan{}

	// total liquid value the policy applies to
	total := new(big.Int).Set(in.PrimaryBalance)
	// funds still available in the primary as instructions accumulate
	available := new(big.Int).Set(in.PrimaryBalance)

	for _, category := range safes.AllocationCategories {
		pct := in.Policy.Percentage(category)
		if pct <= 0 {
			continue
		}

		state, ok := in.Categories[category]
		if !ok {
			return nil, fmt.Errorf("no safe known for category %s", category)
		}
		current := state.Balance
		if current == nil {
			current = big.NewInt(0)
		}

		// target = floor(total * pct / 100)
		target := new(big.Int).Mul(total, big.NewInt(int64(pct)))
		target.Div(target, big.NewInt(100))

		diff := new(big.Int).Sub(target, current)
		if diff.Sign() <= 0 {
			// At or above target; forward-only sweeps never claw back.
			continue
		}
		if diff.Cmp(dust) < 0 {
			continue
		}

		if diff.Cmp(available) > 0 {
			plan.Shortfalls = append(plan.Shortfalls, Shortfall{
				Category: category,
				Needed:   diff,
				Have:     new(big.Int).Set(available),
			})
			continue
		}

		plan.Instructions = append(plan.Instructions, Instruction{
			Category:    category,
			Source:      in.PrimaryAddress,
			Destination: state.Address,
			Asset:       in.Asset,
			Amount:      diff,
			ChainID:     in.ChainID,
		})
		available.Sub(available, diff)
	}

	return plan, nil
}
