// Package policy stores per-treasury allocation policies. A policy splits
// incoming funds between the tax, liquidity and yield Safes by integer
// percentage; the remainder stays in the primary Safe.
package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

// Policy is one version of a treasury's allocation split. Policies are never
// mutated in place: an update supersedes the active version and inserts a new
// one, so the full history stays queryable.
type Policy struct {
	ID             uuid.UUID
	PrimaryAddress string
	TaxPct         int
	LiquidityPct   int
	YieldPct       int
	Version        int
	SupersededAt   *time.Time
	CreatedAt      time.Time
}

// Percentage returns the allocation percentage for a category. The primary
// category gets whatever the others leave.
func (p *Policy) Percentage(category safes.Category) int {
	switch category {
	case safes.CategoryTax:
		return p.TaxPct
	case safes.CategoryLiquidity:
		return p.LiquidityPct
	case safes.CategoryYield:
		return p.YieldPct
	case safes.CategoryPrimary:
		return 100 - p.TaxPct - p.LiquidityPct - p.YieldPct
	}
	return 0
}

// Validate checks the policy invariants: each percentage in [0, 100] and the
// sum at most 100.
func (p *Policy) Validate() error {
	for _, pct := range []struct {
		name  string
		value int
	}{
		{"tax", p.TaxPct},
		{"liquidity", p.LiquidityPct},
		{"yield", p.YieldPct},
	} {
		if pct.value < 0 || pct.value > 100 {
			return apperrors.BadRequestError(nil,
				fmt.Sprintf("%s percentage must be between 0 and 100, got %d", pct.name, pct.value))
		}
	}

	sum := p.TaxPct + p.LiquidityPct + p.YieldPct
	if sum > 100 {
		return apperrors.BadRequestError(nil,
			fmt.Sprintf("allocation percentages sum to %d, must not exceed 100", sum))
	}
	return nil
}
