package policy

import (
	"testing"

	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"all zero", Policy{}, false},
		{"typical split", Policy{TaxPct: 20, LiquidityPct: 30, YieldPct: 10}, false},
		{"sum exactly 100", Policy{TaxPct: 50, LiquidityPct: 30, YieldPct: 20}, false},
		{"sum over 100", Policy{TaxPct: 50, LiquidityPct: 40, YieldPct: 20}, true},
		{"negative percentage", Policy{TaxPct: -1}, true},
		{"single over 100", Policy{YieldPct: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && !apperrors.Is(err, apperrors.CategoryDataError) {
				t.Errorf("expected CategoryDataError, got %v", err)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	policy := Policy{TaxPct: 20, LiquidityPct: 30, YieldPct: 10}

	if got := policy.Percentage(safes.CategoryTax); got != 20 {
		t.Errorf("tax: expected 20, got %d", got)
	}
	if got := policy.Percentage(safes.CategoryLiquidity); got != 30 {
		t.Errorf("liquidity: expected 30, got %d", got)
	}
	if got := policy.Percentage(safes.CategoryYield); got != 10 {
		t.Errorf("yield: expected 10, got %d", got)
	}
	// Primary gets the remainder.
	if got := policy.Percentage(safes.CategoryPrimary); got != 40 {
		t.Errorf("primary: expected 40, got %d", got)
	}
}
