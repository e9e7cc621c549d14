package allocation

import (
	"math/big"
	"math/rand"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zero-finance/treasury-engine/pkg/policy"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

var (
	primaryAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	taxAddr       = common.HexToAddress("0x2000000000000000000000000000000000000002")
	liquidityAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	yieldAddr     = common.HexToAddress("0x4000000000000000000000000000000000000004")
	usdcAddr      = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

func testInput(p *policy.Policy, primary int64, balances map[safes.Category]int64) Input {
	categories := map[safes.Category]CategoryState{
		safes.CategoryTax:       {Address: taxAddr, Balance: big.NewInt(balances[safes.CategoryTax])},
		safes.CategoryLiquidity: {Address: liquidityAddr, Balance: big.NewInt(balances[safes.CategoryLiquidity])},
		safes.CategoryYield:     {Address: yieldAddr, Balance: big.NewInt(balances[safes.CategoryYield])},
	}
	return Input{
		ChainID:        8453,
		Asset:          usdcAddr,
		Policy:         p,
		PrimaryAddress: primaryAddr,
		PrimaryBalance: big.NewInt(primary),
		Categories:     categories,
		DustThreshold:  big.NewInt(1),
	}
}

func TestBuildFullSplit(t *testing.T) {
	// tax 30%, yield 70%, empty category safes
	p := &policy.Policy{TaxPct: 30, YieldPct: 70}
	plan, err := Build(testInput(p, 1000, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(plan.Instructions))
	}
	if plan.Instructions[0].Category != safes.CategoryTax || plan.Instructions[0].Amount.Int64() != 300 {
		t.Errorf("unexpected tax instruction %+v", plan.Instructions[0])
	}
	if plan.Instructions[1].Category != safes.CategoryYield || plan.Instructions[1].Amount.Int64() != 700 {
		t.Errorf("unexpected yield instruction %+v", plan.Instructions[1])
	}
	for _, inst := range plan.Instructions {
		if inst.Source != primaryAddr {
			t.Errorf("instruction source must be the primary safe, got %s", inst.Source.Hex())
		}
	}
}

func TestBuildSkipsSatisfiedCategory(t *testing.T) {
	// tax already holds its target; only yield needs funding
	p := &policy.Policy{TaxPct: 30, YieldPct: 70}
	plan, err := Build(testInput(p, 1000, map[safes.Category]int64{safes.CategoryTax: 300}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(plan.Instructions))
	}
	if plan.Instructions[0].Category != safes.CategoryYield || plan.Instructions[0].Amount.Int64() != 700 {
		t.Errorf("unexpected instruction %+v", plan.Instructions[0])
	}
}

func TestBuildRoundsDown(t *testing.T) {
	p := &policy.Policy{TaxPct: 50}

	plan, err := Build(testInput(p, 10, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Instructions) != 1 || plan.Instructions[0].Amount.Int64() != 5 {
		t.Fatalf("expected single instruction of 5, got %+v", plan.Instructions)
	}

	// Balance of 1 floors the target to 0; nothing to do.
	plan, err = Build(testInput(p, 1, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan.Instructions)
	}
}

func TestBuildSkipsDust(t *testing.T) {
	p := &policy.Policy{TaxPct: 50}
	in := testInput(p, 10, nil)
	in.DustThreshold = big.NewInt(100)

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected drift below dust threshold to be skipped, got %+v", plan.Instructions)
	}
}

func TestBuildNeverClawsBack(t *testing.T) {
	// tax holds far more than its target; no instruction may move it out
	p := &policy.Policy{TaxPct: 10, YieldPct: 20}
	plan, err := Build(testInput(p, 1000, map[safes.Category]int64{safes.CategoryTax: 900}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, inst := range plan.Instructions {
		if inst.Category == safes.CategoryTax {
			t.Errorf("over-allocated category must be left alone, got %+v", inst)
		}
		if inst.Source != primaryAddr {
			t.Errorf("instructions must only move funds out of the primary safe")
		}
	}
}

func TestBuildExactSplitHasNoShortfall(t *testing.T) {
	// Targets that sum to exactly the primary balance fit without shortfall.
	p := &policy.Policy{TaxPct: 50, YieldPct: 50}
	plan, err := Build(testInput(p, 100, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Instructions) != 2 || len(plan.Shortfalls) != 0 {
		t.Fatalf("expected clean split, got %+v / %+v", plan.Instructions, plan.Shortfalls)
	}
}

func TestBuildSurfacesShortfall(t *testing.T) {
	// The overdraft guard must hold even against a corrupt policy whose
	// percentages sum over 100: the underfunded line is reported, not
	// clamped, and the plan never spends more than the primary holds.
	p := &policy.Policy{TaxPct: 80, YieldPct: 80}
	plan, err := Build(testInput(p, 100, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Instructions) != 1 || plan.Instructions[0].Category != safes.CategoryTax {
		t.Fatalf("expected only the tax instruction, got %+v", plan.Instructions)
	}
	if plan.Instructions[0].Amount.Int64() != 80 {
		t.Errorf("expected tax amount 80, got %s", plan.Instructions[0].Amount)
	}

	if len(plan.Shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall, got %+v", plan.Shortfalls)
	}
	short := plan.Shortfalls[0]
	if short.Category != safes.CategoryYield {
		t.Errorf("expected yield shortfall, got %s", short.Category)
	}
	if short.Needed.Int64() != 80 || short.Have.Int64() != 20 {
		t.Errorf("expected needed 80 have 20, got needed %s have %s", short.Needed, short.Have)
	}
}

func TestBuildDeterministic(t *testing.T) {
	p := &policy.Policy{TaxPct: 20, LiquidityPct: 30, YieldPct: 25}
	in := testInput(p, 987654, map[safes.Category]int64{
		safes.CategoryTax:   1000,
		safes.CategoryYield: 50000,
	})

	first, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("builder output is not deterministic")
	}
}

func TestBuildConvergence(t *testing.T) {
	p := &policy.Policy{TaxPct: 20, LiquidityPct: 30, YieldPct: 25}
	in := testInput(p, 100000, nil)

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Apply the plan to the snapshot and rebuild: the remaining instruction
	// set must shrink to nothing, never oscillate.
	for _, inst := range plan.Instructions {
		state := in.Categories[inst.Category]
		state.Balance = new(big.Int).Add(state.Balance, inst.Amount)
		in.Categories[inst.Category] = state
		in.PrimaryBalance = new(big.Int).Sub(in.PrimaryBalance, inst.Amount)
	}

	next, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(next.Instructions) >= len(plan.Instructions) && len(plan.Instructions) > 0 {
		t.Errorf("expected strictly fewer instructions after applying plan, got %d then %d",
			len(plan.Instructions), len(next.Instructions))
	}
}

func TestBuildNoOverdraftProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		taxPct := rng.Intn(101)
		liqPct := rng.Intn(101 - taxPct)
		yieldPct := rng.Intn(101 - taxPct - liqPct)
		p := &policy.Policy{TaxPct: taxPct, LiquidityPct: liqPct, YieldPct: yieldPct}
		if err := p.Validate(); err != nil {
			t.Fatalf("generated invalid policy: %v", err)
		}

		in := testInput(p, rng.Int63n(1_000_000_000), map[safes.Category]int64{
			safes.CategoryTax:       rng.Int63n(1_000_000),
			safes.CategoryLiquidity: rng.Int63n(1_000_000),
			safes.CategoryYield:     rng.Int63n(1_000_000),
		})
		in.DustThreshold = big.NewInt(rng.Int63n(10000))

		plan, err := Build(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		spent := big.NewInt(0)
		for _, inst := range plan.Instructions {
			if inst.Amount.Sign() <= 0 {
				t.Fatalf("non-positive instruction amount %s", inst.Amount)
			}
			if inst.Source == inst.Destination {
				t.Fatal("source and destination must differ")
			}
			spent.Add(spent, inst.Amount)
		}
		if spent.Cmp(in.PrimaryBalance) > 0 {
			t.Fatalf("plan overdrafts primary: spends %s of %s", spent, in.PrimaryBalance)
		}
	}
}
