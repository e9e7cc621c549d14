// Package safes manages the treasury's Safe accounts: one primary Safe per
// chain plus category Safes (tax, liquidity, yield) deployed at deterministic
// addresses derived from the primary.
package safes

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Category identifies the role of a Safe in the treasury.
type Category string

const (
	CategoryPrimary   Category = "primary"
	CategoryTax       Category = "tax"
	CategoryLiquidity Category = "liquidity"
	CategoryYield     Category = "yield"
)

// AllocationCategories lists the non-primary categories in the order
// allocation transfers are planned.
var AllocationCategories = []Category{CategoryTax, CategoryLiquidity, CategoryYield}

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrimary, CategoryTax, CategoryLiquidity, CategoryYield:
		return true
	}
	return false
}

// DeploymentStatus tracks a Safe's deployment lifecycle.
type DeploymentStatus string

const (
	DeploymentPending  DeploymentStatus = "pending"
	DeploymentDeployed DeploymentStatus = "deployed"
	DeploymentFailed   DeploymentStatus = "failed"
)

// Safe is one treasury Safe account on one chain.
type Safe struct {
	ID             uuid.UUID
	Category       Category
	ChainID        int64
	Address        common.Address
	PrimaryAddress common.Address
	Status         DeploymentStatus
	DeployTxHash   *common.Hash
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
