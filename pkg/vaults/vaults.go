// Package vaults maintains the registry of yield vaults the treasury may
// deposit into. The registry is read-only at runtime; rows are seeded by
// migrations or operator tooling.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ErrVaultNotFound is returned when a vault lookup finds no matching record.
var ErrVaultNotFound = errors.New("vault not found")

// RiskLevel buckets vaults by risk appetite.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Vault describes one yield vault on one chain.
type Vault struct {
	ID        uuid.UUID
	ChainID   int64
	Address   string
	Name      string
	Protocol  string
	Risk      RiskLevel
	APY       decimal.Decimal
	Active    bool
	Sandbox   bool
	CreatedAt time.Time
}

// Eligible reports whether the vault can receive treasury funds: it must be
// active and not a sandbox-only listing.
func (v *Vault) Eligible() bool {
	return v.Active && !v.Sandbox
}

// VaultDao is a data access object that maps directly to the 'vaults' table in PostgreSQL.
type VaultDao struct {
	bun.BaseModel `bun:"table:vaults,alias:v"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	ChainID       int64     `bun:"chain_id,notnull"`
	Address       string    `bun:"address,notnull,type:varchar(42)"`
	Name          string    `bun:"name,notnull,type:varchar(255)"`
	Protocol      string    `bun:"protocol,notnull,type:varchar(64)"`
	Risk          string    `bun:"risk,notnull,type:varchar(16)"`
	APY           string    `bun:"apy,nullzero,type:numeric(10,6)"`
	Active        bool      `bun:"active,notnull,default:true"`
	Sandbox       bool      `bun:"sandbox,notnull,default:false"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toVault(dao *VaultDao) *Vault {
	apy, err := decimal.NewFromString(dao.APY)
	if err != nil {
		apy = decimal.Zero
	}
	return &Vault{
		ID:        dao.ID,
		ChainID:   dao.ChainID,
		Address:   dao.Address,
		Name:      dao.Name,
		Protocol:  dao.Protocol,
		Risk:      RiskLevel(dao.Risk),
		APY:       apy,
		Active:    dao.Active,
		Sandbox:   dao.Sandbox,
		CreatedAt: dao.CreatedAt,
	}
}

// Registry reads vaults from PostgreSQL.
type Registry struct {
	db *bun.DB
}

// NewRegistry creates a vault registry over the given database.
func NewRegistry(db *bun.DB) *Registry {
	return &Registry{db: db}
}

// GetVault returns a vault by ID.
func (r *Registry) GetVault(ctx context.Context, id uuid.UUID) (*Vault, error) {
	dao := new(VaultDao)
	err := r.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}
	return toVault(dao), nil
}

// GetVaultByAddress returns the vault at the given address on a chain.
func (r *Registry) GetVaultByAddress(ctx context.Context, chainID int64, address string) (*Vault, error) {
	dao := new(VaultDao)
	err := r.db.NewSelect().
		Model(dao).
		Where("chain_id = ?", chainID).
		Where("LOWER(address) = ?", strings.ToLower(address)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("failed to get vault by address: %w", err)
	}
	return toVault(dao), nil
}

// ListEligible returns eligible vaults on a chain, highest APY first.
func (r *Registry) ListEligible(ctx context.Context, chainID int64) ([]*Vault, error) {
	var daos []VaultDao
	err := r.db.NewSelect().
		Model(&daos).
		Where("chain_id = ?", chainID).
		Where("active = TRUE").
		Where("sandbox = FALSE").
		Order("apy DESC NULLS LAST").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible vaults: %w", err)
	}

	out := make([]*Vault, len(daos))
	for i := range daos {
		out[i] = toVault(&daos[i])
	}
	return out, nil
}

// ListAll returns every vault, for operator inspection.
func (r *Registry) ListAll(ctx context.Context) ([]*Vault, error) {
	var daos []VaultDao
	err := r.db.NewSelect().
		Model(&daos).
		Order("chain_id ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}

	out := make([]*Vault, len(daos))
	for i := range daos {
		out[i] = toVault(&daos[i])
	}
	return out, nil
}
