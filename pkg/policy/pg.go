package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PolicyDao is a data access object that maps directly to the 'allocation_policies' table in PostgreSQL.
type PolicyDao struct {
	bun.BaseModel  `bun:"table:allocation_policies,alias:ap"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	PrimaryAddress string     `bun:"primary_address,notnull,type:varchar(42)"`
	TaxPct         int        `bun:"tax_pct,notnull"`
	LiquidityPct   int        `bun:"liquidity_pct,notnull"`
	YieldPct       int        `bun:"yield_pct,notnull"`
	Version        int        `bun:"version,notnull"`
	SupersededAt   *time.Time `bun:"superseded_at"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}

func toPolicyDao(p *Policy) *PolicyDao {
	return &PolicyDao{
		ID:             p.ID,
		PrimaryAddress: strings.ToLower(p.PrimaryAddress),
		TaxPct:         p.TaxPct,
		LiquidityPct:   p.LiquidityPct,
		YieldPct:       p.YieldPct,
		Version:        p.Version,
		SupersededAt:   p.SupersededAt,
		CreatedAt:      p.CreatedAt,
	}
}

func toPolicy(dao *PolicyDao) *Policy {
	return &Policy{
		ID:             dao.ID,
		PrimaryAddress: dao.PrimaryAddress,
		TaxPct:         dao.TaxPct,
		LiquidityPct:   dao.LiquidityPct,
		YieldPct:       dao.YieldPct,
		Version:        dao.Version,
		SupersededAt:   dao.SupersededAt,
		CreatedAt:      dao.CreatedAt,
	}
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the policy store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetActivePolicy(ctx context.Context, primaryAddress string) (*Policy, error) {
	dao := new(PolicyDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("primary_address = ?", strings.ToLower(primaryAddress)).
		Where("superseded_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get active policy: %w", err)
	}
	return toPolicy(dao), nil
}

func (s *pgStore) SetPolicy(ctx context.Context, policy *Policy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	addr := strings.ToLower(policy.PrimaryAddress)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Supersede the active version and take its version number.
		var current PolicyDao
		err := tx.NewSelect().
			Model(&current).
			Where("primary_address = ?", addr).
			Where("superseded_at IS NULL").
			For("UPDATE").
			Scan(ctx)
		switch {
		case err == nil:
			policy.Version = current.Version + 1
			_, err = tx.NewUpdate().
				Model((*PolicyDao)(nil)).
				Set("superseded_at = NOW()").
				Where("id = ?", current.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to supersede policy: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			policy.Version = 1
		default:
			return fmt.Errorf("failed to load active policy: %w", err)
		}

		policy.CreatedAt = time.Now().UTC()
		_, err = tx.NewInsert().
			Model(toPolicyDao(policy)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert policy: %w", err)
		}
		return nil
	})
}

func (s *pgStore) History(ctx context.Context, primaryAddress string) ([]*Policy, error) {
	var daos []PolicyDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("primary_address = ?", strings.ToLower(primaryAddress)).
		Order("version DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy history: %w", err)
	}

	out := make([]*Policy, len(daos))
	for i := range daos {
		out[i] = toPolicy(&daos[i])
	}
	return out, nil
}
