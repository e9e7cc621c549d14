package safes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SafeDao is a data access object that maps directly to the 'safes' table in PostgreSQL.
type SafeDao struct {
	bun.BaseModel  `bun:"table:safes,alias:s"`
	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	Category       string    `bun:"category,notnull,type:varchar(16)"`
	ChainID        int64     `bun:"chain_id,notnull"`
	Address        string    `bun:"address,notnull,type:varchar(42)"`
	PrimaryAddress string    `bun:"primary_address,notnull,type:varchar(42)"`
	Status         string    `bun:"status,notnull,type:varchar(16)"`
	DeployTxHash   *string   `bun:"deploy_tx_hash,type:varchar(66)"`
	CreatedAt      time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toSafeDao(s *Safe) *SafeDao {
	dao := &SafeDao{
		ID:             s.ID,
		Category:       string(s.Category),
		ChainID:        s.ChainID,
		Address:        strings.ToLower(s.Address.Hex()),
		PrimaryAddress: strings.ToLower(s.PrimaryAddress.Hex()),
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.DeployTxHash != nil {
		hash := s.DeployTxHash.Hex()
		dao.DeployTxHash = &hash
	}
	return dao
}

func toSafe(dao *SafeDao) *Safe {
	s := &Safe{
		ID:             dao.ID,
		Category:       Category(dao.Category),
		ChainID:        dao.ChainID,
		Address:        common.HexToAddress(dao.Address),
		PrimaryAddress: common.HexToAddress(dao.PrimaryAddress),
		Status:         DeploymentStatus(dao.Status),
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
	if dao.DeployTxHash != nil {
		hash := common.HexToHash(*dao.DeployTxHash)
		s.DeployTxHash = &hash
	}
	return s
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the Safe store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateSafe(ctx context.Context, safe *Safe) error {
	if safe.ID == uuid.Nil {
		safe.ID = uuid.New()
	}
	dao := toSafeDao(safe)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create safe: %w", err)
	}
	return nil
}

func applyFilters(query *bun.SelectQuery, options *QueryOptions) *bun.SelectQuery {
	if options.ID != nil {
		query = query.Where("id = ?", *options.ID)
	}
	if options.ChainID != nil {
		query = query.Where("chain_id = ?", *options.ChainID)
	}
	if options.Category != nil {
		query = query.Where("category = ?", string(*options.Category))
	}
	if options.PrimaryAddress != nil {
		query = query.Where("primary_address = ?", strings.ToLower(*options.PrimaryAddress))
	}
	if options.Address != nil {
		query = query.Where("address = ?", strings.ToLower(*options.Address))
	}
	return query
}

func (s *pgStore) GetSafe(ctx context.Context, opts ...QueryOption) (*Safe, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	dao := new(SafeDao)
	query := applyFilters(s.db.NewSelect().Model(dao), options)

	err := query.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSafeNotFound
		}
		return nil, fmt.Errorf("failed to get safe: %w", err)
	}
	return toSafe(dao), nil
}

func (s *pgStore) ListSafes(ctx context.Context, opts ...QueryOption) ([]*Safe, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var daos []SafeDao
	query := applyFilters(s.db.NewSelect().Model(&daos), options)

	err := query.Order("chain_id ASC", "category ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list safes: %w", err)
	}

	out := make([]*Safe, len(daos))
	for i := range daos {
		out[i] = toSafe(&daos[i])
	}
	return out, nil
}

func (s *pgStore) UpdateDeployment(ctx context.Context, safe *Safe) error {
	dao := toSafeDao(safe)

	_, err := s.db.NewUpdate().
		Model(dao).
		Column("status", "deploy_tx_hash").
		Set("updated_at = NOW()").
		Where("id = ?", dao.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update safe deployment: %w", err)
	}
	return nil
}
