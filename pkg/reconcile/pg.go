package reconcile

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

// RunDao is a data access object that maps directly to the 'reconciliation_runs' table in PostgreSQL.
type RunDao struct {
	bun.BaseModel    `bun:"table:reconciliation_runs,alias:rr"`
	ID               uuid.UUID  `bun:"id,pk,type:uuid"`
	SafeID           uuid.UUID  `bun:"safe_id,notnull,type:uuid"`
	PrimaryAddress   string     `bun:"primary_address,notnull,type:varchar(42)"`
	ChainID          int64      `bun:"chain_id,notnull"`
	Trigger          string     `bun:"trigger,notnull,type:varchar(16)"`
	State            string     `bun:"state,notnull,type:varchar(16)"`
	PlannedTransfers int        `bun:"planned_transfers,notnull,default:0"`
	Shortfalls       int        `bun:"shortfalls,notnull,default:0"`
	TxHash           *string    `bun:"tx_hash,type:varchar(66)"`
	ErrorMessage     *string    `bun:"error_message,type:text"`
	StartedAt        time.Time  `bun:"started_at,nullzero,default:current_timestamp"`
	FinishedAt       *time.Time `bun:"finished_at"`
}

func toRunDao(run *Run) *RunDao {
	return &RunDao{
		ID:               run.ID,
		SafeID:           run.SafeID,
		PrimaryAddress:   strings.ToLower(run.PrimaryAddress),
		ChainID:          run.ChainID,
		Trigger:          string(run.Trigger),
		State:            string(run.State),
		PlannedTransfers: run.PlannedTransfers,
		Shortfalls:       run.Shortfalls,
		TxHash:           run.TxHash,
		ErrorMessage:     run.ErrorMessage,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
	}
}

func toRun(dao *RunDao) *Run {
	return &Run{
		ID:               dao.ID,
		SafeID:           dao.SafeID,
		PrimaryAddress:   dao.PrimaryAddress,
		ChainID:          dao.ChainID,
		Trigger:          Trigger(dao.Trigger),
		State:            State(dao.State),
		PlannedTransfers: dao.PlannedTransfers,
		Shortfalls:       dao.Shortfalls,
		TxHash:           dao.TxHash,
		ErrorMessage:     dao.ErrorMessage,
		StartedAt:        dao.StartedAt,
		FinishedAt:       dao.FinishedAt,
	}
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the run store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	dao := toRunDao(run)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation run: %w", err)
	}
	return nil
}

func (s *pgStore) UpdateRun(ctx context.Context, run *Run) error {
	dao := toRunDao(run)

	_, err := s.db.NewUpdate().
		Model(dao).
		Column("state", "planned_transfers", "shortfalls", "tx_hash", "error_message", "finished_at").
		Where("id = ?", dao.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation run: %w", err)
	}
	return nil
}

func (s *pgStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	dao := new(RunDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}
	return toRun(dao), nil
}

func (s *pgStore) ListRuns(ctx context.Context, safeID uuid.UUID, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var daos []RunDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("safe_id = ?", safeID).
		Order("started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation runs: %w", err)
	}

	out := make([]*Run, len(daos))
	for i := range daos {
		out[i] = toRun(&daos[i])
	}
	return out, nil
}
