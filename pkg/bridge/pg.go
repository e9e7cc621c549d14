package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransactionDao is a data access object that maps directly to the 'bridge_transactions' table in PostgreSQL.
type TransactionDao struct {
	bun.BaseModel     `bun:"table:bridge_transactions,alias:bt"`
	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	OwnerAddress      string     `bun:"owner_address,notnull,type:varchar(42)"`
	SourceChainID     int64      `bun:"source_chain_id,notnull"`
	DestChainID       int64      `bun:"dest_chain_id,notnull"`
	VaultAddress      string     `bun:"vault_address,notnull,type:varchar(42)"`
	Amount            string     `bun:"amount,notnull,type:numeric(38,0)"`
	OutputAmount      *string    `bun:"output_amount,type:numeric(38,0)"`
	BridgeFee         *string    `bun:"bridge_fee,type:numeric(38,0)"`
	LPFee             *string    `bun:"lp_fee,type:numeric(38,0)"`
	RelayerGasFee     *string    `bun:"relayer_gas_fee,type:numeric(38,0)"`
	RelayerCapitalFee *string    `bun:"relayer_capital_fee,type:numeric(38,0)"`
	DepositTxHash     string     `bun:"deposit_tx_hash,unique,notnull,type:varchar(66)"`
	FillTxHash        *string    `bun:"fill_tx_hash,type:varchar(66)"`
	DepositID         *int64     `bun:"deposit_id"`
	Status            string     `bun:"status,notnull,type:varchar(16)"`
	ErrorMessage      *string    `bun:"error_message,type:text"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	FilledAt          *time.Time `bun:"filled_at"`
	FailedAt          *time.Time `bun:"failed_at"`
}

func bigToString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func stringToBig(s *string) *big.Int {
	if s == nil {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}

func toTransactionDao(tx *Transaction) *TransactionDao {
	dao := &TransactionDao{
		ID:                tx.ID,
		OwnerAddress:      strings.ToLower(tx.OwnerAddress),
		SourceChainID:     tx.SourceChainID,
		DestChainID:       tx.DestChainID,
		VaultAddress:      strings.ToLower(tx.VaultAddress),
		Amount:            tx.Amount.String(),
		OutputAmount:      bigToString(tx.OutputAmount),
		BridgeFee:         bigToString(tx.BridgeFee),
		LPFee:             bigToString(tx.LPFee),
		RelayerGasFee:     bigToString(tx.RelayerGasFee),
		RelayerCapitalFee: bigToString(tx.RelayerCapitalFee),
		DepositTxHash:     tx.DepositTxHash,
		FillTxHash:        tx.FillTxHash,
		Status:            string(tx.Status),
		ErrorMessage:      tx.ErrorMessage,
		CreatedAt:         tx.CreatedAt,
		FilledAt:          tx.FilledAt,
		FailedAt:          tx.FailedAt,
	}
	if tx.DepositID != nil {
		id := int64(*tx.DepositID)
		dao.DepositID = &id
	}
	return dao
}

func toTransaction(dao *TransactionDao) *Transaction {
	amount, _ := new(big.Int).SetString(dao.Amount, 10)
	tx := &Transaction{
		ID:                dao.ID,
		OwnerAddress:      dao.OwnerAddress,
		SourceChainID:     dao.SourceChainID,
		DestChainID:       dao.DestChainID,
		VaultAddress:      dao.VaultAddress,
		Amount:            amount,
		OutputAmount:      stringToBig(dao.OutputAmount),
		BridgeFee:         stringToBig(dao.BridgeFee),
		LPFee:             stringToBig(dao.LPFee),
		RelayerGasFee:     stringToBig(dao.RelayerGasFee),
		RelayerCapitalFee: stringToBig(dao.RelayerCapitalFee),
		DepositTxHash:     dao.DepositTxHash,
		FillTxHash:        dao.FillTxHash,
		Status:            Status(dao.Status),
		ErrorMessage:      dao.ErrorMessage,
		CreatedAt:         dao.CreatedAt,
		FilledAt:          dao.FilledAt,
		FailedAt:          dao.FailedAt,
	}
	if dao.DepositID != nil {
		id := uint32(*dao.DepositID)
		tx.DepositID = &id
	}
	return tx
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the bridge transaction store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	dao := toTransactionDao(tx)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create bridge transaction: %w", err)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get bridge transaction: %w", err)
	}
	return toTransaction(dao), nil
}

func (s *pgStore) FindRecentPending(ctx context.Context, owner string, sourceChainID, destChainID int64, amount *big.Int, window time.Duration) (*Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("owner_address = ?", strings.ToLower(owner)).
		Where("source_chain_id = ?", sourceChainID).
		Where("dest_chain_id = ?", destChainID).
		Where("amount = ?", amount.String()).
		Where("status = ?", string(StatusPending)).
		Where("created_at > ?", time.Now().Add(-window)).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find pending bridge transaction: %w", err)
	}
	return toTransaction(dao), nil
}

func (s *pgStore) ListPending(ctx context.Context) ([]*Transaction, error) {
	var daos []TransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(StatusPending)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bridge transactions: %w", err)
	}

	out := make([]*Transaction, len(daos))
	for i := range daos {
		out[i] = toTransaction(&daos[i])
	}
	return out, nil
}

func (s *pgStore) SetDepositID(ctx context.Context, id uuid.UUID, depositID uint32) error {
	_, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("deposit_id = ?", int64(depositID)).
		Where("id = ?", id).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set deposit id: %w", err)
	}
	return nil
}

// MarkFilled guards monotonicity in the WHERE clause: only a pending row can
// transition, so a concurrent or repeated update cannot rewrite a terminal
// state.
func (s *pgStore) MarkFilled(ctx context.Context, id uuid.UUID, fillTxHash string, filledAt time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", string(StatusFilled)).
		Set("fill_tx_hash = ?", fillTxHash).
		Set("filled_at = ?", filledAt).
		Where("id = ?", id).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark bridge transaction filled: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTerminalState
	}
	return nil
}

func (s *pgStore) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, failedAt time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", string(StatusFailed)).
		Set("error_message = ?", errorMessage).
		Set("failed_at = ?", failedAt).
		Where("id = ?", id).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark bridge transaction failed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTerminalState
	}
	return nil
}
