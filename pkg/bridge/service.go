package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	apphttp "github.com/zero-finance/treasury-engine/pkg/app/http"
	"github.com/zero-finance/treasury-engine/pkg/vaults"
)

// VaultChecker validates bridge destinations against the vault registry.
type VaultChecker interface {
	GetVaultByAddress(ctx context.Context, chainID int64, address string) (*vaults.Vault, error)
}

// HTTP exposes bridge endpoints over chi
type HTTP struct {
	coordinator *Coordinator
	vaults      VaultChecker
	logger      *zap.Logger
}

// RegisterRoutes registers bridge endpoints on the given chi router. A nil
// vault checker disables destination vetting.
func RegisterRoutes(r chi.Router, coordinator *Coordinator, vaultChecker VaultChecker, logger *zap.Logger) {
	h := &HTTP{
		coordinator: coordinator,
		vaults:      vaultChecker,
		logger:      logger,
	}

	r.Post("/bridge", apphttp.HandleError(h.initiate))
	r.Get("/bridge/{bridgeTxID}", apphttp.HandleError(h.getStatus))
}

// InitiateBridgeRequest is the POST /bridge payload.
type InitiateBridgeRequest struct {
	Owner         string `json:"owner"`
	SourceChainID int64  `json:"sourceChainId"`
	DestChainID   int64  `json:"destChainId"`
	VaultAddress  string `json:"vaultAddress"`
	Amount        string `json:"amount"`
}

// TransactionResponse is the JSON shape of one bridge transaction.
type TransactionResponse struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	SourceChainID int64      `json:"sourceChainId"`
	DestChainID   int64      `json:"destChainId"`
	VaultAddress  string     `json:"vaultAddress"`
	Amount        string     `json:"amount"`
	OutputAmount  string     `json:"outputAmount,omitempty"`
	BridgeFee     string     `json:"bridgeFee,omitempty"`
	DepositTxHash string     `json:"depositTxHash"`
	FillTxHash    *string    `json:"fillTxHash,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	FilledAt      *time.Time `json:"filledAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
}

func toTransactionResponse(tx *Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:            tx.ID.String(),
		Owner:         tx.OwnerAddress,
		SourceChainID: tx.SourceChainID,
		DestChainID:   tx.DestChainID,
		VaultAddress:  tx.VaultAddress,
		Amount:        tx.Amount.String(),
		DepositTxHash: tx.DepositTxHash,
		FillTxHash:    tx.FillTxHash,
		Status:        string(tx.Status),
		ErrorMessage:  tx.ErrorMessage,
		CreatedAt:     tx.CreatedAt,
		FilledAt:      tx.FilledAt,
		FailedAt:      tx.FailedAt,
	}
	if tx.OutputAmount != nil {
		resp.OutputAmount = tx.OutputAmount.String()
	}
	if tx.BridgeFee != nil {
		resp.BridgeFee = tx.BridgeFee.String()
	}
	return resp
}

func (h *HTTP) initiate(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req InitiateBridgeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if !common.IsHexAddress(req.Owner) {
		return apperrors.BadRequestError(nil, "invalid owner address")
	}
	if !common.IsHexAddress(req.VaultAddress) {
		return apperrors.BadRequestError(nil, "invalid vault address")
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return apperrors.BadRequestError(nil, "invalid amount")
	}

	if h.vaults != nil {
		vault, err := h.vaults.GetVaultByAddress(r.Context(), req.DestChainID, req.VaultAddress)
		if err != nil {
			if errors.Is(err, vaults.ErrVaultNotFound) {
				return apperrors.BadRequestError(err, "unknown destination vault")
			}
			return apperrors.GeneralError(err)
		}
		if !vault.Eligible() {
			return apperrors.BadRequestError(nil, "destination vault is not eligible")
		}
	}

	tx, err := h.coordinator.Initiate(r.Context(), InitiateRequest{
		Owner:         common.HexToAddress(req.Owner),
		SourceChainID: req.SourceChainID,
		DestChainID:   req.DestChainID,
		VaultAddress:  common.HexToAddress(req.VaultAddress),
		Amount:        amount,
	})
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, toTransactionResponse(tx))
	return nil
}

func (h *HTTP) getStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := uuid.Parse(chi.URLParam(r, "bridgeTxID"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid bridge transaction id")
	}

	tx, err := h.coordinator.PollFill(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return apperrors.ResourceNotFoundError(err, "bridge transaction not found")
		}
		return apperrors.GeneralError(err)
	}

	h.writeJSON(w, http.StatusOK, toTransactionResponse(tx))
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
