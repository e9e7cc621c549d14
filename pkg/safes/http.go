package safes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	apphttp "github.com/zero-finance/treasury-engine/pkg/app/http"
)

// HTTP exposes safe onboarding endpoints over chi
type HTTP struct {
	store    Store
	deployer *Deployer
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers safe endpoints on the given chi router
func RegisterRoutes(r chi.Router, store Store, deployer *Deployer, logger *zap.Logger) {
	h := &HTTP{
		store:    store,
		deployer: deployer,
		validate: validator.New(),
		logger:   logger,
	}

	r.Post("/safes", apphttp.HandleError(h.onboard))
	r.Get("/safes/{primaryAddress}", apphttp.HandleError(h.list))
}

// OnboardRequest registers an existing primary Safe and deploys its category
// Safes on the given chain.
type OnboardRequest struct {
	PrimaryAddress string `json:"primaryAddress" validate:"required"`
	ChainID        int64  `json:"chainId" validate:"required"`
}

// SafeResponse is the JSON shape of one Safe record.
type SafeResponse struct {
	ID             string    `json:"id"`
	Category       string    `json:"category"`
	ChainID        int64     `json:"chainId"`
	Address        string    `json:"address"`
	PrimaryAddress string    `json:"primaryAddress"`
	Status         string    `json:"status"`
	DeployTxHash   *string   `json:"deployTxHash,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toSafeResponse(s *Safe) *SafeResponse {
	resp := &SafeResponse{
		ID:             s.ID.String(),
		Category:       string(s.Category),
		ChainID:        s.ChainID,
		Address:        s.Address.Hex(),
		PrimaryAddress: s.PrimaryAddress.Hex(),
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
	}
	if s.DeployTxHash != nil {
		hash := s.DeployTxHash.Hex()
		resp.DeployTxHash = &hash
	}
	return resp
}

func (h *HTTP) onboard(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req OnboardRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "primaryAddress and chainId are required")
	}
	if !common.IsHexAddress(req.PrimaryAddress) {
		return apperrors.BadRequestError(nil, "invalid primary address")
	}
	primary := common.HexToAddress(req.PrimaryAddress)

	// The primary Safe itself is provisioned externally; record it if this
	// is the first time we see it on this chain.
	_, err = h.store.GetSafe(r.Context(),
		WithChainID(req.ChainID),
		WithCategory(CategoryPrimary),
		WithPrimaryAddress(primary.Hex()),
	)
	switch {
	case errors.Is(err, ErrSafeNotFound):
		record := &Safe{
			Category:       CategoryPrimary,
			ChainID:        req.ChainID,
			Address:        primary,
			PrimaryAddress: primary,
			Status:         DeploymentDeployed,
			CreatedAt:      time.Now().UTC(),
		}
		if err := h.store.CreateSafe(r.Context(), record); err != nil {
			return apperrors.GeneralError(err)
		}
	case err != nil:
		return apperrors.GeneralError(err)
	}

	if _, err := h.deployer.EnsureAll(r.Context(), req.ChainID, primary); err != nil {
		if errors.Is(err, ErrAddressMismatch) {
			return apperrors.ConflictError(err, "stored safe address does not match derivation")
		}
		return apperrors.DependencyError(err, "failed to deploy category safes")
	}

	h.logger.Info("Primary safe onboarded",
		zap.String("primary_address", primary.Hex()),
		zap.Int64("chain_id", req.ChainID))

	return h.writeSafes(w, r, primary)
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) error {
	addr := chi.URLParam(r, "primaryAddress")
	if !common.IsHexAddress(addr) {
		return apperrors.BadRequestError(nil, "invalid primary address")
	}
	return h.writeSafes(w, r, common.HexToAddress(addr))
}

func (h *HTTP) writeSafes(w http.ResponseWriter, r *http.Request, primary common.Address) error {
	records, err := h.store.ListSafes(r.Context(), WithPrimaryAddress(primary.Hex()))
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if len(records) == 0 {
		return apperrors.ResourceNotFoundError(nil, "no safes for primary address")
	}

	out := make([]*SafeResponse, len(records))
	for i, s := range records {
		out[i] = toSafeResponse(s)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
	return nil
}
