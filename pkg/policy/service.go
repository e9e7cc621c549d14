package policy

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

// HTTP exposes policy endpoints over chi
type HTTP struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers policy endpoints on the given chi router
func RegisterRoutes(r chi.Router, store Store, logger *zap.Logger) {
	h := &HTTP{
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}

	r.Get("/policies/{primaryAddress}", apphttp.HandleError(h.getPolicy))
	r.Put("/policies/{primaryAddress}", apphttp.HandleError(h.setPolicy))
	r.Get("/policies/{primaryAddress}/history", apphttp.HandleError(h.getHistory))
}

// SetPolicyRequest is the PUT /policies payload.
type SetPolicyRequest struct {
	TaxPct       int `json:"taxPct" validate:"min=0,max=100"`
	LiquidityPct int `json:"liquidityPct" validate:"min=0,max=100"`
	YieldPct     int `json:"yieldPct" validate:"min=0,max=100"`
}

// PolicyResponse is the JSON shape of one policy version.
type PolicyResponse struct {
	ID             string     `json:"id"`
	PrimaryAddress string     `json:"primaryAddress"`
	TaxPct         int        `json:"taxPct"`
	LiquidityPct   int        `json:"liquidityPct"`
	YieldPct       int        `json:"yieldPct"`
	PrimaryPct     int        `json:"primaryPct"`
	Version        int        `json:"version"`
	SupersededAt   *time.Time `json:"supersededAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toPolicyResponse(p *Policy) *PolicyResponse {
	return &PolicyResponse{
		ID:             p.ID.String(),
		PrimaryAddress: p.PrimaryAddress,
		TaxPct:         p.TaxPct,
		LiquidityPct:   p.LiquidityPct,
		YieldPct:       p.YieldPct,
		PrimaryPct:     100 - p.TaxPct - p.LiquidityPct - p.YieldPct,
		Version:        p.Version,
		SupersededAt:   p.SupersededAt,
		CreatedAt:      p.CreatedAt,
	}
}

func primaryAddressParam(r *http.Request) (string, error) {
	addr := chi.URLParam(r, "primaryAddress")
	if !common.IsHexAddress(addr) {
		return "", apperrors.BadRequestError(nil, "invalid primary address")
	}
	return addr, nil
}

func (h *HTTP) getPolicy(w http.ResponseWriter, r *http.Request) error {
	addr, err := primaryAddressParam(r)
	if err != nil {
		return err
	}

	policy, err := h.store.GetActivePolicy(r.Context(), addr)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			return apperrors.ResourceNotFoundError(err, "no active policy for address")
		}
		return apperrors.GeneralError(err)
	}

	h.writeJSON(w, http.StatusOK, toPolicyResponse(policy))
	return nil
}

func (h *HTTP) setPolicy(w http.ResponseWriter, r *http.Request) error {
	addr, err := primaryAddressParam(r)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req SetPolicyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "percentages must be between 0 and 100")
	}

	policy := &Policy{
		PrimaryAddress: addr,
		TaxPct:         req.TaxPct,
		LiquidityPct:   req.LiquidityPct,
		YieldPct:       req.YieldPct,
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	if err := h.store.SetPolicy(r.Context(), policy); err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("Allocation policy updated",
		zap.String("primary_address", policy.PrimaryAddress),
		zap.Int("version", policy.Version),
		zap.Int("tax_pct", policy.TaxPct),
		zap.Int("liquidity_pct", policy.LiquidityPct),
		zap.Int("yield_pct", policy.YieldPct))

	h.writeJSON(w, http.StatusOK, toPolicyResponse(policy))
	return nil
}

func (h *HTTP) getHistory(w http.ResponseWriter, r *http.Request) error {
	addr, err := primaryAddressParam(r)
	if err != nil {
		return err
	}

	history, err := h.store.History(r.Context(), addr)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	out := make([]*PolicyResponse, len(history))
	for i, p := range history {
		out[i] = toPolicyResponse(p)
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
