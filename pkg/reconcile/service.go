package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	apphttp "github.com/zero-finance/treasury-engine/pkg/app/http"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

// HTTP exposes reconciliation endpoints over chi
type HTTP struct {
	runner   *Runner
	runs     Store
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers reconciliation endpoints on the given chi router
func RegisterRoutes(r chi.Router, runner *Runner, runs Store, logger *zap.Logger) {
	h := &HTTP{
		runner:   runner,
		runs:     runs,
		validate: validator.New(),
		logger:   logger,
	}

	r.Post("/reconcile/{safeID}", apphttp.HandleError(h.trigger))
	r.Get("/reconcile/{safeID}/runs", apphttp.HandleError(h.listRuns))
	r.Get("/reconcile/runs/{runID}", apphttp.HandleError(h.getRun))
	r.Post("/allocations/manual", apphttp.HandleError(h.manualAllocate))
}

// RunResponse is the JSON shape of one reconciliation run.
type RunResponse struct {
	ID               string     `json:"id"`
	SafeID           string     `json:"safeId"`
	PrimaryAddress   string     `json:"primaryAddress"`
	ChainID          int64      `json:"chainId"`
	Trigger          string     `json:"trigger"`
	State            string     `json:"state"`
	PlannedTransfers int        `json:"plannedTransfers"`
	Shortfalls       int        `json:"shortfalls"`
	TxHash           *string    `json:"txHash,omitempty"`
	ErrorMessage     *string    `json:"errorMessage,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
}

func toRunResponse(run *Run) *RunResponse {
	return &RunResponse{
		ID:               run.ID.String(),
		SafeID:           run.SafeID.String(),
		PrimaryAddress:   run.PrimaryAddress,
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

func (h *HTTP) trigger(w http.ResponseWriter, r *http.Request) error {
	safeID, err := uuid.Parse(chi.URLParam(r, "safeID"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid safe id")
	}

	run, err := h.runner.Trigger(r.Context(), safeID, TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunInProgress):
			return apperrors.LockedError(err, "a reconciliation run is already in progress for this safe")
		case errors.Is(err, safes.ErrSafeNotFound):
			return apperrors.ResourceNotFoundError(err, "safe not found")
		}
		return err
	}

	h.writeJSON(w, http.StatusOK, toRunResponse(run))
	return nil
}

func (h *HTTP) getRun(w http.ResponseWriter, r *http.Request) error {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid run id")
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return apperrors.ResourceNotFoundError(err, "run not found")
		}
		return apperrors.GeneralError(err)
	}

	h.writeJSON(w, http.StatusOK, toRunResponse(run))
	return nil
}

func (h *HTTP) listRuns(w http.ResponseWriter, r *http.Request) error {
	safeID, err := uuid.Parse(chi.URLParam(r, "safeID"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid safe id")
	}

	runs, err := h.runs.ListRuns(r.Context(), safeID, 50)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	out := make([]*RunResponse, len(runs))
	for i, run := range runs {
		out[i] = toRunResponse(run)
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

// ManualAllocationRequest is the POST /allocations/manual payload.
type ManualAllocationRequest struct {
	SafeID string              `json:"safeId" validate:"required,uuid"`
	Lines  []ManualLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ManualLineRequest is one transfer line in a manual allocation.
type ManualLineRequest struct {
	Category string `json:"category" validate:"required,oneof=tax liquidity yield"`
	Amount   string `json:"amount" validate:"required"`
}

// ManualAllocationResponse reports the executed batch.
type ManualAllocationResponse struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

func (h *HTTP) manualAllocate(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req ManualAllocationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid manual allocation request")
	}

	safeID, err := uuid.Parse(req.SafeID)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid safe id")
	}

	lines := make([]ManualLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		amount, ok := new(big.Int).SetString(line.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return apperrors.BadRequestError(nil, "invalid amount")
		}
		lines = append(lines, ManualLine{
			Category: safes.Category(line.Category),
			Amount:   amount,
		})
	}

	result, err := h.runner.ManualAllocate(r.Context(), safeID, lines)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, &ManualAllocationResponse{
		TxHash:      result.TxHash.Hex(),
		Status:      string(result.Status),
		BlockNumber: result.BlockNumber,
	})
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
