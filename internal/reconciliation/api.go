package reconciliation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-rcm/platform/internal/policy"
	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the reconciliation module
type Handler struct {
	engine       *Engine
	store        Store
	policies     *policy.Store
	toleranceBps int
}

// NewHandler creates a new reconciliation handler
func NewHandler(engine *Engine, store Store, policies *policy.Store, toleranceBps int) *Handler {
	return &Handler{engine: engine, store: store, policies: policies, toleranceBps: toleranceBps}
}

// Routes registers the reconciliation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/remittances", h.PostRemittance)
	r.Post("/batch", h.PostBatch)
	r.Get("/exceptions", h.ListExceptions)
	r.Get("/cases/{caseID}", h.ListByCase)
	r.Post("/records/{recordID}/correct", h.CorrectRecord)

	return r
}

// PostRemittanceRequest posts a single remittance for reconciliation
type PostRemittanceRequest struct {
	CaseID        types.ID    `json:"case_id"`
	RemittanceID  string      `json:"remittance_id"`
	PayerCode     string      `json:"payer_code"`
	ProcedureCode string      `json:"procedure_code"`
	Posted        types.Money `json:"posted"`
	ToleranceBps  *int        `json:"tolerance_bps,omitempty"`
}

// PostRemittance reconciles one posted remittance
func (h *Handler) PostRemittance(w http.ResponseWriter, r *http.Request) {
	var req PostRemittanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	snap := h.policies.Snapshot()
	expected, ok := snap.AllowedAmount(req.PayerCode, req.ProcedureCode)
	if !ok {
		writeError(w, apperrors.NotFound("fee schedule entry", req.PayerCode+"/"+req.ProcedureCode))
		return
	}

	tolerance := h.toleranceBps
	if req.ToleranceBps != nil {
		tolerance = *req.ToleranceBps
	}

	feeRef := fmt.Sprintf("%s/%s", req.PayerCode, req.ProcedureCode)
	rec, err := h.engine.Reconcile(r.Context(), req.CaseID, req.RemittanceID, req.PayerCode, feeRef, expected, req.Posted, tolerance)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// PostBatchRequest submits a remittance batch
type PostBatchRequest struct {
	Entries      []BatchEntry `json:"entries"`
	ToleranceBps *int         `json:"tolerance_bps,omitempty"`
}

// PostBatch reconciles a batch with partial-failure semantics
func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) {
	var req PostBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, apperrors.BadRequest("batch must contain at least one entry"))
		return
	}

	tolerance := h.toleranceBps
	if req.ToleranceBps != nil {
		tolerance = *req.ToleranceBps
	}

	result := h.engine.ReconcileBatch(r.Context(), req.Entries, h.policies.Snapshot(), tolerance)

	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// ListExceptions returns the variance exception feed
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, total, err := h.store.ListExceptions(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"total": total,
	})
}

// ListByCase returns all records for a case
func (h *Handler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid case ID"))
		return
	}

	records, err := h.store.FindByCase(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

// CorrectRecordRequest posts a corrected amount for an earlier record
type CorrectRecordRequest struct {
	Posted       types.Money `json:"posted"`
	ToleranceBps *int        `json:"tolerance_bps,omitempty"`
}

// CorrectRecord creates a correction referencing the original record
func (h *Handler) CorrectRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := types.ParseID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid record ID"))
		return
	}

	var req CorrectRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	tolerance := h.toleranceBps
	if req.ToleranceBps != nil {
		tolerance = *req.ToleranceBps
	}

	rec, err := h.engine.Correct(r.Context(), recordID, req.Posted, tolerance)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		writeJSON(w, appErr.HTTPStatus, map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": "internal server error",
		"code":  "INTERNAL_ERROR",
	})
}
