package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kreativelabske/lipia-backend/internal/api/httpx"
	"github.com/kreativelabske/lipia-backend/internal/api/validate"
	"github.com/kreativelabske/lipia-backend/internal/models"
	"github.com/kreativelabske/lipia-backend/internal/services"
)

type PaymentsHandler struct {
	svc *services.PaymentService
	log *slog.Logger
}

func NewPaymentsHandler(svc *services.PaymentService) *PaymentsHandler {
	return &PaymentsHandler{svc: svc, log: slog.Default()}
}

type enqueueReq struct {
	OwnerReference string `json:"owner_reference"`
	Amount         int64  `json:"amount"`
	PlanReference  string `json:"plan_reference"`
}

// Create accepts a payment intent and returns the checkout id immediately;
// the gateway call happens on the worker pool.
func (h *PaymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req enqueueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", nil)
		return
	}

	var errs validate.Errs
	if e := validate.Required("owner_reference", req.OwnerReference); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.Required("plan_reference", req.PlanReference); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.MinInt("amount", req.Amount, 1); e != nil {
		errs = append(errs, *e)
	}
	if len(errs) > 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", errs.Error(), errs)
		return
	}

	tx, err := h.svc.Enqueue(r.Context(), req.OwnerReference, req.Amount, req.PlanReference)
	switch {
	case errors.Is(err, services.ErrDuplicateRequest):
		httpx.WriteError(w, http.StatusConflict, "duplicate_request", err.Error(), nil)
		return
	case errors.Is(err, services.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	case err != nil:
		h.log.Error("enqueue", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"checkout_id": tx.CheckoutID})
}

type statusResp struct {
	Status      models.PaymentStatus `json:"status"`
	ErrorDetail *string              `json:"error_detail,omitempty"`
	Reference   *string              `json:"reference,omitempty"`
}

func (h *PaymentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkout_id")
	tx, err := h.svc.Status(r.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	}
	if err != nil {
		h.log.Error("status query", "checkout_id", id, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResp{Status: tx.Status, ErrorDetail: tx.ErrorDetail, Reference: tx.Reference})
}

func (h *PaymentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkout_id")
	tx, err := h.svc.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	case errors.Is(err, services.ErrAlreadyFinal):
		httpx.WriteError(w, http.StatusConflict, "already_final", "transaction already in a terminal state", nil)
		return
	case err != nil:
		h.log.Error("cancel", "checkout_id", id, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]models.PaymentStatus{"status": tx.Status})
}

func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_reference")
	if owner == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "owner_reference required", nil)
		return
	}
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	txs, err := h.svc.ListByOwner(r.Context(), owner, limit, offset)
	if err != nil {
		h.log.Error("list payments", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

// callbackReq mirrors the provider payload; both reference spellings are
// accepted, as the provider itself is inconsistent about them.
type callbackReq struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	Success           *bool  `json:"success"`
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	Refference        string `json:"refference"`
	Reason            string `json:"reason"`
}

// Callback always answers 200 so the provider does not retry; unknown or
// already-terminal transactions are logged and acknowledged.
func (h *PaymentsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CheckoutRequestID == "" {
		h.log.Warn("malformed gateway callback", "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	out := models.OutcomeFailed
	switch {
	case req.Success != nil && *req.Success,
		req.Status == "success", req.Status == "completed":
		out = models.OutcomeCompleted
	case req.Status == "cancelled":
		out = models.OutcomeCancelled
	case req.Status == "pending":
		out = models.OutcomePending
	}

	var ref, detail *string
	if v := req.Reference; v != "" {
		ref = &v
	} else if v := req.Refference; v != "" {
		ref = &v
	}
	if req.Reason != "" {
		detail = &req.Reason
	}

	if err := h.svc.HandleCallback(r.Context(), req.CheckoutRequestID, out, ref, detail); err != nil {
		if errors.Is(err, services.ErrUnknownTransaction) {
			h.log.Warn("callback for unknown transaction", "remote_checkout_id", req.CheckoutRequestID)
		} else {
			h.log.Error("process callback", "remote_checkout_id", req.CheckoutRequestID, "err", err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
