package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/takapay/takapay/internal/observability"
	"github.com/takapay/takapay/internal/service"
)

// PaymentHandler serves gateway top-up initiation and callbacks.
type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Initiate registers a top-up with the gateway and returns the redirect.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	payment, checkout, err := h.svc.Initiate(r.Context(), actor, req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"payment":      payment,
		"redirect_url": checkout.RedirectURL,
	})
}

// List returns the caller's payments, newest first.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	page, limit := pageParams(r)
	payments, total, err := h.svc.ListByUser(r.Context(), actor, page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

type callbackPayload struct {
	TransactionID string `json:"transaction_id"`
}

// decodeCallback keeps the raw body so the gateway's payload survives on the
// payment record.
func decodeCallback(r *http.Request) (callbackPayload, []byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return callbackPayload{}, nil, err
	}
	var p callbackPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return callbackPayload{}, nil, err
	}
	return p, raw, nil
}

// Success is the gateway's payment-completed callback. Gateways retry, so
// duplicates resolve to 409 without a second credit.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) {
	p, raw, err := decodeCallback(r)
	if err != nil || p.TransactionID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "transaction_id is required")
		return
	}

	payment, err := h.svc.MarkPaid(r.Context(), p.TransactionID, raw)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	observability.IncrementPaymentTransition("PAID")
	RespondJSON(w, http.StatusOK, payment)
}

// Failure is the gateway's payment-failed callback.
func (h *PaymentHandler) Failure(w http.ResponseWriter, r *http.Request) {
	p, raw, err := decodeCallback(r)
	if err != nil || p.TransactionID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "transaction_id is required")
		return
	}

	if err := h.svc.MarkFailed(r.Context(), p.TransactionID, raw); err != nil {
		respondDomainError(w, r, err)
		return
	}
	observability.IncrementPaymentTransition("FAILED")
	RespondJSON(w, http.StatusOK, map[string]string{"status": "FAILED"})
}

// Cancel is the gateway's user-cancelled callback.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, raw, err := decodeCallback(r)
	if err != nil || p.TransactionID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "transaction_id is required")
		return
	}

	if err := h.svc.MarkCancelled(r.Context(), p.TransactionID, raw); err != nil {
		respondDomainError(w, r, err)
		return
	}
	observability.IncrementPaymentTransition("CANCELLED")
	RespondJSON(w, http.StatusOK, map[string]string{"status": "CANCELLED"})
}
