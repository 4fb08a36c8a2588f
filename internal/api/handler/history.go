package handler

import (
	"net/http"

	"github.com/takapay/takapay/internal/service"
)

// HistoryHandler serves ledger listings.
type HistoryHandler struct {
	svc *service.HistoryService
}

func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// Transactions lists the caller's money movements.
func (h *HistoryHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	page, limit := pageParams(r)
	entries, pagination, err := h.svc.Transactions(r.Context(), actor, page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":    entries,
		"pagination": pagination,
	})
}

// Statement lists the entries booked against the caller's wallet with balance
// snapshots.
func (h *HistoryHandler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	page, limit := pageParams(r)
	entries, pagination, err := h.svc.Statement(r.Context(), actor, page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":    entries,
		"pagination": pagination,
	})
}

// Commissions lists the commission credits the calling agent has earned.
func (h *HistoryHandler) Commissions(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	page, limit := pageParams(r)
	entries, pagination, err := h.svc.Commissions(r.Context(), actor, page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":    entries,
		"pagination": pagination,
	})
}
