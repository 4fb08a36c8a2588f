package handler

import (
	"encoding/json"
	"net/http"

	"github.com/takapay/takapay/internal/service"
)

// WalletHandler serves the money-movement endpoints.
type WalletHandler struct {
	engine *service.TransferEngine
	admin  *service.AdminService
}

func NewWalletHandler(engine *service.TransferEngine, admin *service.AdminService) *WalletHandler {
	return &WalletHandler{engine: engine, admin: admin}
}

// GetBalance returns the caller's wallet.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	wallet, err := h.admin.Wallet(r.Context(), actor)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// SendMoney moves money to the wallet behind a phone number.
func (h *WalletHandler) SendMoney(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		ReceiverPhone string `json:"receiver_phone"`
		Amount        int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.ReceiverPhone == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-field", "receiver_phone is required")
		return
	}

	res, err := h.engine.SendMoney(r.Context(), actor, req.ReceiverPhone, req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// Withdraw debits the caller's wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	res, err := h.engine.Withdraw(r.Context(), actor, req.Amount, actor, req.Description)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// CashOutToAgent hands wallet money to an agent picked by phone. The caller
// pays the agent's commission on top.
func (h *WalletHandler) CashOutToAgent(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		AgentPhone string `json:"agent_phone"`
		Amount     int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.AgentPhone == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-field", "agent_phone is required")
		return
	}

	res, err := h.engine.CashOutToAgent(r.Context(), actor, req.AgentPhone, req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// CashIn is the agent endpoint crediting a user with cash the agent took over
// the counter.
func (h *WalletHandler) CashIn(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		UserPhone string `json:"user_phone"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.UserPhone == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-field", "user_phone is required")
		return
	}

	res, err := h.engine.CashIn(r.Context(), actor, req.UserPhone, req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// CashOut is the agent endpoint debiting a user who is taking cash out.
func (h *WalletHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		UserPhone string `json:"user_phone"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.UserPhone == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-field", "user_phone is required")
		return
	}

	res, err := h.engine.CashOut(r.Context(), actor, req.UserPhone, req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}
