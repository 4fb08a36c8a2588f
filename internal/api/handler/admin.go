package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/service"
)

// AdminHandler serves the back-office endpoints.
type AdminHandler struct {
	admin  *service.AdminService
	engine *service.TransferEngine
}

func NewAdminHandler(admin *service.AdminService, engine *service.TransferEngine) *AdminHandler {
	return &AdminHandler{admin: admin, engine: engine}
}

// RegisterHolder onboards a user or agent and opens its wallet.
func (h *AdminHandler) RegisterHolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.Name == "" || req.Phone == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-field", "name and phone are required")
		return
	}
	role := domain.Role(req.Role)
	switch role {
	case domain.RoleUser, domain.RoleAgent, domain.RoleAdmin:
	default:
		RespondError(w, r, http.StatusBadRequest, "request/invalid-role", "role must be USER, AGENT or ADMIN")
		return
	}

	holder, err := h.admin.Register(r.Context(), req.Name, req.Phone, role)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, holder)
}

// ListWallets pages through every wallet on the platform.
func (h *AdminHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	wallets, pagination, err := h.admin.Wallets(r.Context(), page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets":    wallets,
		"pagination": pagination,
	})
}

// ListEntries pages through the entire ledger.
func (h *AdminHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	entries, pagination, err := h.admin.Entries(r.Context(), page, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":    entries,
		"pagination": pagination,
	})
}

// Dashboard returns the platform counters with recent ledger activity.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.admin.Dashboard(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, dash)
}

func pathHolder(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// BlockWallet freezes a wallet.
func (h *AdminHandler) BlockWallet(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockWallet lifts a freeze.
func (h *AdminHandler) UnblockWallet(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *AdminHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	holder, ok := pathHolder(r)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid holder id")
		return
	}
	wallet, err := h.admin.SetBlocked(r.Context(), holder, blocked)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// ApproveAgent lets an agent start cashing in and out.
func (h *AdminHandler) ApproveAgent(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, true)
}

// SuspendAgent stops an agent at the next operation.
func (h *AdminHandler) SuspendAgent(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, false)
}

func (h *AdminHandler) setApproval(w http.ResponseWriter, r *http.Request, approved bool) {
	agent, ok := pathHolder(r)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid agent id")
		return
	}
	holder, err := h.admin.SetAgentApproval(r.Context(), agent, approved)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, holder)
}

// Deposit credits any wallet from the back office, for money arriving outside
// the gateway.
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Holder      string `json:"holder"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	holder, err := uuid.Parse(req.Holder)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid holder id")
		return
	}

	res, err := h.engine.Deposit(r.Context(), holder, req.Amount, actor, req.Description)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}
