package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/takapay/takapay/internal/api/middleware"
	"github.com/takapay/takapay/internal/api/problem"
	"github.com/takapay/takapay/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, errors.New("missing user in auth context")
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, errors.New("invalid user_id in auth context")
	}
	return actorID, nil
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}

// respondDomainError maps ledger sentinels onto HTTP problem responses.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "resource not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "ledger/invalid-amount", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "ledger/insufficient-balance", "insufficient balance")
	case errors.Is(err, domain.ErrBlocked):
		RespondError(w, r, http.StatusForbidden, "ledger/wallet-blocked", "wallet is blocked")
	case errors.Is(err, domain.ErrNotApproved):
		RespondError(w, r, http.StatusForbidden, "ledger/agent-not-approved", "agent is not approved")
	case errors.Is(err, domain.ErrAlreadyProcessed):
		RespondError(w, r, http.StatusConflict, "ledger/already-processed", "already processed")
	case errors.Is(err, domain.ErrStorageUnavailable):
		RespondError(w, r, http.StatusServiceUnavailable, "ledger/storage-unavailable", "storage temporarily unavailable")
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}
