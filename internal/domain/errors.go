package domain

import "errors"

// Stable error kinds surfaced by the ledger core. The HTTP layer translates
// them; only ErrStorageUnavailable is safe to retry.
var (
	ErrNotFound            = errors.New("not found")
	ErrBlocked             = errors.New("wallet is blocked")
	ErrNotApproved         = errors.New("agent is not approved")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadyProcessed    = errors.New("payment already processed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)
