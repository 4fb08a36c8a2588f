package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemHolderID identifies the platform float wallet. Transfer fees are
// credited to it and cash-in commissions are funded from it. It is the only
// wallet allowed to carry a negative balance (a short position against the
// platform's own books).
const SystemHolderID = "11111111-1111-1111-1111-111111111111"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// Holder is the directory record behind a wallet. Registration, passwords and
// role assignment live outside this service; the ledger only reads holders to
// resolve phone numbers and to re-check agent approval.
type Holder struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Role           Role            `json:"role"`
	Approved       bool            `json:"approved"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Wallet holds one balance per holder, in poisha (BDT minor units).
type Wallet struct {
	Holder    uuid.UUID `json:"holder"`
	Balance   int64     `json:"balance"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EntryType string

const (
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdraw   EntryType = "WITHDRAW"
	EntrySendMoney  EntryType = "SEND_MONEY"
	EntryCashIn     EntryType = "CASH_IN"
	EntryCashOut    EntryType = "CASH_OUT"
	EntryCommission EntryType = "COMMISSION"
)

type EntryStatus string

const (
	EntryCompleted EntryStatus = "COMPLETED"
	EntryReversed  EntryStatus = "REVERSED"
	EntryFailed    EntryStatus = "FAILED"
)

// Entry is one immutable ledger record. Account is the wallet the entry is
// recorded against; BalanceBefore/BalanceAfter snapshot that wallet around the
// mutation. Operations touching two wallets append one entry per side.
type Entry struct {
	ID            uuid.UUID   `json:"id"`
	Account       uuid.UUID   `json:"account"`
	From          uuid.UUID   `json:"from"`
	To            uuid.UUID   `json:"to"`
	Amount        int64       `json:"amount"`
	Fee           int64       `json:"fee"`
	Commission    int64       `json:"commission,omitempty"`
	Type          EntryType   `json:"type"`
	Status        EntryStatus `json:"status"`
	BalanceBefore int64       `json:"balance_before"`
	BalanceAfter  int64       `json:"balance_after"`
	InitiatedBy   uuid.UUID   `json:"initiated_by"`
	Description   string      `json:"description,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentPaid, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// Payment tracks one external gateway top-up. PAID is a one-way gate: once a
// payment is PAID it is never processed again, whatever the gateway redelivers.
type Payment struct {
	TransactionID string        `json:"transaction_id"`
	User          uuid.UUID     `json:"user"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	GatewayData   []byte        `json:"gateway_data,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SystemHolder returns the parsed platform float holder id.
func SystemHolder() uuid.UUID {
	return uuid.MustParse(SystemHolderID)
}
