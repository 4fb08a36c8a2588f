package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/takapay/takapay/internal/domain"
)

// Tx is the mutation surface available inside one atomic scope. Everything a
// money movement touches — wallet rows, ledger entries, payment records — goes
// through a single Tx so a failure anywhere rolls the whole operation back.
//
// The entry log is append-only by construction: Tx exposes AppendEntry and
// nothing that can reach an existing entry.
type Tx interface {
	Holder(ctx context.Context, id uuid.UUID) (domain.Holder, error)
	HolderByPhone(ctx context.Context, phone string) (domain.Holder, error)

	// WalletForUpdate loads a wallet and holds it locked for the remainder
	// of the transaction. Callers locking more than one wallet must do so
	// in ascending holder-id order.
	WalletForUpdate(ctx context.Context, holder uuid.UUID) (domain.Wallet, error)

	// ApplyDelta mutates a locked wallet's balance. The guard is evaluated
	// against the current row: ErrNotFound if the wallet is missing,
	// ErrBlocked if it is blocked, ErrInsufficientBalance if the delta
	// would drive the balance negative. The platform float wallet is
	// exempt from the negative-balance check.
	ApplyDelta(ctx context.Context, holder uuid.UUID, delta int64) (domain.Wallet, error)

	AppendEntry(ctx context.Context, entry domain.Entry) (uuid.UUID, error)

	CreatePayment(ctx context.Context, payment domain.Payment) error
	PaymentForUpdate(ctx context.Context, transactionID string) (domain.Payment, error)
	SetPaymentStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, gatewayData []byte) error
}

// Store is the persistence contract for the ledger. Reads outside RunInTx see
// only committed state.
type Store interface {
	// RunInTx executes fn atomically: every mutation fn performs is applied
	// on success and none on error.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Holder(ctx context.Context, id uuid.UUID) (domain.Holder, error)
	HolderByPhone(ctx context.Context, phone string) (domain.Holder, error)
	CreateHolder(ctx context.Context, holder domain.Holder) error
	SetAgentApproval(ctx context.Context, agent uuid.UUID, approved bool) (domain.Holder, error)

	Wallet(ctx context.Context, holder uuid.UUID) (domain.Wallet, error)
	CreateWallet(ctx context.Context, holder uuid.UUID) (domain.Wallet, error)
	SetWalletBlocked(ctx context.Context, holder uuid.UUID, blocked bool) (domain.Wallet, error)
	Wallets(ctx context.Context, page, limit int) ([]domain.Wallet, int64, error)

	// EntriesByAccount lists every entry recorded against one wallet,
	// newest first. EntriesByParty lists the holder's own side of each
	// money movement, commissions excluded: a two-sided operation appears
	// once, carrying only the holder's balance snapshots. AllEntries
	// pages through the whole ledger for the back office.
	EntriesByAccount(ctx context.Context, account uuid.UUID, page, limit int) ([]domain.Entry, int64, error)
	EntriesByParty(ctx context.Context, holder uuid.UUID, page, limit int) ([]domain.Entry, int64, error)
	CommissionEntries(ctx context.Context, agent uuid.UUID, page, limit int) ([]domain.Entry, int64, error)
	AllEntries(ctx context.Context, page, limit int) ([]domain.Entry, int64, error)

	// Stats aggregates the platform-wide dashboard counters. The balance
	// sum covers customer wallets only, the float is the platform's own
	// position.
	Stats(ctx context.Context) (Stats, error)

	Payment(ctx context.Context, transactionID string) (domain.Payment, error)
	PaymentsByUser(ctx context.Context, user uuid.UUID, page, limit int) ([]domain.Payment, int64, error)

	// LedgerDrift replays the entry log per wallet and reports every wallet
	// whose balance disagrees with the replayed sum. The platform float is
	// skipped: retained fees are booked there without an offsetting entry.
	LedgerDrift(ctx context.Context) ([]Drift, error)
}

// Drift is one wallet whose stored balance diverges from its entry log.
type Drift struct {
	Holder   uuid.UUID
	Balance  int64
	Replayed int64
}

// Stats is the platform-wide aggregate behind the back-office dashboard.
type Stats struct {
	TotalUsers   int64 `json:"total_users"`
	TotalAgents  int64 `json:"total_agents"`
	TotalEntries int64 `json:"total_entries"`
	TotalBalance int64 `json:"total_balance"`
}

func pageOffset(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return (page - 1) * limit, limit
}
