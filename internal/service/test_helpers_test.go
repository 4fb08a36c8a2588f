package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/ledger"
)

// newTestEngine wires a transfer engine over a fresh in-memory store with the
// default tariff: 1% transfer fee, 1.5% agent commission.
func newTestEngine(t *testing.T) (*ledger.MemoryStore, *TransferEngine) {
	t.Helper()
	store := ledger.NewMemory()
	eng := NewTransferEngine(store, TransferConfig{
		TransferFeeRate:       decimal.RequireFromString("1"),
		DefaultCommissionRate: decimal.RequireFromString("1.5"),
	})
	return store, eng
}

type seedOpts struct {
	role       domain.Role
	rate       string
	balance    int64
	unapproved bool
}

// seedHolder creates a holder plus wallet and funds it through the deposit
// path so the entry log stays consistent with the balance.
func seedHolder(t *testing.T, store *ledger.MemoryStore, eng *TransferEngine, name, phone string, opts seedOpts) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	h := domain.Holder{
		ID:       uuid.New(),
		Name:     name,
		Phone:    phone,
		Role:     opts.role,
		Approved: opts.role == domain.RoleAgent && !opts.unapproved,
	}
	if opts.rate != "" {
		h.CommissionRate = decimal.RequireFromString(opts.rate)
	}
	if err := store.CreateHolder(ctx, h); err != nil {
		t.Fatalf("create holder %s: %v", name, err)
	}
	if _, err := store.CreateWallet(ctx, h.ID); err != nil {
		t.Fatalf("create wallet %s: %v", name, err)
	}
	if opts.balance > 0 {
		if _, err := eng.Deposit(ctx, h.ID, opts.balance, h.ID, "seed"); err != nil {
			t.Fatalf("seed balance %s: %v", name, err)
		}
	}
	return h.ID
}

func walletBalance(t *testing.T, store *ledger.MemoryStore, holder uuid.UUID) int64 {
	t.Helper()
	w, err := store.Wallet(context.Background(), holder)
	if err != nil {
		t.Fatalf("load wallet %s: %v", holder, err)
	}
	return w.Balance
}

// allEntries drains the paginated account listing for assertions.
func allEntries(t *testing.T, store *ledger.MemoryStore, account uuid.UUID) []domain.Entry {
	t.Helper()
	entries, _, err := store.EntriesByAccount(context.Background(), account, 1, 100)
	if err != nil {
		t.Fatalf("list entries for %s: %v", account, err)
	}
	return entries
}
