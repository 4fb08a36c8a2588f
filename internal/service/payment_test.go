package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/gateway"
	"github.com/takapay/takapay/internal/ledger"
)

func newTestPayments(t *testing.T) (*ledger.MemoryStore, *TransferEngine, *PaymentService) {
	t.Helper()
	store, eng := newTestEngine(t)
	gw := &gateway.MockGateway{FailureRate: 0, BaseURL: "https://sandbox.gateway.example/checkout"}
	svc := NewPaymentService(store, gw, PaymentConfig{MinimumTopUp: 1_000, MaximumTopUp: 50_000_00})
	return store, eng, svc
}

func TestInitiateBounds(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})

	_, _, err := svc.Initiate(ctx, user, 999)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, _, err = svc.Initiate(ctx, user, 50_000_01)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	p, checkout, err := svc.Initiate(ctx, user, 5_000)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Contains(t, checkout.RedirectURL, p.TransactionID)
	assert.NotEmpty(t, checkout.GatewayRef)
}

func TestInitiateBlockedWallet(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	_, err := store.SetWalletBlocked(ctx, user, true)
	require.NoError(t, err)

	_, _, err = svc.Initiate(ctx, user, 5_000)
	require.ErrorIs(t, err, domain.ErrBlocked)
}

func TestMarkPaidCreditsExactlyOnce(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	p, _, err := svc.Initiate(ctx, user, 5_000)
	require.NoError(t, err)

	// First callback credits the wallet.
	paid, err := svc.MarkPaid(ctx, p.TransactionID, []byte(`{"card":"VISA"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)
	assert.Equal(t, int64(5_000), walletBalance(t, store, user))

	// A retried callback must not credit again.
	_, err = svc.MarkPaid(ctx, p.TransactionID, []byte(`{"card":"VISA"}`))
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, int64(5_000), walletBalance(t, store, user))

	// Exactly one deposit entry for the top-up.
	entries := allEntries(t, store, user)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryDeposit, entries[0].Type)
	assert.Equal(t, "gateway top-up", entries[0].Description)
}

func TestMarkPaidNotFound(t *testing.T) {
	_, _, svc := newTestPayments(t)

	_, err := svc.MarkPaid(context.Background(), "TXN-missing", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkPaidBlockedWalletRollsBack(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	p, _, err := svc.Initiate(ctx, user, 5_000)
	require.NoError(t, err)

	// Block the wallet after initiation. The credit fails, so the status
	// flip must roll back too and the record stays PENDING.
	_, err = store.SetWalletBlocked(ctx, user, true)
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, p.TransactionID, nil)
	require.ErrorIs(t, err, domain.ErrBlocked)

	current, err := store.Payment(ctx, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, current.Status)

	// Unblocked, the retried callback succeeds once.
	_, err = store.SetWalletBlocked(ctx, user, false)
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, p.TransactionID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), walletBalance(t, store, user))
}

func TestMarkFailedIdempotent(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	p, _, err := svc.Initiate(ctx, user, 5_000)
	require.NoError(t, err)

	require.NoError(t, svc.MarkFailed(ctx, p.TransactionID, []byte(`{"reason":"declined"}`)))
	// Redelivery of the same outcome is a no-op.
	require.NoError(t, svc.MarkFailed(ctx, p.TransactionID, nil))

	// A success callback after a terminal failure is rejected.
	_, err = svc.MarkPaid(ctx, p.TransactionID, nil)
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, int64(0), walletBalance(t, store, user))

	current, err := store.Payment(ctx, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, current.Status)
}

func TestMarkCancelledConflictsWithFailed(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	p, _, err := svc.Initiate(ctx, user, 5_000)
	require.NoError(t, err)

	require.NoError(t, svc.MarkCancelled(ctx, p.TransactionID, nil))
	err = svc.MarkFailed(ctx, p.TransactionID, nil)
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestListByUser(t *testing.T) {
	store, eng, svc := newTestPayments(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})
	other := seedHolder(t, store, eng, "other", "01711000002", seedOpts{role: domain.RoleUser})

	for i := 0; i < 3; i++ {
		_, _, err := svc.Initiate(ctx, user, 5_000)
		require.NoError(t, err)
	}
	_, _, err := svc.Initiate(ctx, other, 5_000)
	require.NoError(t, err)

	payments, total, err := svc.ListByUser(ctx, user, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, payments, 2)
}
