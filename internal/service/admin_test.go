package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takapay/takapay/internal/domain"
)

func TestRegister(t *testing.T) {
	store, _ := newTestEngine(t)
	admin := NewAdminService(store, decimal.RequireFromString("1.5"))
	ctx := context.Background()

	h, err := admin.Register(ctx, "ayesha", "01711000001", domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, h.Role)
	assert.True(t, h.CommissionRate.IsZero())

	// The wallet exists and starts empty.
	w, err := admin.Wallet(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)

	// Duplicate phone is rejected.
	_, err = admin.Register(ctx, "someone", "01711000001", domain.RoleUser)
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	// Agents pick up the default commission rate and start unapproved.
	a, err := admin.Register(ctx, "agent", "01811000001", domain.RoleAgent)
	require.NoError(t, err)
	assert.False(t, a.Approved)
	assert.True(t, a.CommissionRate.Equal(decimal.RequireFromString("1.5")))
}

func TestBlockUnblockWallet(t *testing.T) {
	store, eng := newTestEngine(t)
	admin := NewAdminService(store, decimal.RequireFromString("1.5"))
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser, balance: 100})

	w, err := admin.SetBlocked(ctx, user, true)
	require.NoError(t, err)
	assert.True(t, w.Blocked)

	// A blocked wallet rejects debits and credits.
	_, err = eng.Withdraw(ctx, user, 10, user, "")
	require.ErrorIs(t, err, domain.ErrBlocked)
	_, err = eng.Deposit(ctx, user, 10, user, "")
	require.ErrorIs(t, err, domain.ErrBlocked)

	w, err = admin.SetBlocked(ctx, user, false)
	require.NoError(t, err)
	assert.False(t, w.Blocked)

	_, err = eng.Withdraw(ctx, user, 10, user, "")
	require.NoError(t, err)

	// The platform float can never be frozen.
	_, err = admin.SetBlocked(ctx, domain.SystemHolder(), true)
	require.Error(t, err)
}

func TestAgentApprovalLifecycle(t *testing.T) {
	store, eng := newTestEngine(t)
	admin := NewAdminService(store, decimal.RequireFromString("1.5"))
	ctx := context.Background()

	agent := seedHolder(t, store, eng, "agent", "01811000001", seedOpts{role: domain.RoleAgent, rate: "1.5", balance: 500, unapproved: true})
	seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser})

	_, err := eng.CashIn(ctx, agent, "01711000001", 100)
	require.ErrorIs(t, err, domain.ErrNotApproved)

	h, err := admin.SetAgentApproval(ctx, agent, true)
	require.NoError(t, err)
	assert.True(t, h.Approved)

	_, err = eng.CashIn(ctx, agent, "01711000001", 100)
	require.NoError(t, err)

	// Suspension takes effect on the next attempt.
	_, err = admin.SetAgentApproval(ctx, agent, false)
	require.NoError(t, err)
	_, err = eng.CashIn(ctx, agent, "01711000001", 100)
	require.ErrorIs(t, err, domain.ErrNotApproved)

	// Approval toggles only exist for agents.
	user := seedHolder(t, store, eng, "plainuser", "01711000002", seedOpts{role: domain.RoleUser})
	_, err = admin.SetAgentApproval(ctx, user, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryListings(t *testing.T) {
	store, eng := newTestEngine(t)
	history := NewHistoryService(store)
	ctx := context.Background()

	ayesha := seedHolder(t, store, eng, "ayesha", "01711000001", seedOpts{role: domain.RoleUser, balance: 10_000})
	babul := seedHolder(t, store, eng, "babul", "01711000002", seedOpts{role: domain.RoleUser})
	agent := seedHolder(t, store, eng, "agent", "01811000001", seedOpts{role: domain.RoleAgent, rate: "1.5", balance: 50_000})

	_, err := eng.SendMoney(ctx, ayesha, "01711000002", 1_000)
	require.NoError(t, err)
	_, err = eng.CashIn(ctx, agent, "01711000002", 2_000)
	require.NoError(t, err)

	// Babul sees both credits in party history without having initiated
	// either of them. Each operation shows up exactly once, from his own
	// side, never the counterparty's balance snapshots.
	entries, page, err := history.Transactions(ctx, babul, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, babul, e.Account)
	}

	// The sender's history carries the debit once, not the receiver's
	// mirror entry as well.
	sent, page, err := history.Transactions(ctx, ayesha, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total) // seed deposit + send
	for _, e := range sent {
		assert.Equal(t, ayesha, e.Account)
	}

	// The sender's statement shows the debit with its snapshots.
	statement, _, err := history.Statement(ctx, ayesha, 1, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(statement), 1)
	assert.Equal(t, domain.EntrySendMoney, statement[0].Type)

	// Commission history lists only the agent's COMMISSION credits.
	commissions, page, err := history.Commissions(ctx, agent, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	for _, e := range commissions {
		assert.Equal(t, domain.EntryCommission, e.Type)
		assert.Equal(t, agent, e.To)
	}
}

func TestAdminDashboardAndLedgerListing(t *testing.T) {
	store, eng := newTestEngine(t)
	admin := NewAdminService(store, decimal.RequireFromString("1.5"))
	ctx := context.Background()

	seedHolder(t, store, eng, "rina", "01711000001", seedOpts{role: domain.RoleUser, balance: 10_000})
	agent := seedHolder(t, store, eng, "booth", "01811000001", seedOpts{role: domain.RoleAgent, rate: "1.5", balance: 50_000})

	_, err := eng.CashIn(ctx, agent, "01711000001", 2_000)
	require.NoError(t, err)

	// 1. Counters cover holders, ledger size and customer money. The two
	// seed deposits plus the cash-in pair and its commission make five
	// entries; the float's -30 is its own position and stays out of the
	// balance sum.
	dash, err := admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.Stats.TotalUsers)
	assert.Equal(t, int64(1), dash.Stats.TotalAgents)
	assert.Equal(t, int64(5), dash.Stats.TotalEntries)
	assert.Equal(t, int64(60_030), dash.Stats.TotalBalance)

	// 2. Recent activity is capped at five, newest first.
	require.NotEmpty(t, dash.Recent)
	assert.LessOrEqual(t, len(dash.Recent), 5)
	assert.Equal(t, domain.EntryCommission, dash.Recent[0].Type)

	// 3. The full ledger listing pages through everything.
	entries, page, err := admin.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, entries, 5)
}

func TestPaginationMath(t *testing.T) {
	p := paginate(0, 0, 25)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, int64(3), p.Pages)

	p = paginate(2, 10, 20)
	assert.Equal(t, int64(2), p.Pages)

	p = paginate(1, 500, 5)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, int64(1), p.Pages)
}
