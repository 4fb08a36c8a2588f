package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/ledger"
)

func TestIntegrityRunClean(t *testing.T) {
	store, eng := newTestEngine(t)
	ctx := context.Background()

	ayesha := seedHolder(t, store, eng, "ayesha", "01711000001", seedOpts{role: domain.RoleUser, balance: 1_000})
	seedHolder(t, store, eng, "babul", "01711000002", seedOpts{role: domain.RoleUser})
	_, err := eng.SendMoney(ctx, ayesha, "01711000002", 100)
	require.NoError(t, err)

	require.NoError(t, NewIntegrityService(store).Run(ctx))
}

func TestIntegrityDetectsDrift(t *testing.T) {
	store, eng := newTestEngine(t)
	ctx := context.Background()

	user := seedHolder(t, store, eng, "user", "01711000001", seedOpts{role: domain.RoleUser, balance: 1_000})

	// Mutate the balance without a matching entry, as a corrupted write
	// would.
	err := store.RunInTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.ApplyDelta(ctx, user, 500)
		return err
	})
	require.NoError(t, err)

	drifts, err := store.LedgerDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, user, drifts[0].Holder)
	assert.Equal(t, int64(1_500), drifts[0].Balance)
	assert.Equal(t, int64(1_000), drifts[0].Replayed)

	// Run reports the drift without failing.
	require.NoError(t, NewIntegrityService(store).Run(ctx))
}
