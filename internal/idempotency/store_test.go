package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestReserveAndFinalize(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "key-1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	require.True(t, ok)

	// Second reservation of the same key loses.
	ok, err = store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	assert.False(t, ok)

	// While reserved, lookups see an in-flight request.
	_, err = store.Lookup(ctx, "key-1", "hash-a")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "key-1", "hash-a", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	rec, err = store.Lookup(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))
	assert.Equal(t, "redis", rec.ServedBy)
}

func TestHashMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	require.True(t, ok)

	// Same key, different body.
	_, err = store.Lookup(ctx, "key-1", "hash-b")
	require.ErrorIs(t, err, ErrHashMismatch)
	_, err = store.Finalize(ctx, "key-1", "hash-b", 200, nil, "application/json")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestReservationExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Hour)

	_, err = store.Lookup(ctx, "key-1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)
	ok, err = store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForCompletion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/wallet/send")
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(120 * time.Millisecond)
		_, _ = store.Finalize(ctx, "key-1", "hash-a", 200, []byte(`{}`), "application/json")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := store.WaitForCompletion(waitCtx, "key-1", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
	<-done
}
