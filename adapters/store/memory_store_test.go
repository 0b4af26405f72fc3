package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenlearn/starpass/adapters/store"
	"github.com/lumenlearn/starpass/core"
)

func record(nonce, key string, expiresAt time.Time) core.NonceRecord {
	return core.NonceRecord{Nonce: nonce, PublicKey: key, ExpiresAt: expiresAt}
}

func TestMemoryStoreCreateRejectsDuplicates(t *testing.T) {
	s := store.NewMemoryStore(nil)
	ctx := context.Background()
	expires := time.Now().Add(time.Minute)

	require.NoError(t, s.Create(ctx, record("n1", "GA", expires)))
	require.ErrorIs(t, s.Create(ctx, record("n1", "GB", expires)), core.ErrNonceCollision)
}

func TestMemoryStoreFindActive(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("live", "GA", now.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, record("stale", "GA", now.Add(-time.Minute))))

	_, err := s.FindActive(ctx, "live", "GA")
	require.NoError(t, err)

	// Wrong key, expired row and unknown nonce are all the same outcome.
	_, err = s.FindActive(ctx, "live", "GB")
	require.ErrorIs(t, err, core.ErrNonceNotFound)
	_, err = s.FindActive(ctx, "stale", "GA")
	require.ErrorIs(t, err, core.ErrNonceNotFound)
	_, err = s.FindActive(ctx, "missing", "GA")
	require.ErrorIs(t, err, core.ErrNonceNotFound)

	require.NoError(t, s.MarkUsed(ctx, "live"))
	_, err = s.FindActive(ctx, "live", "GA")
	require.ErrorIs(t, err, core.ErrNonceNotFound)
}

func TestMemoryStoreMarkUsedHasOneWinner(t *testing.T) {
	s := store.NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record("contested", "GA", time.Now().Add(time.Minute))))

	const attempts = 32
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MarkUsed(ctx, "contested")
		}()
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, core.ErrNonceNotFound)
		}
	}
	require.Equal(t, 1, winners)
}

func TestMemoryStoreUpsert(t *testing.T) {
	s := store.NewMemoryStore(nil)
	ctx := context.Background()

	first, err := s.Upsert(ctx, "GA")
	require.NoError(t, err)
	second, err := s.Upsert(ctx, "GA")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	other, err := s.Upsert(ctx, "GB")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("old", "GA", now.Add(-time.Hour))))
	require.NoError(t, s.Create(ctx, record("fresh", "GA", now.Add(time.Hour))))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.FindActive(ctx, "fresh", "GA")
	require.NoError(t, err)
}
