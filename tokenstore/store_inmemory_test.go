package tokenstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth2-server/tokenstore"
	"github.com/stretchr/testify/require"
)

func accessRecord(jti, parent string) *tokenstore.Record {
	return &tokenstore.Record{
		JTI:       jti,
		Kind:      tokenstore.KindAccess,
		ClientID:  "web-client",
		Subject:   "user-1",
		Scopes:    []string{"openid"},
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
		ParentJTI: parent,
	}
}

func refreshRecord(jti, value string) *tokenstore.Record {
	return &tokenstore.Record{
		JTI:         jti,
		Kind:        tokenstore.KindRefresh,
		ValueHash:   tokenstore.HashValue(value),
		ClientID:    "web-client",
		Subject:     "user-1",
		Scopes:      []string{"openid"},
		GrantScopes: []string{"openid", "profile"},
		IssuedAt:    time.Now(),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
}

func TestInMemoryStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()

	require.NoError(t, store.Put(ctx, accessRecord("at-1", "")))

	t.Run("by JTI", func(t *testing.T) {
		record, err := store.GetByJTI(ctx, "at-1")
		require.NoError(t, err)
		require.Equal(t, tokenstore.KindAccess, record.Kind)
		require.False(t, record.Revoked)
		require.True(t, record.Active(time.Now()))
	})

	t.Run("unknown JTI", func(t *testing.T) {
		_, err := store.GetByJTI(ctx, "missing")
		require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
	})

	t.Run("by value hash", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, refreshRecord("rt-1", "opaque-value")))

		record, err := store.GetByValueHash(ctx, tokenstore.HashValue("opaque-value"))
		require.NoError(t, err)
		require.Equal(t, "rt-1", record.JTI)
	})

	t.Run("raw value is never a key", func(t *testing.T) {
		_, err := store.GetByValueHash(ctx, "opaque-value")
		require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
	})
}

func TestInMemoryStore_Revoke(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()
	require.NoError(t, store.Put(ctx, accessRecord("at-1", "")))

	require.NoError(t, store.Revoke(ctx, "at-1"))

	record, err := store.GetByJTI(ctx, "at-1")
	require.NoError(t, err)
	require.True(t, record.Revoked)
	require.False(t, record.RevokedAt.IsZero())
	require.False(t, record.Active(time.Now()))

	t.Run("revoking twice is a no-op", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "at-1"))
	})

	t.Run("revoking unknown token fails", func(t *testing.T) {
		require.ErrorIs(t, store.Revoke(ctx, "missing"), tokenstore.ErrTokenNotFound)
	})
}

func TestInMemoryStore_RevokeByParent(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()

	require.NoError(t, store.Put(ctx,
		refreshRecord("rt-1", "value-1"),
		accessRecord("at-1", "rt-1"),
		accessRecord("at-2", "rt-1"),
		accessRecord("at-3", "other-parent"),
	))

	count, err := store.RevokeByParent(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	for _, jti := range []string{"at-1", "at-2"} {
		record, err := store.GetByJTI(ctx, jti)
		require.NoError(t, err)
		require.True(t, record.Revoked, jti)
	}

	record, err := store.GetByJTI(ctx, "at-3")
	require.NoError(t, err)
	require.False(t, record.Revoked)

	t.Run("empty parent matches nothing", func(t *testing.T) {
		count, err := store.RevokeByParent(ctx, "")
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestInMemoryStore_RevokeByClientAndSubject(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()

	other := accessRecord("at-2", "")
	other.ClientID = "other-client"
	other.Subject = "user-2"
	require.NoError(t, store.Put(ctx, accessRecord("at-1", ""), other))

	count, err := store.RevokeByClient(ctx, "web-client")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = store.RevokeBySubject(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestInMemoryStore_Rotate(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()
	require.NoError(t, store.Put(ctx, refreshRecord("rt-1", "value-1")))

	replacement := refreshRecord("rt-2", "value-2")
	replacement.ParentJTI = "rt-1"
	require.NoError(t, store.Rotate(ctx, "rt-1", replacement))

	old, err := store.GetByJTI(ctx, "rt-1")
	require.NoError(t, err)
	require.True(t, old.Revoked)

	fresh, err := store.GetByJTI(ctx, "rt-2")
	require.NoError(t, err)
	require.False(t, fresh.Revoked)

	t.Run("rotating a rotated token fails", func(t *testing.T) {
		err := store.Rotate(ctx, "rt-1", refreshRecord("rt-3", "value-3"))
		require.ErrorIs(t, err, tokenstore.ErrTokenRevoked)
	})

	t.Run("rotating an unknown token fails", func(t *testing.T) {
		err := store.Rotate(ctx, "missing", refreshRecord("rt-4", "value-4"))
		require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
	})
}

// Concurrent rotations of one refresh token: exactly one may win.
func TestInMemoryStore_ConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()
	require.NoError(t, store.Put(ctx, refreshRecord("rt-1", "value-1")))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			replacement := refreshRecord(uuid.New().String(), uuid.New().String())
			replacement.ParentJTI = "rt-1"
			if err := store.Rotate(ctx, "rt-1", replacement); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	close(start)
	wg.Wait()
	require.Equal(t, 1, winners)
}

func TestInMemoryStore_JanitorPrunesExpired(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	current := now
	nowFunc := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	store := tokenstore.NewInMemoryStore(tokenstore.WithNowTime(nowFunc))

	expired := accessRecord("at-old", "")
	expired.ExpiresAt = now.Add(time.Minute)
	fresh := accessRecord("at-new", "")
	fresh.ExpiresAt = now.Add(time.Hour)
	require.NoError(t, store.Put(ctx, expired, fresh))

	mu.Lock()
	current = now.Add(10 * time.Minute)
	mu.Unlock()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- store.RunJanitor(janitorCtx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := store.GetByJTI(ctx, "at-old")
		return err == tokenstore.ErrTokenNotFound
	}, time.Second, 10*time.Millisecond)

	_, err := store.GetByJTI(ctx, "at-new")
	require.NoError(t, err)

	stopJanitor()
	require.NoError(t, <-done)
}

func TestHashValue(t *testing.T) {
	require.Equal(t, tokenstore.HashValue("abc"), tokenstore.HashValue("abc"))
	require.NotEqual(t, tokenstore.HashValue("abc"), tokenstore.HashValue("abd"))
	require.NotContains(t, tokenstore.HashValue("abc"), "abc")
}
