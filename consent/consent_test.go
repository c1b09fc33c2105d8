package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth2-server/consent"
	"github.com/stretchr/testify/require"
)

func TestStore_ApprovalLifecycle(t *testing.T) {
	ctx := context.Background()
	store := consent.NewStore(consent.NewInMemoryRepo())

	t.Run("no consent yet", func(t *testing.T) {
		approved, err := store.Approved(ctx, "user-1", "web")
		require.NoError(t, err)
		require.Empty(t, approved)
	})

	t.Run("first approval", func(t *testing.T) {
		require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"read"}))

		approved, err := store.Approved(ctx, "user-1", "web")
		require.NoError(t, err)
		require.Equal(t, []string{"read"}, approved)
	})

	t.Run("second approval merges instead of replacing", func(t *testing.T) {
		require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"write"}))

		approved, err := store.Approved(ctx, "user-1", "web")
		require.NoError(t, err)
		require.Equal(t, []string{"read", "write"}, approved)
	})

	t.Run("re-approving an existing scope changes nothing", func(t *testing.T) {
		require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"read"}))

		approved, err := store.Approved(ctx, "user-1", "web")
		require.NoError(t, err)
		require.Equal(t, []string{"read", "write"}, approved)
	})

	t.Run("revoke clears everything", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "user-1", "web"))

		approved, err := store.Approved(ctx, "user-1", "web")
		require.NoError(t, err)
		require.Empty(t, approved)
	})
}

func TestStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := consent.NewStore(consent.NewInMemoryRepo())
	require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"read"}))

	t.Run("covered request needs no prompt", func(t *testing.T) {
		missing, err := store.Missing(ctx, "user-1", "web", []string{"read"})
		require.NoError(t, err)
		require.Empty(t, missing)
	})

	t.Run("wider request reports only the new scopes", func(t *testing.T) {
		missing, err := store.Missing(ctx, "user-1", "web", []string{"read", "write"})
		require.NoError(t, err)
		require.Equal(t, []string{"write"}, missing)
	})

	t.Run("consent is per client", func(t *testing.T) {
		missing, err := store.Missing(ctx, "user-1", "other-app", []string{"read"})
		require.NoError(t, err)
		require.Equal(t, []string{"read"}, missing)
	})

	t.Run("consent is per subject", func(t *testing.T) {
		missing, err := store.Missing(ctx, "user-2", "web", []string{"read"})
		require.NoError(t, err)
		require.Equal(t, []string{"read"}, missing)
	})
}

func TestStore_Timestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := consent.NewInMemoryRepo()
	store := consent.NewStore(repo, consent.WithNowTime(func() time.Time { return now }))

	require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"read"}))

	record, err := repo.Get(ctx, "user-1", "web")
	require.NoError(t, err)
	require.Equal(t, now, record.GrantedAt)
	require.Equal(t, now, record.UpdatedAt)

	// A later merge should move UpdatedAt but keep the original GrantedAt.
	later := now.Add(time.Hour)
	store = consent.NewStore(repo, consent.WithNowTime(func() time.Time { return later }))
	require.NoError(t, store.RecordApproval(ctx, "user-1", "web", []string{"write"}))

	record, err = repo.Get(ctx, "user-1", "web")
	require.NoError(t, err)
	require.Equal(t, now, record.GrantedAt)
	require.Equal(t, later, record.UpdatedAt)
}
