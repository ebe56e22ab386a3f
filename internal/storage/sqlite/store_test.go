package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datarightlab/fapi-op/pkg/op"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.ApplyMigrations())
	return store
}

func TestArrangementLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := &op.ArrangementGrant{
		ID:       "arr-1",
		ClientID: "client-1",
		Subject:  "customer-1",
		Scopes:   []string{"openid", "bank:accounts.basic:read"},
		Expiry:   time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, store.CreateArrangement(ctx, created))

	grant, err := store.GetArrangement(ctx, "arr-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", grant.ClientID)
	assert.Equal(t, "customer-1", grant.Subject)
	assert.Equal(t, []string{"openid", "bank:accounts.basic:read"}, grant.Scopes)
	assert.False(t, grant.Expiry.IsZero())

	_, err = store.GetArrangement(ctx, "arr-unknown")
	assert.ErrorIs(t, err, op.ErrArrangementNotFound)
}

func TestArrangementWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateArrangement(ctx, &op.ArrangementGrant{
		ID:       "arr-1",
		ClientID: "client-1",
		Subject:  "customer-1",
	}))

	grant, err := store.GetArrangement(ctx, "arr-1")
	require.NoError(t, err)
	assert.True(t, grant.Expiry.IsZero())
	assert.Nil(t, grant.Scopes)
}

func TestDeleteArrangementIfOwnedConditional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateArrangement(ctx, &op.ArrangementGrant{
		ID:       "arr-1",
		ClientID: "client-1",
		Subject:  "customer-1",
	}))

	deleted, err := store.DeleteArrangementIfOwned(ctx, "arr-1", "client-2")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteArrangementIfOwned(ctx, "arr-1", "client-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteArrangementIfOwned(ctx, "arr-1", "client-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRefreshTokenGrantCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, grant := range []*op.RefreshTokenGrant{
		{ID: "rt-1", ArrangementID: "arr-1", ClientID: "client-1", Subject: "customer-1"},
		{ID: "rt-2", ArrangementID: "arr-1", ClientID: "client-1", Subject: "customer-1"},
		{ID: "rt-3", ArrangementID: "arr-2", ClientID: "client-1", Subject: "customer-1"},
	} {
		require.NoError(t, store.CreateRefreshTokenGrant(ctx, grant))
	}

	require.NoError(t, store.DeleteRelatedGrants(ctx, "arr-1"))

	_, err := store.GetRefreshTokenGrant(ctx, "rt-1")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
	_, err = store.GetRefreshTokenGrant(ctx, "rt-2")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
	_, err = store.GetRefreshTokenGrant(ctx, "rt-3")
	assert.NoError(t, err)
}

func TestDeleteRefreshTokenGrantIfOwned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{
		ID: "rt-1", ArrangementID: "arr-1", ClientID: "client-1", Subject: "customer-1",
	}))

	deleted, err := store.DeleteRefreshTokenGrantIfOwned(ctx, "rt-1", "client-2")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteRefreshTokenGrantIfOwned(ctx, "rt-1", "client-1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTryAddConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	added, err := store.TryAdd(ctx, "jti-1", time.Now().Add(time.Minute).UTC())
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.TryAdd(ctx, "jti-1", time.Now().Add(time.Minute).UTC())
	require.NoError(t, err)
	assert.False(t, added)

	found, err := store.TryFind(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.TryFind(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expired := time.Now().Add(-time.Hour).UTC()
	live := time.Now().Add(time.Hour).UTC()

	_, err := store.TryAdd(ctx, "jti-old", expired)
	require.NoError(t, err)
	_, err = store.TryAdd(ctx, "jti-new", live)
	require.NoError(t, err)
	require.NoError(t, store.CreateArrangement(ctx, &op.ArrangementGrant{
		ID: "arr-old", ClientID: "client-1", Subject: "customer-1", Expiry: expired,
	}))
	require.NoError(t, store.CreateArrangement(ctx, &op.ArrangementGrant{
		ID: "arr-open", ClientID: "client-1", Subject: "customer-1",
	}))
	require.NoError(t, store.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{
		ID: "rt-old", ArrangementID: "arr-old", ClientID: "client-1", Subject: "customer-1", Expiry: expired,
	}))

	require.NoError(t, store.PurgeExpired(ctx))

	found, err := store.TryFind(ctx, "jti-new")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = store.TryFind(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.GetArrangement(ctx, "arr-old")
	assert.ErrorIs(t, err, op.ErrArrangementNotFound)
	// arrangements without an expiry are never purged
	_, err = store.GetArrangement(ctx, "arr-open")
	assert.NoError(t, err)
	_, err = store.GetRefreshTokenGrant(ctx, "rt-old")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
}
