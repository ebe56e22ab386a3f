package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datarightlab/fapi-op/pkg/oidc"
	"github.com/datarightlab/fapi-op/pkg/op"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewWithInterval(time.Hour)
	t.Cleanup(s.Stop)
	return s
}

func TestClientRegistration(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	s.RegisterClient(&Client{ID: "client-1"})
	s.RegisterClient(&Client{ID: "client-off", Disabled: true})

	client, err := s.GetEnabledClientByID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", client.GetID())

	_, err = s.GetEnabledClientByID(ctx, "client-off")
	assert.Error(t, err)
	_, err = s.GetEnabledClientByID(ctx, "client-unknown")
	assert.Error(t, err)
}

func TestStatusLookupDefaultsToActive(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	status, err := s.GetSoftwareProductStatus(ctx, "unregistered")
	require.NoError(t, err)
	assert.Equal(t, op.StatusActive, status)

	s.SetStatus("sp-1", op.StatusRemoved)
	status, err = s.GetSoftwareProductStatus(ctx, "sp-1")
	require.NoError(t, err)
	assert.Equal(t, op.StatusRemoved, status)
}

func TestTryAddConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := s.TryAdd(ctx, "jti-1", time.Now().Add(time.Minute))
			assert.NoError(t, err)
			results <- added
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for added := range results {
		if added {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent presentation may win")

	found, err := s.TryFind(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTryAddExpiredEntryReusable(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	added, err := s.TryAdd(ctx, "jti-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, added)

	// the first entry has expired, so the jti may be accepted again
	added, err = s.TryAdd(ctx, "jti-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestDeleteArrangementIfOwned(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreateArrangement(ctx, &op.ArrangementGrant{ID: "arr-1", ClientID: "client-1"}))

	deleted, err := s.DeleteArrangementIfOwned(ctx, "arr-1", "client-2")
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = s.GetArrangement(ctx, "arr-1")
	assert.NoError(t, err)

	deleted, err = s.DeleteArrangementIfOwned(ctx, "arr-1", "client-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = s.GetArrangement(ctx, "arr-1")
	assert.ErrorIs(t, err, op.ErrArrangementNotFound)

	deleted, err = s.DeleteArrangementIfOwned(ctx, "arr-1", "client-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteRelatedGrants(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{ID: "rt-1", ArrangementID: "arr-1", ClientID: "client-1"}))
	require.NoError(t, s.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{ID: "rt-2", ArrangementID: "arr-1", ClientID: "client-1"}))
	require.NoError(t, s.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{ID: "rt-3", ArrangementID: "arr-2", ClientID: "client-1"}))

	require.NoError(t, s.DeleteRelatedGrants(ctx, "arr-1"))

	_, err := s.GetRefreshTokenGrant(ctx, "rt-1")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
	_, err = s.GetRefreshTokenGrant(ctx, "rt-2")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
	_, err = s.GetRefreshTokenGrant(ctx, "rt-3")
	assert.NoError(t, err)
}

func TestStoredGrantsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	original := &op.ArrangementGrant{ID: "arr-1", ClientID: "client-1"}
	require.NoError(t, s.CreateArrangement(ctx, original))
	original.ClientID = "mutated"

	grant, err := s.GetArrangement(ctx, "arr-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", grant.ClientID)

	grant.ClientID = "mutated-again"
	grant, err = s.GetArrangement(ctx, "arr-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", grant.ClientID)
}

func TestConsumePARSingleUse(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	request := &oidc.AuthRequest{ClientID: "client-1"}
	require.NoError(t, s.StorePAR(ctx, "urn:ietf:params:oauth:request_uri:abc", request, time.Now().Add(time.Minute)))

	consumed, err := s.ConsumePAR(ctx, "urn:ietf:params:oauth:request_uri:abc")
	require.NoError(t, err)
	assert.Equal(t, "client-1", consumed.ClientID)

	_, err = s.ConsumePAR(ctx, "urn:ietf:params:oauth:request_uri:abc")
	assert.Error(t, err)
}

func TestConsumePARExpired(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.StorePAR(ctx, "urn:ietf:params:oauth:request_uri:old", &oidc.AuthRequest{}, time.Now().Add(-time.Second)))

	_, err := s.ConsumePAR(ctx, "urn:ietf:params:oauth:request_uri:old")
	assert.Error(t, err)

	// an expired request_uri is consumed by the failed attempt as well
	_, err = s.ConsumePAR(ctx, "urn:ietf:params:oauth:request_uri:old")
	assert.Error(t, err)
}

func TestCleanupPurgesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreateArrangement(ctx, &op.ArrangementGrant{ID: "arr-old", ClientID: "client-1", Expiry: time.Now().Add(-time.Hour)}))
	require.NoError(t, s.CreateArrangement(ctx, &op.ArrangementGrant{ID: "arr-live", ClientID: "client-1"}))
	require.NoError(t, s.CreateRefreshTokenGrant(ctx, &op.RefreshTokenGrant{ID: "rt-old", ClientID: "client-1", Expiry: time.Now().Add(-time.Hour)}))
	_, err := s.TryAdd(ctx, "jti-old", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	s.cleanup()

	_, err = s.GetArrangement(ctx, "arr-old")
	assert.ErrorIs(t, err, op.ErrArrangementNotFound)
	_, err = s.GetArrangement(ctx, "arr-live")
	assert.NoError(t, err)
	_, err = s.GetRefreshTokenGrant(ctx, "rt-old")
	assert.ErrorIs(t, err, op.ErrGrantNotFound)
	found, err := s.TryFind(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, found)
}
