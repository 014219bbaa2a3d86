package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framerate-dev/tokenvault/domain"
	"github.com/framerate-dev/tokenvault/memstore"
)

func newTestCache(t *testing.T) (*CachedSessionRepository, *memstore.SessionRepository) {
	t.Helper()

	inner := memstore.NewSessionRepository()
	cached := NewCachedSessionRepository(inner, time.Minute)
	t.Cleanup(cached.Close)
	return cached, inner
}

func TestReadThroughServesFromCache(t *testing.T) {
	cached, inner := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, inner.StoreInitial(ctx, "u1", "sid1", "rt1", "h1"))

	first, err := cached.FindByUserID(ctx, "u1")
	require.NoError(t, err)

	// Mutating the inner store behind the cache's back must not be visible
	// until the entry expires; that is what the decorator's own mutation
	// methods invalidate explicitly.
	require.NoError(t, inner.DeleteByUserID(ctx, "u1"))

	second, err := cached.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, second.RefreshToken)
}

func TestMutationsInvalidateBothKeys(t *testing.T) {
	cached, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cached.StoreInitial(ctx, "u1", "sid1", "old", "h1"))

	// Warm both cache keys.
	_, err := cached.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	_, err = cached.FindBySessionID(ctx, "sid1")
	require.NoError(t, err)

	require.NoError(t, cached.Upsert(ctx, domain.SessionUpsert{
		UserID:               "u1",
		SessionID:            "sid1",
		RefreshToken:         "new",
		DeviceSecretHash:     "h1",
		PreviousRefreshToken: "old",
	}))

	byUser, err := cached.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", byUser.RefreshToken)

	bySession, err := cached.FindBySessionID(ctx, "sid1")
	require.NoError(t, err)
	assert.Equal(t, "new", bySession.RefreshToken)
}

func TestDeleteInvalidates(t *testing.T) {
	cached, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cached.StoreInitial(ctx, "u1", "sid1", "rt1", "h1"))
	_, err := cached.FindBySessionID(ctx, "sid1")
	require.NoError(t, err)

	require.NoError(t, cached.DeleteBySessionID(ctx, "sid1"))

	_, err = cached.FindBySessionID(ctx, "sid1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = cached.FindByUserID(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
