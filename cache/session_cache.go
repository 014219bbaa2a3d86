// Package cache provides a read-through caching decorator for
// domain.SessionRepository, backed by ttlcache.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/framerate-dev/tokenvault/domain"
)

const (
	userKeyPrefix    = "user:"
	sessionKeyPrefix = "sid:"
)

// CachedSessionRepository wraps a repository with a short-lived lookup cache.
// Every mutation invalidates both keys of the affected session, so a refresh
// attempt right after a rotation observes the rotated record.
type CachedSessionRepository struct {
	inner domain.SessionRepository
	cache *ttlcache.Cache[string, *domain.Session]
}

// NewCachedSessionRepository wraps inner with a ttlcache of the given TTL.
//
//nolint:ireturn
func NewCachedSessionRepository(inner domain.SessionRepository, ttl time.Duration) *CachedSessionRepository {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Session](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.Session](),
	)

	// Start the expiration process
	go c.Start()

	return &CachedSessionRepository{
		inner: inner,
		cache: c,
	}
}

func (r *CachedSessionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Session, error) {
	if item := r.cache.Get(userKeyPrefix + userID); item != nil {
		return item.Value(), nil
	}

	session, err := r.inner.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.store(session)
	return session, nil
}

func (r *CachedSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	if item := r.cache.Get(sessionKeyPrefix + sessionID); item != nil {
		return item.Value(), nil
	}

	session, err := r.inner.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.store(session)
	return session, nil
}

func (r *CachedSessionRepository) Upsert(ctx context.Context, up domain.SessionUpsert) error {
	r.invalidateUser(ctx, up.UserID)
	if err := r.inner.Upsert(ctx, up); err != nil {
		return err
	}
	r.cache.Delete(sessionKeyPrefix + up.SessionID)
	return nil
}

func (r *CachedSessionRepository) StoreInitial(ctx context.Context, userID, sessionID, refreshToken, deviceSecretHash string) error {
	r.invalidateUser(ctx, userID)
	if err := r.inner.StoreInitial(ctx, userID, sessionID, refreshToken, deviceSecretHash); err != nil {
		return err
	}
	r.cache.Delete(sessionKeyPrefix + sessionID)
	return nil
}

func (r *CachedSessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	r.invalidateUser(ctx, userID)
	return r.inner.DeleteByUserID(ctx, userID)
}

func (r *CachedSessionRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if session, err := r.inner.FindBySessionID(ctx, sessionID); err == nil {
		r.cache.Delete(userKeyPrefix + session.UserID)
	}
	r.cache.Delete(sessionKeyPrefix + sessionID)
	return r.inner.DeleteBySessionID(ctx, sessionID)
}

// Close stops the expiration goroutine.
func (r *CachedSessionRepository) Close() {
	r.cache.Stop()
}

func (r *CachedSessionRepository) store(session *domain.Session) {
	r.cache.Set(userKeyPrefix+session.UserID, session, ttlcache.DefaultTTL)
	r.cache.Set(sessionKeyPrefix+session.SessionID, session, ttlcache.DefaultTTL)
}

// invalidateUser drops both cache keys of the user's current session. The
// session id key is resolved from the cached record when present.
func (r *CachedSessionRepository) invalidateUser(ctx context.Context, userID string) {
	if item := r.cache.Get(userKeyPrefix + userID); item != nil {
		r.cache.Delete(sessionKeyPrefix + item.Value().SessionID)
	} else if session, err := r.inner.FindByUserID(ctx, userID); err == nil {
		r.cache.Delete(sessionKeyPrefix + session.SessionID)
	}
	r.cache.Delete(userKeyPrefix + userID)
}

var _ domain.SessionRepository = (*CachedSessionRepository)(nil)
