// Package redisstore implements domain.SessionRepository on Redis, as an
// alternative backend to MongoDB. Each session is stored twice: the full
// record under the user key and a pointer under the provider session id key,
// kept consistent by every mutation.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/framerate-dev/tokenvault/domain"
)

// SessionRepository stores sessions in Redis.
type SessionRepository struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewSessionRepository creates a new [SessionRepository] instance.
func NewSessionRepository(client *redis.Client, prefix string) *SessionRepository {
	return &SessionRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *SessionRepository) userKey(userID string) string {
	return fmt.Sprintf("%s:session:user:%s", r.prefix, userID)
}

func (r *SessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:sid:%s", r.prefix, sessionID)
}

func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	userID, err := r.client.Get(ctx, r.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session pointer from Redis: %w", err)
	}
	return r.FindByUserID(ctx, userID)
}

func (r *SessionRepository) Upsert(ctx context.Context, up domain.SessionUpsert) error {
	now := time.Now().UTC()

	existing, err := r.FindByUserID(ctx, up.UserID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	var session *domain.Session
	if existing == nil {
		session = &domain.Session{
			ID:               uuid.NewString(),
			UserID:           up.UserID,
			SessionID:        up.SessionID,
			RefreshToken:     up.RefreshToken,
			DeviceSecretHash: up.DeviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	} else {
		session = existing
		if up.PreviousRefreshToken != "" {
			session.PreviousRefreshToken = up.PreviousRefreshToken
			session.RotatedAt = &now
		} else {
			session.PreviousRefreshToken = session.RefreshToken
		}
		session.RefreshToken = up.RefreshToken
		session.DeviceSecretHash = up.DeviceSecretHash
		session.UpdatedAt = now
	}

	return r.write(ctx, session, existing, up.SessionID)
}

func (r *SessionRepository) StoreInitial(ctx context.Context, userID, sessionID, refreshToken, deviceSecretHash string) error {
	now := time.Now().UTC()

	existing, err := r.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	var session *domain.Session
	if existing == nil {
		session = &domain.Session{
			ID:               uuid.NewString(),
			UserID:           userID,
			SessionID:        sessionID,
			RefreshToken:     refreshToken,
			DeviceSecretHash: deviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	} else {
		session = existing
		session.RefreshToken = refreshToken
		session.DeviceSecretHash = deviceSecretHash
		session.UpdatedAt = now
	}

	return r.write(ctx, session, existing, sessionID)
}

// write persists the record under both keys in one pipeline, removing a
// stale session-id pointer when the provider session id changed.
func (r *SessionRepository) write(ctx context.Context, session, existing *domain.Session, newSessionID string) error {
	oldSessionID := ""
	if existing != nil {
		oldSessionID = existing.SessionID
	}
	session.SessionID = newSessionID

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	if oldSessionID != "" && oldSessionID != newSessionID {
		pipe.Del(ctx, r.sessionKey(oldSessionID))
	}
	pipe.Set(ctx, r.userKey(session.UserID), payload, 0)
	pipe.Set(ctx, r.sessionKey(newSessionID), session.UserID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session to Redis: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	session, err := r.FindByUserID(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.delete(ctx, session)
}

func (r *SessionRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	session, err := r.FindBySessionID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.delete(ctx, session)
}

func (r *SessionRepository) delete(ctx context.Context, session *domain.Session) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.userKey(session.UserID))
	pipe.Del(ctx, r.sessionKey(session.SessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
