// Package memstore provides an in-memory domain.SessionRepository, used for
// development and tests. Semantics mirror the MongoDB implementation.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framerate-dev/tokenvault/domain"
)

// SessionRepository keeps sessions in two maps, one per lookup key, guarded
// by a single mutex so both indexes stay consistent.
type SessionRepository struct {
	mu        sync.RWMutex
	byUser    map[string]*domain.Session
	bySession map[string]string // sessionID -> userID
}

// NewSessionRepository creates an empty in-memory repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byUser:    make(map[string]*domain.Session),
		bySession: make(map[string]string),
	}
}

func (r *SessionRepository) FindByUserID(_ context.Context, userID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *SessionRepository) FindBySessionID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.bySession[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *SessionRepository) Upsert(_ context.Context, up domain.SessionUpsert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	existing, ok := r.byUser[up.UserID]
	if !ok {
		session := &domain.Session{
			ID:               uuid.NewString(),
			UserID:           up.UserID,
			SessionID:        up.SessionID,
			RefreshToken:     up.RefreshToken,
			DeviceSecretHash: up.DeviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		r.byUser[up.UserID] = session
		r.bySession[up.SessionID] = up.UserID
		return nil
	}

	delete(r.bySession, existing.SessionID)
	if up.PreviousRefreshToken != "" {
		existing.PreviousRefreshToken = up.PreviousRefreshToken
		existing.RotatedAt = &now
	} else {
		existing.PreviousRefreshToken = existing.RefreshToken
	}
	existing.RefreshToken = up.RefreshToken
	existing.SessionID = up.SessionID
	existing.DeviceSecretHash = up.DeviceSecretHash
	existing.UpdatedAt = now
	r.bySession[up.SessionID] = up.UserID
	return nil
}

func (r *SessionRepository) StoreInitial(_ context.Context, userID, sessionID, refreshToken, deviceSecretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	existing, ok := r.byUser[userID]
	if !ok {
		session := &domain.Session{
			ID:               uuid.NewString(),
			UserID:           userID,
			SessionID:        sessionID,
			RefreshToken:     refreshToken,
			DeviceSecretHash: deviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		r.byUser[userID] = session
		r.bySession[sessionID] = userID
		return nil
	}

	delete(r.bySession, existing.SessionID)
	existing.SessionID = sessionID
	existing.RefreshToken = refreshToken
	existing.DeviceSecretHash = deviceSecretHash
	existing.UpdatedAt = now
	r.bySession[sessionID] = userID
	return nil
}

func (r *SessionRepository) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.byUser[userID]; ok {
		delete(r.bySession, session.SessionID)
		delete(r.byUser, userID)
	}
	return nil
}

func (r *SessionRepository) DeleteBySessionID(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID, ok := r.bySession[sessionID]; ok {
		delete(r.bySession, sessionID)
		delete(r.byUser, userID)
	}
	return nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
