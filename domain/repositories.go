package domain

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by repository lookups when no session exists
// for the given key. Callers distinguish it from infrastructure failures with
// errors.Is.
var ErrSessionNotFound = errors.New("session not found")

// SessionUpsert carries the fields written by a rotation-aware upsert.
type SessionUpsert struct {
	UserID           string
	SessionID        string
	RefreshToken     string
	DeviceSecretHash string
	// PreviousRefreshToken, when non-empty, marks this upsert as an actual
	// rotation: the value is persisted as the superseded token and RotatedAt
	// is stamped. When empty and a session already exists, the session's
	// current refresh token is preserved as the previous one, but RotatedAt
	// is left untouched.
	PreviousRefreshToken string
}

// SessionRepository is the storage contract for the one-session-per-user
// model. All mutations are atomic per document; deletes are idempotent.
type SessionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*Session, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Session, error)

	// Upsert applies the rotation-aware write semantics described on
	// SessionUpsert. Inserting a fresh session leaves PreviousRefreshToken
	// and RotatedAt unset.
	Upsert(ctx context.Context, up SessionUpsert) error

	// StoreInitial records the post-login handoff: refresh token, provider
	// session id and device-secret hash overwrite any existing record for
	// the user without touching the rotation bookkeeping fields.
	StoreInitial(ctx context.Context, userID, sessionID, refreshToken, deviceSecretHash string) error

	DeleteByUserID(ctx context.Context, userID string) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
}
