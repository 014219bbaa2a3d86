package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/framerate-dev/tokenvault/domain"
	autherrors "github.com/framerate-dev/tokenvault/errors"
	"github.com/framerate-dev/tokenvault/internal/devicesecret"
)

// SessionStatus reports whether a stored session exists for a user, without
// contacting the identity provider. Clients use it to decide whether a
// refresh attempt is worth making.
type SessionStatus struct {
	HasSession bool   `json:"hasSession"`
	SessionID  string `json:"sessionId,omitempty"`
}

// SessionService covers the authenticated session-lifecycle operations that
// bracket the refresh flow: the post-login handoff and logout.
type SessionService struct {
	sessions domain.SessionRepository
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions domain.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

// StoreInitial records the refresh token handed over right after login,
// binding it to the caller's device. The client is expected to discard the
// token afterwards.
func (s *SessionService) StoreInitial(ctx context.Context, userID, sessionID, refreshToken, deviceSecret string) error {
	if userID == "" {
		return autherrors.NewUnauthorized("Not authenticated")
	}
	if sessionID == "" || refreshToken == "" || deviceSecret == "" {
		return autherrors.NewInvalidRequest("sessionId, refreshToken and deviceSecret are required")
	}

	hash := devicesecret.Hash(deviceSecret)
	if err := s.sessions.StoreInitial(ctx, userID, sessionID, refreshToken, hash); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to store session")
		return err
	}

	log.Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session stored")
	return nil
}

// Logout deletes the caller's session if present. Idempotent: logging out
// twice, or without a session, still succeeds.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		// Already logged out.
		return nil
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to delete session on logout")
		return err
	}
	return nil
}

// HasValidSession reports whether a session row exists for the user.
func (s *SessionService) HasValidSession(ctx context.Context, userID string) (*SessionStatus, error) {
	if userID == "" {
		return &SessionStatus{HasSession: false}, nil
	}

	session, err := s.sessions.FindByUserID(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return &SessionStatus{HasSession: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SessionStatus{HasSession: true, SessionID: session.SessionID}, nil
}
