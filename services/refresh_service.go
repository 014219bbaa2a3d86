package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/framerate-dev/tokenvault/domain"
	autherrors "github.com/framerate-dev/tokenvault/errors"
	"github.com/framerate-dev/tokenvault/internal/devicesecret"
	"github.com/framerate-dev/tokenvault/workos"
)

// TokenExchanger redeems a refresh token at the identity provider.
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*workos.ExchangeResult, error)
}

// RefreshInput identifies the caller of a refresh attempt. UserID is set only
// when a verified identity is attached to the call; unauthenticated callers
// supply SessionID instead.
type RefreshInput struct {
	UserID       string
	SessionID    string
	DeviceSecret string
}

// RefreshResult is what a successful refresh returns to the client. The
// stored refresh token is never part of it.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// RefreshService runs the refresh state machine: resolve the session, verify
// the device binding, exchange the stored refresh token, apply rotation,
// respond. Failures at each step map to a distinct AuthError code.
//
// Two near-simultaneous attempts for the same session may both reach the
// exchange with the same stored token; the provider rejects the loser as
// revoked or reused and the session is torn down. That race is accepted, the
// provider is the source of truth for token validity.
type RefreshService struct {
	sessions  domain.SessionRepository
	exchanger TokenExchanger
}

// NewRefreshService creates a RefreshService.
func NewRefreshService(sessions domain.SessionRepository, exchanger TokenExchanger) *RefreshService {
	return &RefreshService{
		sessions:  sessions,
		exchanger: exchanger,
	}
}

// Refresh exchanges the caller's stored refresh token for a fresh access
// token. Errors of type *autherrors.AuthError are client-facing; anything
// else is an internal failure.
func (s *RefreshService) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	session, err := s.resolveSession(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.verifyDevice(ctx, session, in.DeviceSecret); err != nil {
		return nil, err
	}

	result, err := s.exchanger.Refresh(ctx, session.RefreshToken)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID).Msg("token exchange could not be carried out")
		return nil, autherrors.NewProviderError("Token refresh failed")
	}

	switch result.Outcome {
	case workos.OutcomeSuccess:
		// fallthrough to rotation below
	case workos.OutcomeRevoked:
		s.deleteSession(ctx, session.UserID)
		log.Info().Str("user_id", session.UserID).Msg("refresh token revoked or expired, session deleted")
		return nil, autherrors.NewTokenRevoked()
	case workos.OutcomeReuseDetected:
		s.deleteSession(ctx, session.UserID)
		log.Warn().Str("user_id", session.UserID).Msg("refresh token reuse detected, session deleted")
		return nil, autherrors.NewTokenReuseDetected()
	case workos.OutcomeMalformedSuccess:
		return nil, autherrors.NewProviderError("No access token in response")
	case workos.OutcomeProviderError:
		return nil, autherrors.NewProviderError(result.Reason)
	default:
		return nil, autherrors.NewProviderError("unexpected exchange outcome")
	}

	if err := s.applyRotation(ctx, session, result); err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
	}, nil
}

func (s *RefreshService) resolveSession(ctx context.Context, in RefreshInput) (*domain.Session, error) {
	var (
		session *domain.Session
		err     error
	)

	switch {
	case in.UserID != "":
		session, err = s.sessions.FindByUserID(ctx, in.UserID)
	case in.SessionID != "":
		session, err = s.sessions.FindBySessionID(ctx, in.SessionID)
	default:
		return nil, autherrors.NewNoSession()
	}

	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, autherrors.NewNoSession()
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// verifyDevice fails closed: a missing stored hash or a mismatched secret
// invalidates the whole session, not just this attempt.
func (s *RefreshService) verifyDevice(ctx context.Context, session *domain.Session, deviceSecret string) error {
	if session.DeviceSecretHash == "" || deviceSecret == "" ||
		!devicesecret.Verify(deviceSecret, session.DeviceSecretHash) {
		s.deleteSession(ctx, session.UserID)
		log.Warn().Str("user_id", session.UserID).Msg("device verification failed, session deleted")
		return autherrors.NewInvalidDevice()
	}
	return nil
}

// applyRotation persists a rotated refresh token, remembering the just-used
// token so a later replay of it can be recognized upstream.
func (s *RefreshService) applyRotation(ctx context.Context, session *domain.Session, result *workos.ExchangeResult) error {
	if result.NewRefreshToken == "" || result.NewRefreshToken == session.RefreshToken {
		return nil
	}

	err := s.sessions.Upsert(ctx, domain.SessionUpsert{
		UserID:               session.UserID,
		SessionID:            session.SessionID,
		RefreshToken:         result.NewRefreshToken,
		DeviceSecretHash:     session.DeviceSecretHash,
		PreviousRefreshToken: session.RefreshToken,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID).Msg("failed to persist rotated refresh token")
		return err
	}
	return nil
}

func (s *RefreshService) deleteSession(ctx context.Context, userID string) {
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to delete session")
	}
}
