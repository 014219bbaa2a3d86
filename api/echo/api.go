// Package echo exposes the session API over HTTP. The refresh endpoint is
// deliberately unauthenticated: it exists for clients whose access token is
// already unusable, so the session id plus device secret stand in for
// identity.
package echo

import (
	goerrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/framerate-dev/tokenvault/api"
	"github.com/framerate-dev/tokenvault/errors"
	"github.com/framerate-dev/tokenvault/middleware"
	"github.com/framerate-dev/tokenvault/services"
)

// AuthAPI holds the session API's dependencies.
type AuthAPI struct {
	refreshService *services.RefreshService
	sessionService *services.SessionService
}

// NewAuthAPI initializes the session API.
func NewAuthAPI(refreshService *services.RefreshService, sessionService *services.SessionService) *AuthAPI {
	return &AuthAPI{
		refreshService: refreshService,
		sessionService: sessionService,
	}
}

// RegisterRoutes registers the public refresh endpoint and the authenticated
// session-lifecycle endpoints.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo, requireAuth echo.MiddlewareFunc) {
	e.POST("/api/auth/refresh", a.RefreshHandler)

	authed := e.Group("/api/auth", requireAuth)
	authed.POST("/session", a.StoreSessionHandler)
	authed.POST("/session/refresh", a.AuthenticatedRefreshHandler)
	authed.GET("/session", a.HasSessionHandler)
	authed.POST("/logout", a.LogoutHandler)
}

// RefreshHandler handles POST /api/auth/refresh. No bearer token is required;
// the session is resolved purely by session id.
func (a *AuthAPI) RefreshHandler(c echo.Context) error {
	var req api.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("sessionId is required"))
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("sessionId is required"))
	}
	if req.DeviceSecret == "" {
		return c.JSON(http.StatusUnauthorized, &errors.AuthError{
			Code:        errors.CodeInvalidDevice,
			Description: "deviceSecret is required",
		})
	}

	result, err := a.refreshService.Refresh(c.Request().Context(), services.RefreshInput{
		SessionID:    req.SessionID,
		DeviceSecret: req.DeviceSecret,
	})
	if err != nil {
		return a.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// AuthenticatedRefreshHandler refreshes using the verified caller identity.
// A body session id is honored only as a fallback lookup key.
func (a *AuthAPI) AuthenticatedRefreshHandler(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errors.NewUnauthorized("Not authenticated"))
	}

	var req api.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("invalid request body"))
	}

	result, err := a.refreshService.Refresh(c.Request().Context(), services.RefreshInput{
		UserID:       identity.UserID,
		SessionID:    req.SessionID,
		DeviceSecret: req.DeviceSecret,
	})
	if err != nil {
		return a.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// StoreSessionHandler stores the refresh credential right after login.
func (a *AuthAPI) StoreSessionHandler(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errors.NewUnauthorized("Not authenticated"))
	}

	var req api.StoreSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("invalid request body"))
	}

	err := a.sessionService.StoreInitial(c.Request().Context(), identity.UserID, req.SessionID, req.RefreshToken, req.DeviceSecret)
	if err != nil {
		return a.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, api.SuccessResponse{Success: true})
}

// HasSessionHandler reports whether a stored session exists for the caller,
// without contacting the identity provider.
func (a *AuthAPI) HasSessionHandler(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errors.NewUnauthorized("Not authenticated"))
	}

	status, err := a.sessionService.HasValidSession(c.Request().Context(), identity.UserID)
	if err != nil {
		return a.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// LogoutHandler deletes the caller's session. Always succeeds, including for
// callers who are already logged out.
func (a *AuthAPI) LogoutHandler(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusOK, api.SuccessResponse{Success: true})
	}

	if err := a.sessionService.Logout(c.Request().Context(), identity.UserID); err != nil {
		return a.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, api.SuccessResponse{Success: true})
}

// statusByCode fixes the HTTP status for each failure code.
var statusByCode = map[string]int{
	errors.CodeInvalidRequest:     http.StatusBadRequest,
	errors.CodeUnauthorized:       http.StatusUnauthorized,
	errors.CodeInvalidDevice:      http.StatusUnauthorized,
	errors.CodeNoSession:          http.StatusNotFound,
	errors.CodeTokenRevoked:       http.StatusUnauthorized,
	errors.CodeTokenReuseDetected: http.StatusUnauthorized,
	errors.CodeProviderError:      http.StatusBadGateway,
	errors.CodeServerError:        http.StatusInternalServerError,
}

// writeAuthError translates a service failure into the fixed status/code
// table. Unexpected errors surface as SERVER_ERROR without detail leakage.
func (a *AuthAPI) writeAuthError(c echo.Context, err error) error {
	var authErr *errors.AuthError
	if goerrors.As(err, &authErr) {
		status, ok := statusByCode[authErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, authErr)
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error in session API")
	return c.JSON(http.StatusInternalServerError, errors.NewServerError("Internal server error"))
}
