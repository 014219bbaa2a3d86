package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framerate-dev/tokenvault/domain"
	"github.com/framerate-dev/tokenvault/internal/devicesecret"
	"github.com/framerate-dev/tokenvault/memstore"
	"github.com/framerate-dev/tokenvault/middleware"
	"github.com/framerate-dev/tokenvault/services"
	"github.com/framerate-dev/tokenvault/workos"
)

// stubExchanger returns a canned exchange result.
type stubExchanger struct {
	result *workos.ExchangeResult
	err    error
}

func (s *stubExchanger) Refresh(context.Context, string) (*workos.ExchangeResult, error) {
	return s.result, s.err
}

// stubIdentity injects a verified caller without running JWT verification.
func stubIdentity(userID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetIdentity(c, &middleware.Identity{UserID: userID})
			return next(c)
		}
	}
}

func newTestServer(t *testing.T, repo domain.SessionRepository, exchanger services.TokenExchanger, userID string) *echo.Echo {
	t.Helper()

	e := echo.New()
	authAPI := NewAuthAPI(services.NewRefreshService(repo, exchanger), services.NewSessionService(repo))
	authAPI.RegisterRoutes(e, stubIdentity(userID))
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestRefreshEndpointValidation(t *testing.T) {
	e := newTestServer(t, memstore.NewSessionRepository(), &stubExchanger{}, "u1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"empty sessionId", `{"sessionId":"","deviceSecret":"x"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong-typed sessionId", `{"sessionId":42,"deviceSecret":"x"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing deviceSecret", `{"sessionId":"sid1"}`, http.StatusUnauthorized, "INVALID_DEVICE"},
		{"unknown session", `{"sessionId":"sid1","deviceSecret":"x"}`, http.StatusNotFound, "NO_SESSION"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := doJSON(t, e, http.MethodPost, "/api/auth/refresh", tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, body["code"])
		})
	}
}

func TestRefreshEndpointSuccess(t *testing.T) {
	repo := memstore.NewSessionRepository()
	require.NoError(t, repo.StoreInitial(context.Background(), "u1", "sid1", "old", devicesecret.Hash("d1")))

	exchanger := &stubExchanger{result: &workos.ExchangeResult{
		Outcome:         workos.OutcomeSuccess,
		AccessToken:     "abc",
		NewRefreshToken: "new",
		ExpiresIn:       300,
	}}
	e := newTestServer(t, repo, exchanger, "u1")

	rec, body := doJSON(t, e, http.MethodPost, "/api/auth/refresh", `{"sessionId":"sid1","deviceSecret":"d1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", body["accessToken"])
	assert.Equal(t, float64(300), body["expiresIn"])

	// The refresh token itself must never appear in the response.
	assert.NotContains(t, rec.Body.String(), "new")
	assert.NotContains(t, rec.Body.String(), "old")

	session, err := repo.FindByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", session.RefreshToken)
	assert.Equal(t, "old", session.PreviousRefreshToken)
}

func TestRefreshEndpointFailureCodes(t *testing.T) {
	tests := []struct {
		name       string
		result     *workos.ExchangeResult
		wantStatus int
		wantCode   string
		wantGone   bool
	}{
		{
			"revoked", &workos.ExchangeResult{Outcome: workos.OutcomeRevoked},
			http.StatusUnauthorized, "TOKEN_REVOKED", true,
		},
		{
			"reuse detected", &workos.ExchangeResult{Outcome: workos.OutcomeReuseDetected},
			http.StatusUnauthorized, "TOKEN_REUSE_DETECTED", true,
		},
		{
			"provider error", &workos.ExchangeResult{Outcome: workos.OutcomeProviderError, Reason: "upstream sad"},
			http.StatusBadGateway, "WORKOS_ERROR", false,
		},
		{
			"malformed success", &workos.ExchangeResult{Outcome: workos.OutcomeMalformedSuccess},
			http.StatusBadGateway, "WORKOS_ERROR", false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := memstore.NewSessionRepository()
			require.NoError(t, repo.StoreInitial(context.Background(), "u1", "sid1", "rt1", devicesecret.Hash("d1")))
			e := newTestServer(t, repo, &stubExchanger{result: tc.result}, "u1")

			rec, body := doJSON(t, e, http.MethodPost, "/api/auth/refresh", `{"sessionId":"sid1","deviceSecret":"d1"}`)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, body["code"])

			_, err := repo.FindByUserID(context.Background(), "u1")
			if tc.wantGone {
				assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRefreshEndpointWrongDeviceSecret(t *testing.T) {
	repo := memstore.NewSessionRepository()
	require.NoError(t, repo.StoreInitial(context.Background(), "u1", "sid1", "rt1", devicesecret.Hash("d1")))
	e := newTestServer(t, repo, &stubExchanger{}, "u1")

	rec, body := doJSON(t, e, http.MethodPost, "/api/auth/refresh", `{"sessionId":"sid1","deviceSecret":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_DEVICE", body["code"])

	_, err := repo.FindByUserID(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStoreSessionThenHasSessionAndLogout(t *testing.T) {
	repo := memstore.NewSessionRepository()
	e := newTestServer(t, repo, &stubExchanger{}, "u1")

	rec, body := doJSON(t, e, http.MethodPost, "/api/auth/session",
		`{"refreshToken":"rt1","sessionId":"sid1","deviceSecret":"d1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/auth/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["hasSession"])
	assert.Equal(t, "sid1", body["sessionId"])
	assert.NotContains(t, rec.Body.String(), "rt1")

	rec, body = doJSON(t, e, http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	// Logging out again still succeeds.
	rec, body = doJSON(t, e, http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/auth/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["hasSession"])
}

func TestAuthenticatedRefreshUsesIdentityLookup(t *testing.T) {
	repo := memstore.NewSessionRepository()
	require.NoError(t, repo.StoreInitial(context.Background(), "u1", "sid1", "rt1", devicesecret.Hash("d1")))

	exchanger := &stubExchanger{result: &workos.ExchangeResult{
		Outcome:     workos.OutcomeSuccess,
		AccessToken: "abc",
		ExpiresIn:   900,
	}}
	e := newTestServer(t, repo, exchanger, "u1")

	// No sessionId in the body; the verified identity resolves the session.
	rec, body := doJSON(t, e, http.MethodPost, "/api/auth/session/refresh", `{"deviceSecret":"d1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", body["accessToken"])
	assert.Equal(t, float64(900), body["expiresIn"])
}
