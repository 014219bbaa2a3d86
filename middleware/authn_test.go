package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "key-1"

func newTestKeyAndJWKS(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKid,
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	raw, err := token.SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestVerifyExtractsIdentity(t *testing.T) {
	key, srv := newTestKeyAndJWKS(t)
	verifier := NewTokenVerifier(srv.URL, WithHTTPClient(srv.Client()))
	t.Cleanup(verifier.Close)

	raw := signToken(t, key, jwt.MapClaims{
		"sub": "user_123",
		"sid": "session_456",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	identity, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user_123", identity.UserID)
	assert.Equal(t, "session_456", identity.SessionID)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key, srv := newTestKeyAndJWKS(t)
	verifier := NewTokenVerifier(srv.URL, WithHTTPClient(srv.Client()))
	t.Cleanup(verifier.Close)

	raw := signToken(t, key, jwt.MapClaims{
		"sub": "user_123",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := verifier.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, srv := newTestKeyAndJWKS(t)
	verifier := NewTokenVerifier(srv.URL, WithHTTPClient(srv.Client()))
	t.Cleanup(verifier.Close)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	raw := signToken(t, otherKey, jwt.MapClaims{
		"sub": "user_123",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	_, err = verifier.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	key, srv := newTestKeyAndJWKS(t)
	verifier := NewTokenVerifier(srv.URL, WithHTTPClient(srv.Client()))
	t.Cleanup(verifier.Close)

	e := echo.New()
	handler := RequireAuth(verifier)(func(c echo.Context) error {
		identity, ok := IdentityFrom(c)
		require.True(t, ok)
		return c.String(http.StatusOK, identity.UserID)
	})

	t.Run("valid token", func(t *testing.T) {
		raw := signToken(t, key, jwt.MapClaims{
			"sub": "user_123",
			"exp": time.Now().Add(5 * time.Minute).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
		rec := httptest.NewRecorder()

		require.NoError(t, handler(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_123", rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, handler(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
