// Package middleware provides Bearer-token authentication for the
// authenticated API surface. Access tokens are verified against the identity
// provider's JWKS; the provider remains the issuer, this service only checks
// signatures and reads claims.
package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	autherrors "github.com/framerate-dev/tokenvault/errors"
)

const identityContextKey = "tokenvault.identity"

// Identity is the verified caller extracted from an access token.
type Identity struct {
	// UserID is the token's subject: the identity-provider user id.
	UserID string
	// SessionID is the provider session id from the "sid" claim, when present.
	SessionID string
}

// TokenVerifier validates provider-issued access tokens against the
// provider's JWKS endpoint. Keys are cached with a TTL so a key rollover is
// picked up without restarting.
type TokenVerifier struct {
	jwksURL    string
	httpClient *http.Client
	keys       *ttlcache.Cache[string, *rsa.PublicKey]
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithHTTPClient overrides the HTTP client used for JWKS fetches.
func WithHTTPClient(hc *http.Client) VerifierOption {
	return func(v *TokenVerifier) { v.httpClient = hc }
}

// NewTokenVerifier creates a verifier for the given JWKS URL.
func NewTokenVerifier(jwksURL string, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys: ttlcache.New(
			ttlcache.WithTTL[string, *rsa.PublicKey](15 * time.Minute),
			ttlcache.WithDisableTouchOnHit[string, *rsa.PublicKey](),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	go v.keys.Start()
	return v
}

// Close stops the key cache's expiration goroutine.
func (v *TokenVerifier) Close() {
	v.keys.Stop()
}

// Verify parses and validates the raw access token and returns the caller's
// identity. Expired or badly signed tokens fail.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return v.keyFor(ctx, kid)
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("access token has no subject")
	}

	sessionID, _ := claims["sid"].(string)
	return &Identity{UserID: subject, SessionID: sessionID}, nil
}

// jwk is the subset of a JSON Web Key needed to build an RSA public key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *TokenVerifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if item := v.keys.Get(kid); item != nil {
		return item.Value(), nil
	}

	if err := v.fetchKeys(ctx); err != nil {
		return nil, err
	}

	item := v.keys.Get(kid)
	if item == nil {
		return nil, fmt.Errorf("no key %q in provider JWKS", kid)
	}
	return item.Value(), nil
}

func (v *TokenVerifier) fetchKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	for _, key := range doc.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(key)
		if err != nil {
			log.Warn().Err(err).Str("kid", key.Kid).Msg("skipping unusable JWKS key")
			continue
		}
		v.keys.Set(key.Kid, pub, ttlcache.DefaultTTL)
	}
	return nil
}

func rsaPublicKey(key jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// RequireAuth is an echo middleware that verifies the Bearer token and
// attaches the caller's Identity to the request context.
func RequireAuth(verifier *TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, autherrors.NewUnauthorized("Missing bearer token"))
			}

			identity, err := verifier.Verify(c.Request().Context(), raw)
			if err != nil {
				log.Debug().Err(err).Msg("bearer token rejected")
				return c.JSON(http.StatusUnauthorized, autherrors.NewUnauthorized("Invalid or expired access token"))
			}

			SetIdentity(c, identity)
			return next(c)
		}
	}
}

// SetIdentity attaches a verified identity to the request context.
func SetIdentity(c echo.Context, identity *Identity) {
	c.Set(identityContextKey, identity)
}

// IdentityFrom returns the verified identity set by RequireAuth.
func IdentityFrom(c echo.Context) (*Identity, bool) {
	identity, ok := c.Get(identityContextKey).(*Identity)
	return identity, ok
}
