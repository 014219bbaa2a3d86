// Package workos calls the identity provider's token endpoint to exchange a
// stored refresh token for a fresh access token, and classifies the
// provider's response. The provider's own session semantics are opaque here;
// only the refresh-token exchange contract is modeled.
package workos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTokenURL is the WorkOS user-management token endpoint.
const DefaultTokenURL = "https://api.workos.com/user_management/authenticate"

// defaultExpiresIn is used when the access token's lifetime cannot be decoded.
const defaultExpiresIn = 300

// Outcome classifies a token-exchange response.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response carrying an access token.
	OutcomeSuccess Outcome = iota
	// OutcomeMalformedSuccess is a 2xx response lacking the access token field.
	OutcomeMalformedSuccess
	// OutcomeRevoked means the provider confirmed the refresh token is no
	// longer valid (revoked or expired).
	OutcomeRevoked
	// OutcomeReuseDetected means the provider saw an already-rotated token
	// presented again, a theft/replay signal.
	OutcomeReuseDetected
	// OutcomeProviderError is any other non-2xx response; possibly transient.
	OutcomeProviderError
)

// ExchangeResult is the classified outcome of one refresh call.
type ExchangeResult struct {
	Outcome     Outcome
	AccessToken string
	// NewRefreshToken is set when the provider rotated the credential. It may
	// equal the token just used, in which case no rotation happened.
	NewRefreshToken string
	ExpiresIn       int
	// Reason carries the provider's error description for non-success
	// outcomes. Never contains token material.
	Reason string
}

// Client talks to the provider's token endpoint.
type Client struct {
	clientID   string
	tokenURL   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenURL overrides the token endpoint URL.
func WithTokenURL(u string) Option {
	return func(c *Client) { c.tokenURL = u }
}

// NewClient creates a Client. The provider client id is process-wide
// configuration; its absence is a startup error, not a per-request one.
func NewClient(clientID string, opts ...Option) (*Client, error) {
	if clientID == "" {
		return nil, errors.New("workos: client id is required")
	}
	c := &Client{
		clientID:   clientID,
		tokenURL:   DefaultTokenURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// tokenResponse is the provider's JSON body, success and error shapes folded
// together. Unknown or missing fields route to a non-success outcome instead
// of failing the decode.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges refreshToken for a new access token and classifies the
// response. A returned error means the exchange itself could not be carried
// out (network failure, unreadable body); the stored session should be
// retained in that case.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*ExchangeResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("workos: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workos: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("workos: failed to read token response: %w", err)
	}

	var data tokenResponse
	if err := json.Unmarshal(body, &data); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &ExchangeResult{Outcome: OutcomeMalformedSuccess, Reason: "unparseable success response"}, nil
		}
		return &ExchangeResult{
			Outcome: OutcomeProviderError,
			Reason:  fmt.Sprintf("unparseable error response (status %d)", resp.StatusCode),
		}, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if data.AccessToken == "" {
			return &ExchangeResult{Outcome: OutcomeMalformedSuccess, Reason: "no access token in response"}, nil
		}
		return &ExchangeResult{
			Outcome:         OutcomeSuccess,
			AccessToken:     data.AccessToken,
			NewRefreshToken: data.RefreshToken,
			ExpiresIn:       accessTokenLifetime(data.AccessToken),
		}, nil
	}

	errorCode := data.ErrorCode
	if errorCode == "" {
		errorCode = "unknown_error"
	}
	errorDescription := data.ErrorDescription
	if errorDescription == "" {
		errorDescription = "Token refresh failed"
	}

	outcome := classify(errorCode, errorDescription)
	log.Debug().
		Str("error_code", errorCode).
		Int("status", resp.StatusCode).
		Int("outcome", int(outcome)).
		Msg("token exchange rejected by provider")

	return &ExchangeResult{Outcome: outcome, Reason: errorDescription}, nil
}

// classificationRule matches an error response to an outcome. Rules are
// evaluated top-down; the first match wins, so machine error codes take
// precedence over description-text heuristics.
type classificationRule struct {
	name    string
	matches func(code, description string) bool
	outcome Outcome
}

var classificationRules = []classificationRule{
	{
		name: "revoked by error code",
		matches: func(code, _ string) bool {
			return code == "invalid_grant" || code == "expired_token"
		},
		outcome: OutcomeRevoked,
	},
	{
		name: "revoked by description text",
		matches: func(_, description string) bool {
			return strings.Contains(description, "revoked") || strings.Contains(description, "expired")
		},
		outcome: OutcomeRevoked,
	},
	{
		name: "reuse by description text",
		matches: func(_, description string) bool {
			return strings.Contains(description, "reuse") || strings.Contains(description, "already used")
		},
		outcome: OutcomeReuseDetected,
	},
}

func classify(code, description string) Outcome {
	for _, rule := range classificationRules {
		if rule.matches(code, description) {
			return rule.outcome
		}
	}
	return OutcomeProviderError
}

// jwtTimestamps is the slice of registered claims needed to compute the
// access token's lifetime.
type jwtTimestamps struct {
	Iat int64 `json:"iat"`
	Exp int64 `json:"exp"`
}

// accessTokenLifetime decodes the token's middle segment (base64url JSON) and
// returns exp-iat in seconds. Any decode failure falls back to
// defaultExpiresIn; this must never fail.
func accessTokenLifetime(accessToken string) int {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return defaultExpiresIn
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return defaultExpiresIn
	}

	var ts jwtTimestamps
	if err := json.Unmarshal(payload, &ts); err != nil {
		return defaultExpiresIn
	}
	if ts.Exp == 0 || ts.Iat == 0 {
		return defaultExpiresIn
	}
	return int(ts.Exp - ts.Iat)
}
