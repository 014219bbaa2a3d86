// Package api holds the request and response shapes of the session API.
package api

// RefreshRequest is the body of a refresh call. SessionID is required on the
// unauthenticated endpoint and optional on the authenticated one, where the
// verified identity takes precedence.
type RefreshRequest struct {
	SessionID    string `json:"sessionId"`
	DeviceSecret string `json:"deviceSecret"`
}

// StoreSessionRequest is the post-login handoff of the refresh credential.
// The client is expected to discard the refresh token after this call.
type StoreSessionRequest struct {
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
	DeviceSecret string `json:"deviceSecret"`
}

// SuccessResponse acknowledges a state-changing call with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}
