package errors

import "fmt"

// Machine-readable failure codes surfaced to clients. The remediation for
// most of them is a full re-login; TOKEN_REUSE_DETECTED is kept distinct so
// clients can warn the user about a likely stolen token.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNoSession          = "NO_SESSION"
	CodeInvalidDevice      = "INVALID_DEVICE"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeTokenReuseDetected = "TOKEN_REUSE_DETECTED"
	CodeProviderError      = "WORKOS_ERROR"
	CodeServerError        = "SERVER_ERROR"
)

// AuthError is a client-facing session/refresh failure. Description must
// never contain refresh tokens or device secrets.
type AuthError struct {
	Code        string `json:"code"`
	Description string `json:"error"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func NewInvalidRequest(description string) *AuthError {
	return &AuthError{Code: CodeInvalidRequest, Description: description}
}

func NewUnauthorized(description string) *AuthError {
	return &AuthError{Code: CodeUnauthorized, Description: description}
}

func NewNoSession() *AuthError {
	return &AuthError{Code: CodeNoSession, Description: "No session found. Please log in again."}
}

func NewInvalidDevice() *AuthError {
	return &AuthError{Code: CodeInvalidDevice, Description: "Device verification failed."}
}

func NewTokenRevoked() *AuthError {
	return &AuthError{Code: CodeTokenRevoked, Description: "Session has been revoked. Please log in again."}
}

func NewTokenReuseDetected() *AuthError {
	return &AuthError{Code: CodeTokenReuseDetected, Description: "Security alert: Token reuse detected. Please log in again."}
}

func NewProviderError(description string) *AuthError {
	return &AuthError{Code: CodeProviderError, Description: description}
}

func NewServerError(description string) *AuthError {
	return &AuthError{Code: CodeServerError, Description: description}
}
