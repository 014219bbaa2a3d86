package domain

import "time"

// Session is the single server-side record binding a user to their stored
// refresh credential and originating device. At most one session exists per
// user, and at most one per provider session id; both lookups must resolve to
// the same document.
type Session struct {
	ID     string `bson:"_id,omitempty" json:"-"`
	UserID string `bson:"user_id" json:"userId"`
	// SessionID is the identity-provider session identifier, carried in the
	// access token's "sid" claim. Used for lookup when the caller no longer
	// holds a usable access token.
	SessionID string `bson:"session_id" json:"sessionId"`
	// RefreshToken is the current credential usable against the provider's
	// token endpoint. It is never serialized into any API response.
	RefreshToken string `bson:"refresh_token" json:"-"`
	// PreviousRefreshToken holds the token superseded at the last rotation.
	// Recorded for reuse-detection bookkeeping only; this service never
	// validates incoming tokens against it.
	PreviousRefreshToken string     `bson:"previous_refresh_token,omitempty" json:"-"`
	DeviceSecretHash     string     `bson:"device_secret_hash" json:"-"`
	RotatedAt            *time.Time `bson:"rotated_at,omitempty" json:"rotatedAt,omitempty"`
	CreatedAt            time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `bson:"updated_at" json:"updatedAt"`
}
