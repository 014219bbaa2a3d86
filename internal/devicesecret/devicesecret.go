// Package devicesecret hashes and verifies the per-device secret that binds
// a stored session to the client device that created it.
package devicesecret

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of the secret's UTF-8 bytes.
// Deterministic and side-effect free; the raw secret is never logged.
func Hash(secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(digest[:])
}

// Verify recomputes Hash(secret) and compares it to expectedDigest. The
// comparison runs over digests, not raw secret material, and does not
// short-circuit.
func Verify(secret, expectedDigest string) bool {
	actual := Hash(secret)
	if len(actual) != len(expectedDigest) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedDigest)) == 1
}
