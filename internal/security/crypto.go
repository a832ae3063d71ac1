// Package security provides the signing and randomness primitives shared by
// the authentication flows: HMAC-SHA256 cookie signatures, constant-time
// comparisons, and URL-safe random tokens for state/nonce values.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// HMACSignSHA256 computes HMAC-SHA256 of the message using the provided key.
func HMACSignSHA256(key []byte, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// ConstantTimeEqual performs constant-time comparison of two byte slices.
// Returns true if slices are equal in both length and content.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomToken returns n cryptographically random bytes encoded as unpadded
// base64url. Used for OAuth2 state tokens and OIDC nonces.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
