package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

// Token sizes in random bytes. Hex rendering doubles the length.
const (
	AuthorizationCodeBytes = 32
	AccessTokenBytes       = 32
	RefreshTokenBytes      = 32
	ClientIDBytes          = 16
)

// GenerateToken returns byteLength bytes from crypto/rand as lowercase hex.
// Uniqueness relies on the entropy alone; the store is not consulted.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("invalid token length %d", byteLength)
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// VerifyPKCEChallenge reports whether challenge is the unpadded base64url
// SHA-256 digest of verifier (RFC 7636 S256).
func VerifyPKCEChallenge(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	return oauth2.S256ChallengeFromVerifier(verifier) == challenge
}
