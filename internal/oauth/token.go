package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenEntropyBytes is the random payload of every opaque credential.
// 256 bits, well past any practical guessing budget.
const tokenEntropyBytes = 32

// GenerateToken returns a new opaque token value: 256 bits of
// crypto/rand entropy, base64url-encoded without padding (43 chars).
func GenerateToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCode returns a new authorization code. Same construction as
// tokens; codes are distinguished by where they are stored, not by shape.
func GenerateCode() (string, error) {
	return GenerateToken()
}

// HashToken returns the SHA-256 hex digest of a raw token value. Only
// hashes are persisted, so a leaked database cannot be replayed against
// the API.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
