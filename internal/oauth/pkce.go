package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// ValidChallengeMethod returns true for the two supported PKCE methods.
func ValidChallengeMethod(method string) bool {
	return method == ChallengeS256 || method == ChallengePlain
}

// VerifyPKCE checks a code_verifier against the challenge recorded at
// authorization time. For S256 the verifier's SHA-256 digest is
// base64url-encoded without padding and compared to the stored
// challenge; for plain the verifier is compared directly. Comparison is
// constant-time in both cases, and the verifier is matched as presented:
// whatever value produced the recorded challenge redeems the code.
//
// Returns false for unknown methods.
func VerifyPKCE(method, challenge, verifier string) bool {
	switch method {
	case ChallengeS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case ChallengePlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
