package oauthmodel

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// RFC 7636 bounds for code_verifier and code_challenge.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// S256Challenge derives the PKCE code challenge from a verifier:
// BASE64URL(SHA256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidateCodeVerifier checks the RFC 7636 constraints on a code_verifier:
// 43 to 128 characters from the unreserved set.
func ValidateCodeVerifier(verifier string) *Error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return InvalidGrant("code_verifier length must be between 43 and 128 characters")
	}
	for _, r := range verifier {
		if !verifierChar(r) {
			return InvalidGrant("code_verifier contains invalid characters")
		}
	}
	return nil
}

// VerifyCodeChallenge reports whether the presented verifier satisfies the
// challenge stored with the authorization code. An empty method is treated as
// "plain" per RFC 7636.
func VerifyCodeChallenge(challenge string, method CodeMethodType, verifier string) bool {
	switch method {
	case CodeMethodTypeS256:
		derived := S256Challenge(verifier)
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case CodeMethodTypePlain, "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}

func verifierChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '.' || r == '_' || r == '~':
		return true
	}
	return false
}
