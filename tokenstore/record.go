// Package tokenstore persists a record of every issued token so that
// introspection and revocation can answer from server-side state rather than
// from the token alone. Access tokens are stored by their JWT ID; opaque
// refresh tokens are additionally indexed by a hash of their value, never the
// value itself.
package tokenstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Kind discriminates what sort of token a record describes.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Record is the server-side state for one issued token.
type Record struct {
	// JTI is the unique token identifier. For JWT access tokens it equals
	// the jti claim.
	JTI string

	Kind Kind

	// ValueHash is the SHA-256 (unpadded base64url) of an opaque token's
	// value. Empty for JWTs, which are looked up by JTI instead.
	ValueHash string

	ClientID string

	// Subject is the authenticated user, or the client ID itself for
	// client_credentials tokens.
	Subject string

	// Scopes carried by this token.
	Scopes []string

	// GrantScopes are the scopes of the original authorization grant. Only
	// set on refresh tokens; refresh exchanges may narrow to a subset of
	// these even after earlier narrowed exchanges.
	GrantScopes []string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// ParentJTI ties an access token to the refresh token issued alongside
	// it, and a rotated refresh token to its predecessor. Revoking a refresh
	// token cascades over this link.
	ParentJTI string

	// Revoked and RevokedAt are populated on reads; they are not stored on
	// the record itself.
	Revoked   bool
	RevokedAt time.Time
}

// Active reports whether the token is usable at the given instant.
func (r *Record) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// NewOpaqueValue returns 32 bytes of crypto/rand randomness in unpadded
// base64url, the wire format for opaque refresh tokens.
func NewOpaqueValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashValue derives the storage hash for an opaque token value.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
