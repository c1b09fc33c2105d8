// Package authcode issues and consumes single-use authorization codes. A code
// is an unguessable handle to the grant approved during an authorization
// flow; it can be consumed exactly once, by exactly one caller, before it
// expires.
package authcode

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var (
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrCodeExpired     = errors.New("authorization code expired")
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
)

// Grant is everything bound to an authorization code at issue time. The token
// endpoint replays these values during the exchange; none of them come from
// the exchange request itself.
type Grant struct {
	ClientID            string
	Subject             string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod oauthmodel.CodeMethodType
	Nonce               string
	AuthTime            time.Time
	ExpiresAt           time.Time
}

// CheckVerifier validates a PKCE code_verifier against the challenge bound
// to this grant. A grant without a challenge rejects any verifier; a grant
// with one requires the matching verifier.
func (g *Grant) CheckVerifier(codeVerifier string) *oauthmodel.Error {
	if g.CodeChallenge == "" {
		if codeVerifier != "" {
			return oauthmodel.InvalidGrant("code_verifier provided but no code_challenge was registered")
		}
		return nil
	}
	if codeVerifier == "" {
		return oauthmodel.InvalidGrant("code_verifier is required")
	}
	if err := oauthmodel.ValidateCodeVerifier(codeVerifier); err != nil {
		return err
	}
	if !oauthmodel.VerifyCodeChallenge(g.CodeChallenge, g.CodeChallengeMethod, codeVerifier) {
		return oauthmodel.InvalidGrant("code_verifier does not match the code_challenge")
	}
	return nil
}

// Store issues and consumes authorization codes.
//
// Issue returns the opaque code value for the grant. Consume removes the code
// and returns its grant; at most one concurrent caller can succeed for a
// given code, all others receive ErrCodeAlreadyUsed (or ErrCodeNotFound once
// the tombstone has aged out). Peek reads the grant without spending the
// code, so PKCE can be verified before the code is burned: a wrong verifier
// must not cost the client its code.
type Store interface {
	Issue(ctx context.Context, grant Grant) (string, error)
	Peek(ctx context.Context, code string) (*Grant, error)
	Consume(ctx context.Context, code string) (*Grant, error)
}
