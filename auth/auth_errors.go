package auth

import (
	"errors"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// ErrTokenNotActive reports a userinfo request carrying a token the server
// does not vouch for.
var ErrTokenNotActive = errors.New("token is not active")

// RedirectError is a protocol error raised after the redirect URI has been
// verified: the caller must deliver it to the client's redirect URI instead
// of rendering it locally.
type RedirectError struct {
	OAuthErr     *oauthmodel.Error
	RedirectURI  string
	ResponseMode oauthmodel.ResponseModeType
	State        string
}

func (e *RedirectError) Error() string {
	return e.OAuthErr.Error()
}

func (e *RedirectError) Unwrap() error {
	return e.OAuthErr
}
