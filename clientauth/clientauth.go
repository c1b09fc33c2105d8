// Package clientauth authenticates OAuth2 clients at the token, introspection
// and revocation endpoints. It supports client_secret_basic,
// client_secret_post, private_key_jwt and, for public clients, none.
//
// Failures deliberately collapse to a uniform invalid_client error so callers
// cannot probe which client IDs exist or which check failed.
package clientauth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// Authenticator resolves and verifies the client behind an OAuth2 endpoint
// request.
type Authenticator struct {
	registry      *clients.Registry
	tokenEndpoint string
	replay        ReplayCache
	nowFunc       func() time.Time
}

type AuthenticatorOption func(*Authenticator)

func WithNowFunc(nowFunc func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowFunc = nowFunc
	}
}

// New creates an Authenticator. tokenEndpoint is the absolute URL clients
// must address private_key_jwt assertions to; replay remembers assertion IDs
// so a captured assertion cannot be presented twice.
func New(registry *clients.Registry, tokenEndpoint string, replay ReplayCache, options ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		registry:      registry,
		tokenEndpoint: tokenEndpoint,
		replay:        replay,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Authenticate verifies the credentials carried by a token endpoint request
// and returns the client they belong to.
func (a *Authenticator) Authenticate(ctx context.Context, request *oauthmodel.TokenRequest) (*clients.Client, error) {
	if request.ClientAssertion != "" || request.ClientAssertionType != "" {
		if request.ClientSecret != "" {
			return nil, oauthmodel.InvalidRequest("multiple client authentication methods used")
		}
		return a.authenticateAssertion(ctx, request)
	}

	if request.ClientID == "" {
		return nil, oauthmodel.InvalidClient("client authentication required")
	}

	client, err := a.registry.Get(ctx, request.ClientID)
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, oauthmodel.InvalidClient("client authentication failed")
		}
		return nil, errors.Wrap(err, "[Authenticator.Authenticate] registry.Get")
	}

	if request.ClientSecret == "" {
		return a.authenticateNone(client)
	}
	return a.authenticateSecret(client, request)
}

// authenticateSecret handles client_secret_basic and client_secret_post.
func (a *Authenticator) authenticateSecret(client *clients.Client, request *oauthmodel.TokenRequest) (*clients.Client, error) {
	method := clients.AuthMethodPost
	if request.BasicAuth {
		method = clients.AuthMethodBasic
	}
	if !client.HasAuthMethod(method) {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}
	if !client.VerifySecret(request.ClientSecret) {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}
	return client, nil
}

// authenticateNone admits public clients that identify themselves with a bare
// client_id. Confidential clients must always present credentials.
func (a *Authenticator) authenticateNone(client *clients.Client) (*clients.Client, error) {
	if !client.IsPublic() || !client.HasAuthMethod(clients.AuthMethodNone) {
		return nil, oauthmodel.InvalidClient("client authentication required")
	}
	return client, nil
}
