package auth

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/internal/utils"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token"
)

// Token handles the OAuth 2.0 token request: it authenticates the client and
// dispatches to the requested grant.
func (as *AuthorizationService) Token(ctx context.Context, request *oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	client, err := as.clientAuth.Authenticate(ctx, request)
	if err != nil {
		return nil, err
	}

	switch request.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		return as.exchangeCode(ctx, client, request)
	case oauthmodel.RefreshTokenGrant:
		return as.exchangeRefreshToken(ctx, client, request)
	case oauthmodel.ClientCredentialsGrant:
		return as.clientCredentials(ctx, client, request)
	case "":
		return nil, oauthmodel.InvalidRequest("grant_type is required")
	default:
		return nil, oauthmodel.UnsupportedGrantType(fmt.Sprintf("grant type %q is not supported", request.GrantType))
	}
}

func (as *AuthorizationService) exchangeCode(ctx context.Context, client *clients.Client, request *oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if !client.HasGrantType(oauthmodel.AuthorizationCodeGrant) {
		return nil, oauthmodel.UnauthorizedClient("client is not registered for the authorization_code grant")
	}
	if request.Code == "" {
		return nil, oauthmodel.InvalidRequest("code is required")
	}

	// PKCE runs against a read-only view first: a failed code_verifier must
	// not spend the code.
	pending, err := as.stores.Codes.Peek(ctx, request.Code)
	if err != nil {
		return nil, codeExchangeError(err, "codes.Peek")
	}
	if oauthErr := pending.CheckVerifier(request.CodeVerifier); oauthErr != nil {
		return nil, oauthErr
	}

	grant, err := as.stores.Codes.Consume(ctx, request.Code)
	if err != nil {
		return nil, codeExchangeError(err, "codes.Consume")
	}

	if grant.ClientID != client.ID {
		return nil, oauthmodel.InvalidGrant("authorization code was issued to another client")
	}
	if grant.RedirectURI != "" && request.RedirectURI != grant.RedirectURI {
		return nil, oauthmodel.InvalidGrant("redirect_uri does not match the authorization request")
	}

	return as.tokens.IssueFromCode(ctx, client, grant, request.CodeVerifier)
}

func codeExchangeError(err error, op string) error {
	switch {
	case errors.Is(err, authcode.ErrCodeAlreadyUsed):
		return oauthmodel.InvalidGrant("authorization code has already been used")
	case errors.Is(err, authcode.ErrCodeExpired):
		return oauthmodel.InvalidGrant("authorization code expired")
	case errors.Is(err, authcode.ErrCodeNotFound):
		return oauthmodel.InvalidGrant("authorization code is not recognised")
	}
	return errors.Wrap(err, "[Token] "+op)
}

func (as *AuthorizationService) exchangeRefreshToken(ctx context.Context, client *clients.Client, request *oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if !client.HasGrantType(oauthmodel.RefreshTokenGrant) {
		return nil, oauthmodel.UnauthorizedClient("client is not registered for the refresh_token grant")
	}
	if request.RefreshToken == "" {
		return nil, oauthmodel.InvalidRequest("refresh_token is required")
	}
	return as.tokens.IssueFromRefresh(ctx, client, request.RefreshToken, request.Scope)
}

func (as *AuthorizationService) clientCredentials(ctx context.Context, client *clients.Client, request *oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if !client.HasGrantType(oauthmodel.ClientCredentialsGrant) {
		return nil, oauthmodel.UnauthorizedClient("client is not registered for the client_credentials grant")
	}
	if client.IsPublic() {
		return nil, oauthmodel.UnauthorizedClient("client_credentials grant requires a confidential client")
	}
	return as.tokens.IssueClientCredentials(ctx, client, request.Scope)
}

// Introspect reports token state to an authenticated client. Client
// authentication failures are the only error path; problems with the token
// itself always come back as inactive.
func (as *AuthorizationService) Introspect(ctx context.Context, credentials *oauthmodel.TokenRequest, rawToken string) (*token.Introspection, error) {
	if _, err := as.clientAuth.Authenticate(ctx, credentials); err != nil {
		return nil, err
	}
	return as.tokens.Introspect(ctx, rawToken), nil
}

// Revoke invalidates a token presented by its owning client. Per RFC 7009
// the outcome is success even when the token is unknown or belongs to
// another client; only client authentication failures error.
func (as *AuthorizationService) Revoke(ctx context.Context, credentials *oauthmodel.TokenRequest, rawToken string) error {
	client, err := as.clientAuth.Authenticate(ctx, credentials)
	if err != nil {
		return err
	}
	return as.tokens.Revoke(ctx, rawToken, client.ID)
}

// UserInfo returns the claims for a Bearer access token. With no user
// database behind this server the claims are the token's own: subject,
// scope and client.
func (as *AuthorizationService) UserInfo(ctx context.Context, rawToken string) (map[string]any, error) {
	introspection := as.tokens.Introspect(ctx, rawToken)
	if !introspection.Active || introspection.TokenType != "Bearer" {
		return nil, ErrTokenNotActive
	}
	if utils.Value(introspection.Sub) == "" {
		return nil, ErrTokenNotActive
	}

	userInfo := map[string]any{
		"sub": utils.Value(introspection.Sub),
	}
	if introspection.Scope != "" {
		userInfo["scope"] = introspection.Scope
	}
	if utils.Value(introspection.ClientID) != "" {
		userInfo["client_id"] = utils.Value(introspection.ClientID)
	}
	return userInfo, nil
}
