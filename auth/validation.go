package auth

import (
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// validateLocal covers the authorize checks that must fail with a locally
// rendered error: until the redirect URI is confirmed to belong to the
// client, nothing may be redirected to it.
func validateLocal(client *clients.Client, params *oauthmodel.AuthorizationParameters) *oauthmodel.Error {
	if params.RedirectURI == "" {
		return oauthmodel.InvalidRequest("redirect_uri is required")
	}
	if !client.HasRedirectURI(params.RedirectURI) {
		return oauthmodel.InvalidRequest("redirect_uri is not registered for the client")
	}
	return nil
}

// validateRedirectable covers the checks performed once the redirect URI is
// trusted; failures here are delivered to the client as error redirects.
func validateRedirectable(client *clients.Client, params *oauthmodel.AuthorizationParameters) *oauthmodel.Error {
	if err := params.Validate(); err != nil {
		return err
	}
	if !client.HasGrantType(oauthmodel.AuthorizationCodeGrant) {
		return oauthmodel.UnauthorizedClient("client is not registered for the authorization_code grant")
	}
	if err := client.ValidateScopes(params.Scope); err != nil {
		return oauthmodel.InvalidScope("requested scope is not registered for the client")
	}
	if client.IsPublic() && params.CodeChallenge == "" {
		return oauthmodel.InvalidRequest("PKCE code_challenge is required for public clients")
	}
	return nil
}
