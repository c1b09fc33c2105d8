package oauthmodel

import "strings"

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are typically received as query parameters at the /oauth2/authorize endpoint.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Flow: All OAuth flows
	// Required: Yes
	// Example: "web-app-client" or "mobile-app-xyz"
	// Validated against: clients.Client.ID in the client registry
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Flow: Authorization Code Flow
	// Required: Yes
	// Example: "code" (only supported value)
	ResponseType ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Flow: All OAuth flows
	// Required: Yes
	// Example: "https://myapp.com/callback"
	// Validated against: clients.Client.RedirectURIs whitelist
	// Security: Must exactly match a pre-registered URI to prevent open redirects
	RedirectURI string

	// ResponseMode controls how the authorization response is returned (query/fragment).
	// Flow: Authorization Code Flow (optional parameter)
	// Required: No (defaults to "query" for code flow)
	// Example: "fragment" for single page applications
	ResponseMode ResponseModeType

	// Scope specifies the permissions being requested.
	// Flow: All OAuth flows
	// Required: No (but typically includes "openid" for OIDC)
	// Example: "openid profile email api.read"
	// Validated against: clients.Client.Scopes (allowed scopes for this client)
	Scope string

	// State is an opaque value used by the client to maintain state between request and callback.
	// Flow: All OAuth flows
	// Required: Recommended (CSRF protection)
	// Example: Random string like "abc123xyz789"
	// Server holds it with the pending flow and echoes it back in the redirect
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Flow: Authorization Code Flow with PKCE (required for public clients)
	// Required: Yes for public clients, optional for confidential
	// Example: BASE64URL(SHA256(code_verifier))
	// Length: 43 characters when using S256
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Flow: Authorization Code Flow with PKCE
	// Required: No ("plain" is assumed if a challenge is sent without a method)
	// Example: "S256" or "plain"
	CodeChallengeMethod CodeMethodType

	// Nonce is a random value to associate a client session with an ID token.
	// Flow: OpenID Connect (when requesting the openid scope)
	// Required: Recommended for code flow
	// Example: Random string like "n-0S6_WzA2Mj"
	// Token validation: Client must verify id_token.nonce matches this value
	Nonce string
}

// Scopes returns the requested scope string split into individual scopes.
func (p *AuthorizationParameters) Scopes() []string {
	return SplitScopes(p.Scope)
}

// Validate performs the shape level checks that do not need the registered
// client: response type, response mode, PKCE challenge and method. Client
// aware checks (redirect URI, allowed scopes) live with the authorization
// service.
func (p *AuthorizationParameters) Validate() *Error {
	if !responseTypeValid(p.ResponseType) {
		return UnsupportedResponseType("response_type must be \"code\"")
	}
	if !responseModeValid(p.ResponseMode) {
		return InvalidRequest("unsupported response_mode")
	}
	if err := validateChallenge(p.CodeChallenge, p.CodeChallengeMethod); err != nil {
		return err
	}
	return nil
}

func responseTypeValid(responseType ResponseType) bool {
	return responseType == CodeResponseType
}

func responseModeValid(responseMode ResponseModeType) bool {
	if strings.TrimSpace(string(responseMode)) == "" {
		return true
	}
	switch responseMode {
	case QueryResponseMode, FragmentResponseMode:
		return true
	}
	return false
}

func validateChallenge(codeChallenge string, challengeMethod CodeMethodType) *Error {
	if strings.TrimSpace(codeChallenge) == "" {
		if strings.TrimSpace(string(challengeMethod)) != "" {
			return InvalidRequest("code_challenge_method sent without code_challenge")
		}
		return nil
	}
	if len(codeChallenge) < minVerifierLength || len(codeChallenge) > maxVerifierLength {
		return InvalidRequest("code_challenge length must be between 43 and 128 characters")
	}
	switch challengeMethod {
	case CodeMethodTypeS256, CodeMethodTypePlain, "":
		return nil
	}
	return InvalidRequest("unsupported code_challenge_method")
}
