package oauthmodel

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the /oauth2/token endpoint, together
// with the client credentials however they were presented.
// Supports multiple grant types: authorization_code, refresh_token, client_credentials
type TokenRequest struct {
	// GrantType selects how the client wants to obtain tokens.
	// Required: Yes
	// Example: "authorization_code"
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: Yes (may arrive via the Authorization header for basic auth)
	// Example: "web-app-client"
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Required: Yes for confidential clients, No for public clients
	// Security: Never log or expose this value
	ClientSecret string

	// BasicAuth records that the client credentials arrived in the HTTP
	// Authorization header rather than the form body. The registered client
	// authentication method must match how the credentials were presented.
	BasicAuth bool

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Example: "SplxlOBeZQQYbYS6WxSbIA"
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RedirectURI echoes the redirect_uri from the authorization request.
	// Required: Yes when the authorization request carried one
	// Validation: Must exactly match the value bound to the code
	RedirectURI string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Required: Yes (if PKCE was used in the authorization request)
	// Example: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	// Validation: Server compares SHA256(code_verifier) with the stored code_challenge
	CodeVerifier string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Example: "tGzv3JOkF0XG5Qx2TlKWIA"
	// Behavior: Rotated by default - old refresh token invalidated, new one issued
	RefreshToken string

	// Scope optionally narrows the issued scopes.
	// Required: No
	// Behavior: refresh_token grant may only request a subset of the original
	// grant; client_credentials may only request scopes the client is
	// registered for.
	Scope string

	// ClientAssertionType signals JWT client authentication (RFC 7523).
	// Required: Only with client_assertion
	// Value: "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	ClientAssertionType string

	// ClientAssertion is the signed JWT proving the client's identity for the
	// private_key_jwt authentication method.
	// Required: Only for clients registered with private_key_jwt
	ClientAssertion string
}
