package clients

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// AuthMethod is a client authentication method at the token endpoint.
type AuthMethod string

const (
	AuthMethodBasic         AuthMethod = "client_secret_basic"
	AuthMethodPost          AuthMethod = "client_secret_post"
	AuthMethodNone          AuthMethod = "none"
	AuthMethodPrivateKeyJWT AuthMethod = "private_key_jwt"
)

// Client is a registered OAuth2 client. The secret is only ever held as a
// bcrypt hash; plaintext secrets exist solely in seed material and are hashed
// on registration.
type Client struct {
	ID           string                 `json:"id"`
	Type         ClientType             `json:"type"` // public or confidential
	Description  string                 `json:"description"`
	SecretHash   string                 `json:"secretHash"`
	AuthMethods  []AuthMethod           `json:"authMethods"`
	GrantTypes   []oauthmodel.GrantType `json:"grantTypes"`
	RedirectURIs []string               `json:"redirectURIs"`
	Scopes       []string               `json:"scopes"` // Allowed scopes for this client

	// PublicKeyPEM holds the RSA public key for clients registered with the
	// private_key_jwt authentication method.
	PublicKeyPEM string `json:"publicKeyPEM,omitempty"`

	// Per client token lifetime overrides. Zero means use the server default.
	AccessTokenTTL  time.Duration `json:"accessTokenTTL,omitempty"`
	RefreshTokenTTL time.Duration `json:"refreshTokenTTL,omitempty"`
	IDTokenTTL      time.Duration `json:"idTokenTTL,omitempty"`
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	if requestedScopes == "" {
		return nil
	}
	for _, scope := range oauthmodel.SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// HasGrantType checks if the client is registered for the given grant type.
func (c *Client) HasGrantType(grantType oauthmodel.GrantType) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// HasAuthMethod checks if the client may authenticate with the given method.
// Clients registered without explicit methods default to client_secret_basic.
func (c *Client) HasAuthMethod(method AuthMethod) bool {
	if len(c.AuthMethods) == 0 {
		return method == AuthMethodBasic
	}
	for _, m := range c.AuthMethods {
		if m == method {
			return true
		}
	}
	return false
}

// HasRedirectURI checks the URI against the registered whitelist. Matching is
// exact string comparison, no wildcard or prefix logic.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if uri == registered {
			return true
		}
	}
	return false
}

// VerifySecret compares a presented plaintext secret against the stored
// bcrypt hash. bcrypt's comparison runs in constant time.
func (c *Client) VerifySecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HashSecret bcrypt-hashes a plaintext client secret for storage.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// IsHashedSecret reports whether the value is already a bcrypt hash. Seed
// files may carry either plaintext or pre-hashed secrets.
func IsHashedSecret(secret string) bool {
	return strings.HasPrefix(secret, "$2")
}
