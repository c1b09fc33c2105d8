package token

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/internal/utils"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
	"github.com/jrsteele09/go-oauth2-server/tokenstore"
)

// Introspection represents the metadata information of an OAuth 2.0 token.
// When Active is false no other field is populated, so callers learn nothing
// about tokens the server does not vouch for.
type Introspection struct {
	Active    bool    `json:"active"`               // True or false - is the token currently live
	Scope     string  `json:"scope,omitempty"`      // Space separated scopes carried by the token
	ClientID  *string `json:"client_id,omitempty"`  // The client the token was issued to
	Sub       *string `json:"sub,omitempty"`        // Subject of the token
	Aud       *string `json:"aud,omitempty"`        // Audience of the token
	Iss       *string `json:"iss,omitempty"`        // Issuer of the token
	TokenType string  `json:"token_type,omitempty"` // "Bearer" for access tokens, "refresh_token" for refresh tokens
	Exp       *int64  `json:"exp,omitempty"`        // Expiration
	Iat       *int64  `json:"iat,omitempty"`        // Issued at time
	Jti       *string `json:"jti,omitempty"`        // Unique token ID
}

// Introspect reports the state of an access or refresh token. It never
// returns an error: anything the server cannot verify end to end comes back
// as inactive. A JWT must carry a valid signature AND a live record in the
// token store; opaque values are looked up by hash.
func (c *Manager) Introspect(ctx context.Context, rawToken string) *Introspection {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return &Introspection{Active: false}
	}
	if isJWT(rawToken) {
		return c.introspectJWT(ctx, rawToken)
	}
	return c.introspectOpaque(ctx, rawToken)
}

func (c *Manager) introspectJWT(ctx context.Context, rawToken string) *Introspection {
	claims, err := c.verifyJWT(rawToken)
	if err != nil {
		return &Introspection{Active: false}
	}

	jti, _ := claims["jti"].(string)
	if _, err := c.liveRecord(ctx, jti); err != nil {
		return &Introspection{Active: false}
	}

	info := &Introspection{
		Active:    true,
		TokenType: "Bearer",
		Jti:       utils.Ptr(jti),
	}
	if scope, ok := claims["scope"].(string); ok {
		info.Scope = scope
	}
	if iss, ok := claims["iss"].(string); ok && iss != "" {
		info.Iss = utils.Ptr(iss)
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		info.Sub = utils.Ptr(sub)
	}
	switch aud := claims["aud"].(type) {
	case string:
		if aud != "" {
			info.Aud = utils.Ptr(aud)
		}
	case []any:
		// Multi valued audiences decode from JSON as a list.
		if joined := strings.Join(utils.ToStringSlice(aud), " "); joined != "" {
			info.Aud = utils.Ptr(joined)
		}
	}
	if clientID, ok := claims["client_id"].(string); ok && clientID != "" {
		info.ClientID = utils.Ptr(clientID)
	}
	if exp, ok := numericClaim(claims, "exp"); ok {
		info.Exp = utils.Ptr(exp)
	}
	if iat, ok := numericClaim(claims, "iat"); ok {
		info.Iat = utils.Ptr(iat)
	}
	return info
}

func (c *Manager) introspectOpaque(ctx context.Context, rawToken string) *Introspection {
	record, err := c.store.GetByValueHash(ctx, tokenstore.HashValue(rawToken))
	if err != nil {
		return &Introspection{Active: false}
	}
	if !record.Active(c.nowFunc()) {
		return &Introspection{Active: false}
	}

	info := &Introspection{
		Active:    true,
		Scope:     oauthmodel.JoinScopes(record.Scopes),
		ClientID:  utils.Ptr(record.ClientID),
		TokenType: "refresh_token",
		Exp:       utils.Ptr(record.ExpiresAt.Unix()),
		Iat:       utils.Ptr(record.IssuedAt.Unix()),
		Jti:       utils.Ptr(record.JTI),
	}
	if c.issuer != "" {
		info.Iss = utils.Ptr(c.issuer)
	}
	if record.Subject != "" {
		info.Sub = utils.Ptr(record.Subject)
	}
	return info
}

// Revoke invalidates a token presented by its owning client. Unknown values
// and tokens owned by other clients are ignored, as revocation must not leak
// whether a token exists. Revoking a refresh token also revokes every access
// token minted from it.
func (c *Manager) Revoke(ctx context.Context, rawToken string, clientID string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil
	}

	record := c.lookupRecord(ctx, rawToken)
	if record == nil || record.ClientID != clientID {
		return nil
	}

	if err := c.store.Revoke(ctx, record.JTI); err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Manager.Revoke] store.Revoke")
	}
	if record.Kind == tokenstore.KindRefresh {
		if _, err := c.store.RevokeByParent(ctx, record.JTI); err != nil {
			return errors.Wrap(err, "[Manager.Revoke] store.RevokeByParent")
		}
	}
	return nil
}

func (c *Manager) lookupRecord(ctx context.Context, rawToken string) *tokenstore.Record {
	if isJWT(rawToken) {
		claims, err := c.verifyJWT(rawToken)
		if err != nil {
			return nil
		}
		jti, _ := claims["jti"].(string)
		if jti == "" {
			return nil
		}
		record, err := c.store.GetByJTI(ctx, jti)
		if err != nil {
			return nil
		}
		return record
	}

	record, err := c.store.GetByValueHash(ctx, tokenstore.HashValue(rawToken))
	if err != nil {
		return nil
	}
	return record
}

func (c *Manager) verifyJWT(rawToken string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{keys.RS256}),
		jwt.WithTimeFunc(c.nowFunc))
	if err != nil {
		return nil, errors.Wrap(err, "jwt.Parse")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

func (c *Manager) liveRecord(ctx context.Context, jti string) (*tokenstore.Record, error) {
	if jti == "" {
		return nil, errors.New("token has no jti")
	}
	record, err := c.store.GetByJTI(ctx, jti)
	if err != nil {
		return nil, errors.Wrap(err, "store.GetByJTI")
	}
	if !record.Active(c.nowFunc()) {
		return nil, errors.New("token record is not active")
	}
	return record, nil
}

func isJWT(rawToken string) bool {
	return strings.Count(rawToken, ".") == 2
}

// numericClaim reads a claim that arrives as float64 from JSON decoding but
// as int64 when the claims were built in process.
func numericClaim(claims jwt.MapClaims, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
