package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
	"github.com/jrsteele09/go-oauth2-server/tokenstore"
)

// Manager mints, introspects and revokes tokens. Access tokens are RS256
// JWTs signed by the keyring; refresh tokens are opaque random values stored
// only as hashes. Every issued token leaves a record in the token store so
// introspection and revocation answer from server-side state.
type Manager struct {
	store               tokenstore.Store
	signer              keys.Signer
	issuer              string
	audience            string
	rotateRefreshTokens bool
	accessTokenExpiry   time.Duration
	idTokenExpiry       time.Duration
	refreshTokenExpiry  time.Duration
	nowFunc             func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration, idTokenExpiry time.Duration, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

// WithRefreshTokenReuse disables refresh token rotation: the presented token
// stays valid across exchanges and is echoed back in the response.
func WithRefreshTokenReuse() ManagerOption {
	return func(m *Manager) {
		m.rotateRefreshTokens = false
	}
}

func New(store tokenstore.Store, signer keys.Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		store:               store,
		signer:              signer,
		rotateRefreshTokens: true,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// GetJWKS returns the published verification keys.
func (c *Manager) GetJWKS() (*keys.JWKS, error) {
	return c.signer.GetJWKS()
}

// IssueFromCode completes an authorization_code exchange for a consumed
// grant: it re-checks PKCE, then mints the access token, an ID token when the
// grant includes openid, and a refresh token when the client is registered
// for the refresh_token grant.
func (c *Manager) IssueFromCode(ctx context.Context, client *clients.Client, grant *authcode.Grant, codeVerifier string) (*oauthmodel.TokenResponse, error) {
	if oauthErr := grant.CheckVerifier(codeVerifier); oauthErr != nil {
		return nil, oauthErr
	}

	now := c.nowFunc()
	scopes := grant.Scopes
	records := make([]*tokenstore.Record, 0, 2)

	var refreshValue *string
	refreshJTI := ""
	if client.HasGrantType(oauthmodel.RefreshTokenGrant) {
		value, record, err := c.newRefreshRecord(client, grant.Subject, scopes, scopes, "", now)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.IssueFromCode] newRefreshRecord")
		}
		refreshValue = &value
		refreshJTI = record.JTI
		records = append(records, record)
	}

	accessToken, accessRecord, err := c.newAccessToken(client, grant.Subject, scopes, refreshJTI, now)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueFromCode] newAccessToken")
	}
	records = append(records, accessRecord)

	var idToken *string
	if grant.Subject != "" && containsOpenID(scopes) {
		idToken, err = c.createIDToken(client, grant.Subject, grant.Nonce, *accessToken, grant.AuthTime, now)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.IssueFromCode] createIDToken")
		}
	}

	if err := c.store.Put(ctx, records...); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueFromCode] store.Put")
	}

	return &oauthmodel.TokenResponse{
		AccessToken:  accessToken,
		IdToken:      idToken,
		TokenType:    "bearer",
		ExpiresIn:    int(c.accessTTL(client).Seconds()),
		RefreshToken: refreshValue,
		Scope:        oauthmodel.JoinScopes(scopes),
	}, nil
}

// IssueFromRefresh exchanges a refresh token. The presented value must hash
// to a live refresh record owned by the client; requested scopes may only
// narrow the original grant. With rotation enabled (the default) the old
// token is atomically retired and a replacement issued, so a replayed value
// fails even under concurrent exchanges.
func (c *Manager) IssueFromRefresh(ctx context.Context, client *clients.Client, presented string, requestedScope string) (*oauthmodel.TokenResponse, error) {
	record, err := c.store.GetByValueHash(ctx, tokenstore.HashValue(presented))
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			return nil, oauthmodel.InvalidGrant("refresh token is not recognised")
		}
		return nil, errors.Wrap(err, "[Manager.IssueFromRefresh] store.GetByValueHash")
	}

	now := c.nowFunc()
	switch {
	case record.Kind != tokenstore.KindRefresh:
		return nil, oauthmodel.InvalidGrant("token is not a refresh token")
	case record.ClientID != client.ID:
		return nil, oauthmodel.InvalidGrant("refresh token is not recognised")
	case record.Revoked:
		return nil, oauthmodel.InvalidGrant("refresh token is no longer valid")
	case !now.Before(record.ExpiresAt):
		return nil, oauthmodel.InvalidGrant("refresh token expired")
	}

	scopes := record.GrantScopes
	if requested := oauthmodel.SplitScopes(requestedScope); len(requested) > 0 {
		if !oauthmodel.ScopeSubset(requested, record.GrantScopes) {
			return nil, oauthmodel.InvalidScope("requested scope exceeds the original grant")
		}
		scopes = requested
	}

	refreshValue := presented
	parentJTI := record.JTI
	var newRefresh *tokenstore.Record
	if c.rotateRefreshTokens {
		value, replacement, err := c.newRefreshRecord(client, record.Subject, scopes, record.GrantScopes, record.JTI, now)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.IssueFromRefresh] newRefreshRecord")
		}
		refreshValue = value
		parentJTI = replacement.JTI
		newRefresh = replacement
	}

	accessToken, accessRecord, err := c.newAccessToken(client, record.Subject, scopes, parentJTI, now)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueFromRefresh] newAccessToken")
	}

	var idToken *string
	if record.Subject != "" && containsOpenID(scopes) {
		idToken, err = c.createIDToken(client, record.Subject, "", *accessToken, time.Time{}, now)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.IssueFromRefresh] createIDToken")
		}
	}

	if c.rotateRefreshTokens {
		err = c.store.Rotate(ctx, record.JTI, newRefresh, accessRecord)
		if errors.Is(err, tokenstore.ErrTokenRevoked) || errors.Is(err, tokenstore.ErrTokenNotFound) {
			// A concurrent exchange won the rotation.
			return nil, oauthmodel.InvalidGrant("refresh token is no longer valid")
		}
	} else {
		err = c.store.Put(ctx, accessRecord)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueFromRefresh] store update")
	}

	return &oauthmodel.TokenResponse{
		AccessToken:  accessToken,
		IdToken:      idToken,
		TokenType:    "bearer",
		ExpiresIn:    int(c.accessTTL(client).Seconds()),
		RefreshToken: &refreshValue,
		Scope:        oauthmodel.JoinScopes(scopes),
	}, nil
}

// IssueClientCredentials mints a machine-to-machine access token. The
// subject is the client itself and neither a refresh token nor an ID token
// is issued.
func (c *Manager) IssueClientCredentials(ctx context.Context, client *clients.Client, requestedScope string) (*oauthmodel.TokenResponse, error) {
	if err := client.ValidateScopes(requestedScope); err != nil {
		return nil, oauthmodel.InvalidScope("requested scope is not registered for the client")
	}

	now := c.nowFunc()
	scopes := oauthmodel.SplitScopes(requestedScope)

	accessToken, record, err := c.newAccessToken(client, client.ID, scopes, "", now)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueClientCredentials] newAccessToken")
	}
	if err := c.store.Put(ctx, record); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueClientCredentials] store.Put")
	}

	return &oauthmodel.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(c.accessTTL(client).Seconds()),
		Scope:       oauthmodel.JoinScopes(scopes),
	}, nil
}

func (c *Manager) newAccessToken(client *clients.Client, subject string, scopes []string, parentJTI string, now time.Time) (*string, *tokenstore.Record, error) {
	jti := uuid.New().String()
	expiresAt := now.Add(c.accessTTL(client))

	claims := jwt.MapClaims{
		"iss":       c.issuer,          // The issuer of the token
		"sub":       subject,           // The authenticated user, or the client for machine tokens
		"client_id": client.ID,         // The client the token was issued to
		"iat":       int64(now.Unix()), // Issued At: the time at which the token was issued
		"exp":       expiresAt.Unix(),  // Expiry: when the token will expire
		"jti":       jti,               // Unique token ID for revocation
	}
	if c.audience != "" {
		claims["aud"] = c.audience
	}
	if len(scopes) > 0 {
		claims["scope"] = oauthmodel.JoinScopes(scopes)
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return nil, nil, errors.Wrap(err, "signer.Sign")
	}

	record := &tokenstore.Record{
		JTI:       jti,
		Kind:      tokenstore.KindAccess,
		ClientID:  client.ID,
		Subject:   subject,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		ParentJTI: parentJTI,
	}
	return &signed, record, nil
}

func (c *Manager) createIDToken(client *clients.Client, subject, nonce, accessToken string, authTime time.Time, now time.Time) (*string, error) {
	claims := jwt.MapClaims{
		"iss":     c.issuer,
		"sub":     subject,
		"aud":     client.ID,
		"iat":     int64(now.Unix()),
		"exp":     now.Add(c.idTTL(client)).Unix(),
		"jti":     uuid.New().String(),
		"at_hash": accessTokenHash(accessToken),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if !authTime.IsZero() {
		claims["auth_time"] = authTime.Unix()
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "signer.Sign")
	}
	return &signed, nil
}

func (c *Manager) newRefreshRecord(client *clients.Client, subject string, scopes, grantScopes []string, parentJTI string, now time.Time) (string, *tokenstore.Record, error) {
	value, err := tokenstore.NewOpaqueValue()
	if err != nil {
		return "", nil, errors.Wrap(err, "tokenstore.NewOpaqueValue")
	}

	record := &tokenstore.Record{
		JTI:         uuid.New().String(),
		Kind:        tokenstore.KindRefresh,
		ValueHash:   tokenstore.HashValue(value),
		ClientID:    client.ID,
		Subject:     subject,
		Scopes:      append([]string(nil), scopes...),
		GrantScopes: append([]string(nil), grantScopes...),
		IssuedAt:    now,
		ExpiresAt:   now.Add(c.refreshTTL(client)),
		ParentJTI:   parentJTI,
	}
	return value, record, nil
}

func (c *Manager) accessTTL(client *clients.Client) time.Duration {
	if client != nil && client.AccessTokenTTL > 0 {
		return client.AccessTokenTTL
	}
	return c.accessTokenExpiry
}

func (c *Manager) idTTL(client *clients.Client) time.Duration {
	if client != nil && client.IDTokenTTL > 0 {
		return client.IDTokenTTL
	}
	return c.idTokenExpiry
}

func (c *Manager) refreshTTL(client *clients.Client) time.Duration {
	if client != nil && client.RefreshTokenTTL > 0 {
		return client.RefreshTokenTTL
	}
	return c.refreshTokenExpiry
}

func containsOpenID(scopes []string) bool {
	for _, scope := range scopes {
		if scope == oauthmodel.ScopeOpenID {
			return true
		}
	}
	return false
}

// accessTokenHash derives the OIDC at_hash claim: the left half of the
// SHA-256 digest of the access token, base64url encoded without padding.
func accessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
