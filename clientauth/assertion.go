package clientauth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
)

// maxAssertionLifetime caps the replay cache TTL for assertion IDs; an exp
// claim further out than this does not extend how long the jti is remembered
// because the assertion is rejected for other reasons long before.
const maxAssertionLifetime = time.Hour

// authenticateAssertion verifies a private_key_jwt client assertion: the JWT
// must be signed with the client's registered key, addressed to this token
// endpoint, self-issued (iss == sub == client_id), carry an expiry and a
// previously unseen jti.
func (a *Authenticator) authenticateAssertion(ctx context.Context, request *oauthmodel.TokenRequest) (*clients.Client, error) {
	if request.ClientAssertionType != oauthmodel.ClientAssertionTypeJWTBearer {
		return nil, oauthmodel.InvalidRequest("unsupported client_assertion_type")
	}
	if request.ClientAssertion == "" {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	claimedID, err := assertionSubject(request.ClientAssertion)
	if err != nil {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}
	if request.ClientID != "" && request.ClientID != claimedID {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	client, err := a.registry.Get(ctx, claimedID)
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, oauthmodel.InvalidClient("client authentication failed")
		}
		return nil, errors.Wrap(err, "[Authenticator.authenticateAssertion] registry.Get")
	}
	if !client.HasAuthMethod(clients.AuthMethodPrivateKeyJWT) || client.PublicKeyPEM == "" {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	publicKey, err := keys.LoadRSAPublicKeyFromPEM(client.PublicKeyPEM)
	if err != nil {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{keys.RS256}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.tokenEndpoint),
		jwt.WithTimeFunc(a.nowFunc),
	)
	parsed, err := parser.Parse(request.ClientAssertion, func(*jwt.Token) (any, error) {
		return publicKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}
	issuer, _ := claims["iss"].(string)
	subject, _ := claims["sub"].(string)
	if issuer != client.ID || subject != client.ID {
		return nil, oauthmodel.InvalidClient("client authentication failed")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, oauthmodel.InvalidClient("client assertion must carry a jti")
	}
	if !a.replay.Remember(ctx, client.ID+":"+jti, a.assertionTTL(claims)) {
		return nil, oauthmodel.InvalidClient("client assertion has already been used")
	}
	return client, nil
}

// assertionSubject reads the unverified sub claim so the right client, and
// with it the right verification key, can be looked up before the signature
// is checked.
func assertionSubject(assertion string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return "", errors.Wrap(err, "jwt.ParseUnverified")
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", errors.Wrap(err, "claims.GetSubject")
	}
	if subject == "" {
		return "", errors.New("assertion has no subject")
	}
	return subject, nil
}

func (a *Authenticator) assertionTTL(claims jwt.MapClaims) time.Duration {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return maxAssertionLifetime
	}
	ttl := exp.Time.Sub(a.nowFunc())
	if ttl <= 0 || ttl > maxAssertionLifetime {
		return maxAssertionLifetime
	}
	return ttl
}
