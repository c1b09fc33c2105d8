package clientauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oauth2-server/clientauth"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
)

const testTokenEndpoint = "https://auth.example.com/oauth2/token"

type authFixture struct {
	authenticator *clientauth.Authenticator
	registry      *clients.Registry
	robotKey      *keys.KeyPair
	now           time.Time
}

func setupAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	robotKey, err := keys.GenerateRSAKeyPair("robot-key", 2048)
	require.NoError(t, err)
	f.robotKey = robotKey
	robotPEM, err := robotKey.ExportPublicKeyPEM()
	require.NoError(t, err)

	f.registry = clients.NewRegistry(clients.NewInMemoryRepo())
	for _, client := range []*clients.Client{
		{
			ID:          "web-app",
			Type:        clients.ClientTypeConfidential,
			SecretHash:  "s3cret",
			AuthMethods: []clients.AuthMethod{clients.AuthMethodBasic, clients.AuthMethodPost},
		},
		{
			ID:         "basic-only",
			Type:       clients.ClientTypeConfidential,
			SecretHash: "s3cret",
		},
		{
			ID:          "spa",
			Type:        clients.ClientTypePublic,
			AuthMethods: []clients.AuthMethod{clients.AuthMethodNone},
		},
		{
			ID:           "robot",
			Type:         clients.ClientTypeConfidential,
			AuthMethods:  []clients.AuthMethod{clients.AuthMethodPrivateKeyJWT},
			PublicKeyPEM: robotPEM,
		},
	} {
		require.NoError(t, f.registry.Register(context.Background(), client))
	}

	f.authenticator = clientauth.New(f.registry, testTokenEndpoint, clientauth.NewMemoryReplayCache(),
		clientauth.WithNowFunc(func() time.Time { return f.now }))
	return f
}

func (f *authFixture) assertionClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "robot",
		"sub": "robot",
		"aud": testTokenEndpoint,
		"exp": f.now.Add(2 * time.Minute).Unix(),
		"iat": f.now.Unix(),
		"jti": uuid.New().String(),
	}
}

func (f *authFixture) signAssertion(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(f.robotKey.PrivateKey)
	require.NoError(t, err)
	return signed
}

func requireInvalidClient(t *testing.T, err error) {
	t.Helper()
	var oauthErr *oauthmodel.Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, oauthmodel.ErrorCodeInvalidClient, oauthErr.Code)
}

func TestAuthenticateSecret(t *testing.T) {
	t.Run("basic credentials", func(t *testing.T) {
		f := setupAuthFixture(t)

		client, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "web-app",
			ClientSecret: "s3cret",
			BasicAuth:    true,
		})
		require.NoError(t, err)
		require.Equal(t, "web-app", client.ID)
	})

	t.Run("post credentials", func(t *testing.T) {
		f := setupAuthFixture(t)

		client, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "web-app",
			ClientSecret: "s3cret",
		})
		require.NoError(t, err)
		require.Equal(t, "web-app", client.ID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "web-app",
			ClientSecret: "nope",
			BasicAuth:    true,
		})
		requireInvalidClient(t, err)
	})

	t.Run("unknown client", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "ghost",
			ClientSecret: "s3cret",
			BasicAuth:    true,
		})
		requireInvalidClient(t, err)
	})

	t.Run("registered methods default to basic only", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "basic-only",
			ClientSecret: "s3cret",
		})
		requireInvalidClient(t, err)

		client, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID:     "basic-only",
			ClientSecret: "s3cret",
			BasicAuth:    true,
		})
		require.NoError(t, err)
		require.Equal(t, "basic-only", client.ID)
	})

	t.Run("missing client id", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{})
		requireInvalidClient(t, err)
	})
}

func TestAuthenticateNone(t *testing.T) {
	t.Run("public client with bare client_id", func(t *testing.T) {
		f := setupAuthFixture(t)

		client, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID: "spa",
		})
		require.NoError(t, err)
		require.Equal(t, "spa", client.ID)
	})

	t.Run("confidential client must present credentials", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientID: "web-app",
		})
		requireInvalidClient(t, err)
	})
}

func TestAuthenticateAssertion(t *testing.T) {
	request := func(assertion string) *oauthmodel.TokenRequest {
		return &oauthmodel.TokenRequest{
			ClientAssertionType: oauthmodel.ClientAssertionTypeJWTBearer,
			ClientAssertion:     assertion,
		}
	}

	t.Run("valid assertion", func(t *testing.T) {
		f := setupAuthFixture(t)

		client, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, f.assertionClaims())))
		require.NoError(t, err)
		require.Equal(t, "robot", client.ID)
	})

	t.Run("replayed assertion is rejected", func(t *testing.T) {
		f := setupAuthFixture(t)
		assertion := f.signAssertion(t, f.assertionClaims())

		_, err := f.authenticator.Authenticate(context.Background(), request(assertion))
		require.NoError(t, err)

		_, err = f.authenticator.Authenticate(context.Background(), request(assertion))
		requireInvalidClient(t, err)
	})

	t.Run("fresh jti on each assertion is accepted", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, f.assertionClaims())))
		require.NoError(t, err)

		_, err = f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, f.assertionClaims())))
		require.NoError(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		f := setupAuthFixture(t)
		claims := f.assertionClaims()
		claims["aud"] = "https://elsewhere.example.com/token"

		_, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, claims)))
		requireInvalidClient(t, err)
	})

	t.Run("expired assertion", func(t *testing.T) {
		f := setupAuthFixture(t)
		claims := f.assertionClaims()
		claims["exp"] = f.now.Add(-time.Minute).Unix()

		_, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, claims)))
		requireInvalidClient(t, err)
	})

	t.Run("issuer must match subject", func(t *testing.T) {
		f := setupAuthFixture(t)
		claims := f.assertionClaims()
		claims["iss"] = "someone-else"

		_, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, claims)))
		requireInvalidClient(t, err)
	})

	t.Run("missing jti", func(t *testing.T) {
		f := setupAuthFixture(t)
		claims := f.assertionClaims()
		delete(claims, "jti")

		_, err := f.authenticator.Authenticate(context.Background(), request(f.signAssertion(t, claims)))
		requireInvalidClient(t, err)
	})

	t.Run("assertion signed with a foreign key", func(t *testing.T) {
		f := setupAuthFixture(t)
		foreignKey, err := keys.GenerateRSAKeyPair("foreign", 2048)
		require.NoError(t, err)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, f.assertionClaims()).SignedString(foreignKey.PrivateKey)
		require.NoError(t, err)

		_, err = f.authenticator.Authenticate(context.Background(), request(signed))
		requireInvalidClient(t, err)
	})

	t.Run("unsupported assertion type", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientAssertionType: "urn:example:wrong",
			ClientAssertion:     f.signAssertion(t, f.assertionClaims()),
		})
		var oauthErr *oauthmodel.Error
		require.ErrorAs(t, err, &oauthErr)
		require.Equal(t, oauthmodel.ErrorCodeInvalidRequest, oauthErr.Code)
	})

	t.Run("assertion mixed with a client secret", func(t *testing.T) {
		f := setupAuthFixture(t)

		_, err := f.authenticator.Authenticate(context.Background(), &oauthmodel.TokenRequest{
			ClientSecret:        "s3cret",
			ClientAssertionType: oauthmodel.ClientAssertionTypeJWTBearer,
			ClientAssertion:     f.signAssertion(t, f.assertionClaims()),
		})
		var oauthErr *oauthmodel.Error
		require.ErrorAs(t, err, &oauthErr)
		require.Equal(t, oauthmodel.ErrorCodeInvalidRequest, oauthErr.Code)
	})
}
