package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jrsteele09/go-oauth2-server/auth"
	"github.com/jrsteele09/go-oauth2-server/auth/flowrepo"
	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/clientauth"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/consent"
	"github.com/jrsteele09/go-oauth2-server/internal/config"
	"github.com/jrsteele09/go-oauth2-server/internal/metrics"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/server"
	"github.com/jrsteele09/go-oauth2-server/token"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
	"github.com/jrsteele09/go-oauth2-server/tokenstore"
)

const (
	testSubject     = "user-42"
	testRedirectURI = "https://app.example.com/callback"
	testLoginURL    = "https://accounts.example.com/login"
	testConsentURL  = "https://accounts.example.com/consent"
)

// testConfig pins the base URL to the httptest server so the issuer in the
// discovery document matches what the conformance client dials.
type testConfig struct {
	config.Config
	baseURL string
}

func (c testConfig) GetBaseURL() string    { return c.baseURL }
func (c testConfig) GetLoginURL() string   { return testLoginURL }
func (c testConfig) GetConsentURL() string { return testConsentURL }
func (c testConfig) GetEnv() string        { return "test" }

type serverFixture struct {
	ts       *httptest.Server
	registry *clients.Registry

	// userAgent never follows redirects so each hop's Location can be read.
	userAgent *http.Client
}

// newServerFixture assembles a full in-memory server behind an httptest
// listener. The handler is bound through an indirection because the issuer
// (the listener URL) has to exist before the server can be built.
func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	keyPair, err := keys.GenerateRSAKeyPair("test-key", 2048)
	require.NoError(t, err)
	keyring, err := keys.NewKeyring(keyPair)
	require.NoError(t, err)

	registry := clients.NewRegistry(clients.NewInMemoryRepo())
	stores := auth.Stores{
		Clients:  registry,
		Consents: consent.NewStore(consent.NewInMemoryRepo()),
		Codes:    authcode.NewInMemoryStore(),
		Flows:    flowrepo.NewInMemoryRepo(),
	}

	tokenManager := token.New(tokenstore.NewInMemoryStore(), keyring, token.WithIssuer(ts.URL))
	clientAuth := clientauth.New(registry, ts.URL+server.RouteOAuth2Token, clientauth.NewMemoryReplayCache())

	authService, err := auth.NewAuthorizationService(stores, tokenManager, clientAuth)
	require.NoError(t, err)

	cfg := testConfig{Config: config.New(), baseURL: ts.URL}
	srv, err := server.New(cfg, authService, metrics.New())
	require.NoError(t, err)
	handler = srv

	return &serverFixture{
		ts:       ts,
		registry: registry,
		userAgent: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *serverFixture) registerWebClient(t *testing.T) {
	t.Helper()
	require.NoError(t, f.registry.Register(context.Background(), &clients.Client{
		ID:           "web-app",
		SecretHash:   "web-secret",
		AuthMethods:  []clients.AuthMethod{clients.AuthMethodBasic, clients.AuthMethodPost},
		GrantTypes:   []oauthmodel.GrantType{oauthmodel.AuthorizationCodeGrant, oauthmodel.RefreshTokenGrant},
		RedirectURIs: []string{testRedirectURI},
		Scopes:       []string{"openid", "profile", "api.read"},
	}))
}

// fetchRedirect performs one hop of the flow and returns the parsed Location.
func (f *serverFixture) fetchRedirect(t *testing.T, req *http.Request) *url.URL {
	t.Helper()
	resp, err := f.userAgent.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return location
}

func (f *serverFixture) postCallback(t *testing.T, route string, payload any) *url.URL {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+route, strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return f.fetchRedirect(t, req)
}

// completeFlow walks the user agent through authorize -> login surface ->
// consent surface and returns the query parameters delivered to the client's
// redirect URI.
func (f *serverFixture) completeFlow(t *testing.T, authURL string) url.Values {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	require.NoError(t, err)
	loginLocation := f.fetchRedirect(t, req)
	require.Equal(t, testLoginURL, loginLocation.Scheme+"://"+loginLocation.Host+loginLocation.Path)
	flowID := loginLocation.Query().Get("flow_id")
	require.NotEmpty(t, flowID)

	next := f.postCallback(t, server.RouteLoginCallback, map[string]any{
		"flow_id": flowID,
		"subject": testSubject,
	})

	// First pass through a flow stops at the consent surface; later flows for
	// already approved scopes go straight back to the client.
	if strings.HasPrefix(next.String(), testConsentURL) {
		pending := next.Query().Get("scope")
		require.NotEmpty(t, pending)
		next = f.postCallback(t, server.RouteConsentCallback, map[string]any{
			"flow_id":  flowID,
			"approved": true,
			"scopes":   strings.Fields(pending),
		})
	}

	require.Equal(t, testRedirectURI, next.Scheme+"://"+next.Host+next.Path)
	return next.Query()
}

// TestAuthorizationCodeFlowConformance drives the whole code flow with the
// stock OIDC client libraries: discovery, PKCE, login and consent hops, code
// exchange, ID token verification against the published JWKS, userinfo,
// introspection, refresh rotation and revocation cascade.
func TestAuthorizationCodeFlowConformance(t *testing.T) {
	f := newServerFixture(t)
	f.registerWebClient(t)
	ctx := context.Background()

	provider, err := oidc.NewProvider(ctx, f.ts.URL)
	require.NoError(t, err)

	conf := oauth2.Config{
		ClientID:     "web-app",
		ClientSecret: "web-secret",
		Endpoint:     provider.Endpoint(),
		RedirectURL:  testRedirectURI,
		Scopes:       []string{oidc.ScopeOpenID, "profile"},
	}

	verifier := oauth2.GenerateVerifier()
	const state = "af0ifjsldkj"
	const nonce = "n-0S6_WzA2Mj"
	authURL := conf.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
	)

	params := f.completeFlow(t, authURL)
	require.Equal(t, state, params.Get("state"))
	code := params.Get("code")
	require.NotEmpty(t, code)

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	require.True(t, tok.Valid())
	require.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, "openid profile", tok.Extra("scope"))

	// The ID token must verify against the server's own JWKS.
	rawIDToken, ok := tok.Extra("id_token").(string)
	require.True(t, ok, "token response carries an id_token")
	idToken, err := provider.Verifier(&oidc.Config{ClientID: "web-app"}).Verify(ctx, rawIDToken)
	require.NoError(t, err)
	assert.Equal(t, testSubject, idToken.Subject)
	assert.Equal(t, nonce, idToken.Nonce)
	require.NoError(t, idToken.VerifyAccessToken(tok.AccessToken))

	userInfo, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	require.NoError(t, err)
	assert.Equal(t, testSubject, userInfo.Subject)

	introspection := f.introspect(t, conf.ClientID, conf.ClientSecret, tok.AccessToken)
	require.Equal(t, true, introspection["active"])
	assert.Equal(t, testSubject, introspection["sub"])
	assert.Equal(t, "web-app", introspection["client_id"])
	assert.Equal(t, "openid profile", introspection["scope"])

	// A consumed code is burned: replaying the exchange fails cleanly.
	_, err = conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)

	// Force the library through a real refresh by expiring the token.
	originalRefresh := tok.RefreshToken
	tok.Expiry = time.Now().Add(-time.Minute)
	refreshed, err := conf.TokenSource(ctx, tok).Token()
	require.NoError(t, err)
	require.NotEqual(t, tok.AccessToken, refreshed.AccessToken)
	require.NotEqual(t, originalRefresh, refreshed.RefreshToken, "refresh token rotates on use")

	// The rotated-out refresh token is dead.
	stale := &oauth2.Token{RefreshToken: originalRefresh, Expiry: time.Now().Add(-time.Minute)}
	_, err = conf.TokenSource(ctx, stale).Token()
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)

	// Revoking the live refresh token cascades to the access token it issued.
	f.revoke(t, conf.ClientID, conf.ClientSecret, refreshed.RefreshToken)
	introspection = f.introspect(t, conf.ClientID, conf.ClientSecret, refreshed.AccessToken)
	require.Equal(t, false, introspection["active"])
	assert.Len(t, introspection, 1, "inactive introspection discloses nothing else")
}

// TestSecondFlowSkipsConsent re-runs the flow for a subject whose consent is
// already on record; the consent surface must not be visited again.
func TestSecondFlowSkipsConsent(t *testing.T) {
	f := newServerFixture(t)
	f.registerWebClient(t)
	ctx := context.Background()

	provider, err := oidc.NewProvider(ctx, f.ts.URL)
	require.NoError(t, err)

	conf := oauth2.Config{
		ClientID:     "web-app",
		ClientSecret: "web-secret",
		Endpoint:     provider.Endpoint(),
		RedirectURL:  testRedirectURI,
		Scopes:       []string{oidc.ScopeOpenID, "profile"},
	}

	verifier := oauth2.GenerateVerifier()
	f.completeFlow(t, conf.AuthCodeURL("first", oauth2.S256ChallengeOption(verifier)))

	// Second pass: completeFlow only visits the consent surface when the
	// server asks for it, so reaching the callback here proves the stored
	// consent was honoured. Walk it manually to assert the hop directly.
	req, err := http.NewRequest(http.MethodGet, conf.AuthCodeURL("second", oauth2.S256ChallengeOption(verifier)), nil)
	require.NoError(t, err)
	loginLocation := f.fetchRedirect(t, req)
	flowID := loginLocation.Query().Get("flow_id")

	next := f.postCallback(t, server.RouteLoginCallback, map[string]any{
		"flow_id": flowID,
		"subject": testSubject,
	})
	require.Equal(t, testRedirectURI, next.Scheme+"://"+next.Host+next.Path)
	assert.Equal(t, "second", next.Query().Get("state"))
	assert.NotEmpty(t, next.Query().Get("code"))
}

// TestClientCredentialsConformance is the machine-to-machine scenario: the
// seeded abcd/secret client obtains a scope "test" access token and no
// refresh token.
func TestClientCredentialsConformance(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.registry.Register(context.Background(), &clients.Client{
		ID:          "abcd",
		SecretHash:  "secret",
		AuthMethods: []clients.AuthMethod{clients.AuthMethodBasic},
		GrantTypes:  []oauthmodel.GrantType{oauthmodel.ClientCredentialsGrant},
		Scopes:      []string{"test"},
	}))

	conf := clientcredentials.Config{
		ClientID:     "abcd",
		ClientSecret: "secret",
		TokenURL:     f.ts.URL + server.RouteOAuth2Token,
		Scopes:       []string{"test"},
	}

	tok, err := conf.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Empty(t, tok.RefreshToken)
	assert.Equal(t, "test", tok.Extra("scope"))

	introspection := f.introspect(t, "abcd", "secret", tok.AccessToken)
	require.Equal(t, true, introspection["active"])
	assert.Equal(t, "abcd", introspection["sub"], "machine tokens carry the client as subject")
	assert.Equal(t, "test", introspection["scope"])

	// Wrong credentials answer 401 invalid_client, same for a wrong id or a
	// wrong secret.
	bad := clientcredentials.Config{ClientID: "abcd", ClientSecret: "wrong", TokenURL: conf.TokenURL}
	_, err = bad.Token(context.Background())
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, http.StatusUnauthorized, retrieveErr.Response.StatusCode)
	assert.Equal(t, "invalid_client", retrieveErr.ErrorCode)
}

// TestBasicAuthReservedCharacterSecret exercises the RFC 6749 §2.3.1 encoding
// rule: the stock client form-urlencodes credentials before base64ing the
// Basic header, so a secret with reserved characters must still authenticate.
func TestBasicAuthReservedCharacterSecret(t *testing.T) {
	f := newServerFixture(t)
	const secret = "s%cre t+/="
	require.NoError(t, f.registry.Register(context.Background(), &clients.Client{
		ID:          "percent-machine",
		SecretHash:  secret,
		AuthMethods: []clients.AuthMethod{clients.AuthMethodBasic},
		GrantTypes:  []oauthmodel.GrantType{oauthmodel.ClientCredentialsGrant},
		Scopes:      []string{"test"},
	}))

	conf := clientcredentials.Config{
		ClientID:     "percent-machine",
		ClientSecret: secret,
		TokenURL:     f.ts.URL + server.RouteOAuth2Token,
		Scopes:       []string{"test"},
	}
	tok, err := conf.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
}

// TestAuthorizeErrorDelivery checks the two-stage error discipline: failures
// before the redirect URI is verified render locally, failures after it
// travel back to the client.
func TestAuthorizeErrorDelivery(t *testing.T) {
	f := newServerFixture(t)
	f.registerWebClient(t)

	authorize := func(query url.Values) *http.Response {
		t.Helper()
		resp, err := f.userAgent.Get(f.ts.URL + server.RouteOAuth2Authorize + "?" + query.Encode())
		require.NoError(t, err)
		return resp
	}

	t.Run("unknown client renders locally", func(t *testing.T) {
		resp := authorize(url.Values{
			"response_type": {"code"},
			"client_id":     {"no-such-client"},
			"redirect_uri":  {testRedirectURI},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("redirect uri prefix match is rejected locally", func(t *testing.T) {
		resp := authorize(url.Values{
			"response_type": {"code"},
			"client_id":     {"web-app"},
			"redirect_uri":  {testRedirectURI + "/evil"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Location"), "an unverified redirect URI never receives the error")
	})

	t.Run("scope error redirects to the verified uri", func(t *testing.T) {
		resp := authorize(url.Values{
			"response_type": {"code"},
			"client_id":     {"web-app"},
			"redirect_uri":  {testRedirectURI},
			"scope":         {"openid admin.write"},
			"state":         {"xyz"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, testRedirectURI, location.Scheme+"://"+location.Host+location.Path)
		assert.Equal(t, "invalid_scope", location.Query().Get("error"))
		assert.Equal(t, "xyz", location.Query().Get("state"))
	})
}

// TestDiscoveryDocuments checks both well-known routes serve the same
// metadata and that the endpoints they advertise are derived from the issuer.
func TestDiscoveryDocuments(t *testing.T) {
	f := newServerFixture(t)

	var docs []map[string]any
	for _, route := range []string{server.RouteWellKnownOpenIDConfig, server.RouteWellKnownOAuthServer} {
		resp, err := http.Get(f.ts.URL + route)
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		resp.Body.Close()
		docs = append(docs, doc)
	}
	require.Equal(t, docs[0], docs[1])

	doc := docs[0]
	assert.Equal(t, f.ts.URL, doc["issuer"])
	assert.Equal(t, f.ts.URL+server.RouteOAuth2Token, doc["token_endpoint"])
	assert.Equal(t, f.ts.URL+server.RouteWellKnownJWKS, doc["jwks_uri"])
	assert.ElementsMatch(t, []any{"S256", "plain"}, doc["code_challenge_methods_supported"])
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)
	resp, err := http.Get(f.ts.URL + server.RouteHealthz)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// introspect posts to the introspection endpoint with client basic auth.
func (f *serverFixture) introspect(t *testing.T, clientID, clientSecret, rawToken string) map[string]any {
	t.Helper()
	form := url.Values{"token": {rawToken}}
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+server.RouteOAuth2Introspect, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (f *serverFixture) revoke(t *testing.T, clientID, clientSecret, rawToken string) {
	t.Helper()
	form := url.Values{"token": {rawToken}}
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+server.RouteOAuth2Revoke, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
