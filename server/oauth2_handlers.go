package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oauth2-server/auth"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

const contentTypeJSON = "application/json; charset=utf-8"

// WellKnownOpenIDConfig serves the OIDC discovery document. The same payload
// answers the RFC 8414 path, so both well-known routes share this handler.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetBaseURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":    baseURL + RouteOAuth2Revoke,
			"introspection_endpoint": baseURL + RouteOAuth2Introspect,

			// Supported response types
			"response_types_supported": []string{"code"},
			"response_modes_supported": []string{"query", "fragment"},
			"subject_types_supported":  []string{"public"},

			// Signing algorithms
			"id_token_signing_alg_values_supported": []string{"RS256"},

			// Token endpoint auth methods
			"token_endpoint_auth_methods_supported": []string{
				"client_secret_basic", // Credentials in the Authorization header
				"client_secret_post",  // Credentials in POST body
				"private_key_jwt",     // Signed client assertion
				"none",                // For public clients with PKCE
			},

			// Grant types
			"grant_types_supported": []string{
				"authorization_code",
				"refresh_token",
				"client_credentials",
			},

			// PKCE support
			"code_challenge_methods_supported": []string{"S256", "plain"},

			// Claims carried by issued tokens. Scopes are registered per
			// client, so no fixed scopes_supported list is published.
			"claims_supported": []string{
				"sub",
				"aud",
				"iss",
				"exp",
				"iat",
				"scope",
				"client_id",
				"nonce",
				"auth_time",
			},

			"claims_parameter_supported":      false,
			"request_parameter_supported":     false,
			"request_uri_parameter_supported": false,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.auth.GetJWKS()
		if err != nil {
			http.Error(w, "Failed to get JWKS: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Authorize begins the authorization code flow. On success the user agent is
// sent to the external login surface carrying the pending flow ID.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := parseAuthorizationParameters(r)

		// Login redirect callback - sends the user agent to the login surface
		loginRedirect := func(flowID string) {
			redirectURL := s.config.GetLoginURL() + "?flow_id=" + url.QueryEscape(flowID)
			http.Redirect(w, r, redirectURL, http.StatusSeeOther)
		}

		if err := s.auth.Authorize(r.Context(), params, loginRedirect); err != nil {
			s.metrics.AuthorizeRequests.WithLabelValues("rejected").Inc()
			s.deliverAuthorizeError(w, r, err)
			return
		}
		s.metrics.AuthorizeRequests.WithLabelValues("login_redirect").Inc()
	}
}

// Token exchanges a grant for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenReq, oauthErr := parseTokenRequest(r)
		if oauthErr != nil {
			writeOAuthError(w, oauthErr)
			return
		}

		tokenResponse, err := s.auth.Token(r.Context(), tokenReq)
		if err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}
		s.metrics.TokensIssued.WithLabelValues(string(tokenReq.GrantType)).Inc()

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// Introspect reports the state of a presented token to an authenticated
// client. Problems with the token itself never produce an error body, only
// {"active": false}.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credentials, oauthErr := parseTokenRequest(r)
		if oauthErr != nil {
			writeOAuthError(w, oauthErr)
			return
		}

		rawToken := r.PostForm.Get("token")
		if rawToken == "" {
			writeOAuthError(w, oauthmodel.InvalidRequest("token parameter is required"))
			return
		}

		introspection, err := s.auth.Introspect(r.Context(), credentials, rawToken)
		if err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}
		s.metrics.RecordIntrospection(introspection.Active)

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(introspection)
	}
}

// Revoke invalidates a presented token. Per RFC 7009 the response is 200
// whether or not the token existed; only failed client authentication errors.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credentials, oauthErr := parseTokenRequest(r)
		if oauthErr != nil {
			writeOAuthError(w, oauthErr)
			return
		}

		rawToken := r.PostForm.Get("token")
		if rawToken == "" {
			writeOAuthError(w, oauthmodel.InvalidRequest("token parameter is required"))
			return
		}

		if err := s.auth.Revoke(r.Context(), credentials, rawToken); err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}
		s.metrics.Revocations.Inc()

		w.WriteHeader(http.StatusOK)
	}
}

// UserInfo returns the claims bound to a Bearer access token. There is no
// user database behind this server, so the claims are the token's own.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(r)
		if !ok {
			writeBearerError(w, "missing or malformed Authorization header")
			return
		}

		userInfo, err := s.auth.UserInfo(r.Context(), accessToken)
		if err != nil {
			if errors.Is(err, auth.ErrTokenNotActive) {
				writeBearerError(w, "token is not active")
				return
			}
			log.Err(err).Msg("userinfo failed")
			writeOAuthError(w, oauthmodel.ServerError("internal error"))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(userInfo)
	}
}

// Helper functions

// deliverAuthorizeError routes an authorization failure to the right surface.
// A RedirectError travels back to the client's verified redirect URI; anything
// raised before that URI was verified is written locally, never redirected.
func (s *Server) deliverAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	var redirectErr *auth.RedirectError
	if errors.As(err, &redirectErr) {
		errorRedirect(w, r, redirectErr)
		return
	}

	var oauthErr *oauthmodel.Error
	if errors.As(err, &oauthErr) {
		writeOAuthError(w, oauthErr)
		return
	}

	log.Err(err).Msg("authorize failed")
	writeOAuthError(w, oauthmodel.ServerError("internal error"))
}

// callbackRedirect sends the authorization code to the client's redirect URI
// using the requested response mode (query or fragment).
func callbackRedirect(w http.ResponseWriter, r *http.Request, callbackURI string, responseMode oauthmodel.ResponseModeType, authCode string, state string) {
	u, err := url.Parse(callbackURI)
	if err != nil {
		// The URI matched the client registration before the code was issued,
		// so a parse failure here is an internal fault, not a client error.
		log.Err(err).Msg("redirect URI failed to parse after validation")
		writeOAuthError(w, oauthmodel.ServerError("invalid redirect URI"))
		return
	}

	switch responseMode {
	case oauthmodel.FragmentResponseMode:
		// Fragment mode: parameters after #, readable only by the user agent
		params := url.Values{}
		params.Set("code", authCode)
		if state != "" {
			params.Set("state", state)
		}
		u.Fragment = params.Encode()

	default: // QueryResponseMode or empty (default)
		q := u.Query()
		q.Set("code", authCode)
		if state != "" {
			q.Set("state", state)
		}
		u.RawQuery = q.Encode()
	}

	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// errorRedirect delivers error, error_description and state to the client's
// redirect URI in the flow's response mode.
func errorRedirect(w http.ResponseWriter, r *http.Request, redirectErr *auth.RedirectError) {
	u, err := url.Parse(redirectErr.RedirectURI)
	if err != nil {
		writeOAuthError(w, redirectErr.OAuthErr)
		return
	}

	params := url.Values{}
	params.Set("error", string(redirectErr.OAuthErr.Code))
	if redirectErr.OAuthErr.Description != "" {
		params.Set("error_description", redirectErr.OAuthErr.Description)
	}
	if redirectErr.State != "" {
		params.Set("state", redirectErr.State)
	}

	switch redirectErr.ResponseMode {
	case oauthmodel.FragmentResponseMode:
		u.Fragment = params.Encode()
	default:
		q := u.Query()
		for key := range params {
			q.Set(key, params.Get(key))
		}
		u.RawQuery = q.Encode()
	}

	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// parseAuthorizationParameters extracts OAuth2 authorization parameters from the query string
func parseAuthorizationParameters(r *http.Request) *oauthmodel.AuthorizationParameters {
	query := r.URL.Query()
	return &oauthmodel.AuthorizationParameters{
		ClientID:            query.Get("client_id"),
		ResponseType:        oauthmodel.ResponseType(query.Get("response_type")),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseMode:        oauthmodel.ResponseModeType(query.Get("response_mode")),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: oauthmodel.CodeMethodType(query.Get("code_challenge_method")),
		Nonce:               query.Get("nonce"),
	}
}

// parseTokenRequest builds a TokenRequest from the form body, folding in
// client credentials from the Authorization header when present.
func parseTokenRequest(r *http.Request) (*oauthmodel.TokenRequest, *oauthmodel.Error) {
	if err := r.ParseForm(); err != nil {
		return nil, oauthmodel.InvalidRequest("failed to parse form data")
	}

	tokenReq := &oauthmodel.TokenRequest{
		GrantType:           oauthmodel.GrantType(r.PostForm.Get("grant_type")),
		ClientID:            r.PostForm.Get("client_id"),
		ClientSecret:        r.PostForm.Get("client_secret"),
		Code:                r.PostForm.Get("code"),
		RedirectURI:         r.PostForm.Get("redirect_uri"),
		CodeVerifier:        r.PostForm.Get("code_verifier"),
		RefreshToken:        r.PostForm.Get("refresh_token"),
		Scope:               r.PostForm.Get("scope"),
		ClientAssertionType: r.PostForm.Get("client_assertion_type"),
		ClientAssertion:     r.PostForm.Get("client_assertion"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 §2.3.1: credentials inside the Basic header are
		// form-urlencoded before being base64d.
		tokenReq.ClientID = unescapeCredential(id)
		tokenReq.ClientSecret = unescapeCredential(secret)
		tokenReq.BasicAuth = true
	}

	return tokenReq, nil
}

func unescapeCredential(v string) string {
	decoded, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

// bearerToken extracts the access token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// writeTokenEndpointError renders a failure in the token endpoint's JSON
// vocabulary. invalid_client answers 401 with a WWW-Authenticate challenge as
// RFC 6749 directs; unexpected failures become an opaque server_error.
func (s *Server) writeTokenEndpointError(w http.ResponseWriter, err error) {
	var oauthErr *oauthmodel.Error
	if !errors.As(err, &oauthErr) {
		log.Err(err).Msg("token endpoint failed")
		oauthErr = oauthmodel.ServerError("internal error")
	}

	if oauthErr.Code == oauthmodel.ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2", charset="UTF-8"`)
	}
	writeOAuthError(w, oauthErr)
}

// writeOAuthError writes an OAuth2 error response as JSON with its mapped
// HTTP status.
func writeOAuthError(w http.ResponseWriter, oauthErr *oauthmodel.Error) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(oauthErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(oauthErr)
}

// writeBearerError answers a protected resource request per RFC 6750: a 401
// with the Bearer challenge header and an invalid_token body.
func writeBearerError(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "invalid_token",
		"error_description": description,
	})
}
