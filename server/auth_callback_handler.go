package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// loginCallbackRequest is the payload the external login surface posts once
// it has authenticated the principal of a pending flow.
type loginCallbackRequest struct {
	FlowID  string `json:"flow_id"`
	Subject string `json:"subject"`
}

// consentCallbackRequest is the payload the external consent surface posts
// with the principal's decision. Scopes may be a subset of what was asked.
type consentCallbackRequest struct {
	FlowID   string   `json:"flow_id"`
	Approved bool     `json:"approved"`
	Scopes   []string `json:"scopes"`
}

// LoginCallback resumes a pending flow after the login surface authenticated
// the principal. The response is a redirect: onwards to the consent surface
// when scopes still need approval, otherwise back to the client with an
// authorization code.
func (s *Server) LoginCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, oauthmodel.InvalidRequest("malformed JSON body"))
			return
		}

		// Consent redirect callback - sends the user agent to the consent
		// surface with the scopes still awaiting approval
		consentRedirect := func(flowID string, pendingScopes []string) {
			s.metrics.AuthorizeRequests.WithLabelValues("consent_redirect").Inc()
			redirectURL := s.config.GetConsentURL() +
				"?flow_id=" + url.QueryEscape(flowID) +
				"&scope=" + url.QueryEscape(strings.Join(pendingScopes, " "))
			http.Redirect(w, r, redirectURL, http.StatusSeeOther)
		}

		// OAuth redirect callback - delivers the code to the client
		oauthRedirect := func(redirectURI string, responseMode oauthmodel.ResponseModeType, authCode string, state string) {
			s.metrics.AuthorizeRequests.WithLabelValues("code_issued").Inc()
			callbackRedirect(w, r, redirectURI, responseMode, authCode, state)
		}

		if err := s.auth.ResumeLogin(r.Context(), req.FlowID, req.Subject, consentRedirect, oauthRedirect); err != nil {
			s.metrics.AuthorizeRequests.WithLabelValues("rejected").Inc()
			s.deliverAuthorizeError(w, r, err)
			return
		}
	}
}

// ConsentCallback resumes a pending flow with the consent decision. Approval
// is additive and merges with prior approvals; a denial redirects
// access_denied back to the client.
func (s *Server) ConsentCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req consentCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, oauthmodel.InvalidRequest("malformed JSON body"))
			return
		}

		oauthRedirect := func(redirectURI string, responseMode oauthmodel.ResponseModeType, authCode string, state string) {
			s.metrics.AuthorizeRequests.WithLabelValues("code_issued").Inc()
			callbackRedirect(w, r, redirectURI, responseMode, authCode, state)
		}

		if err := s.auth.ResumeConsent(r.Context(), req.FlowID, req.Approved, req.Scopes, oauthRedirect); err != nil {
			s.metrics.AuthorizeRequests.WithLabelValues("rejected").Inc()
			s.deliverAuthorizeError(w, r, err)
			return
		}
	}
}
