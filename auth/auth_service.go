// Package auth orchestrates the authorization code flow and the token
// endpoint dispatch. Principals are authenticated by an external login
// surface and consent is collected by an external consent surface; both are
// reached via redirect callbacks and resume a pending flow by its ID.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/auth/flowrepo"
	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/clientauth"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/consent"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
	"github.com/jrsteele09/go-oauth2-server/token"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
)

// LoginRedirect sends the user agent to the external principal
// authentication surface, carrying the pending flow ID so the surface can
// call back once the principal is known.
type LoginRedirect func(flowID string)

// ConsentRedirect sends the user agent to the external consent surface with
// the flow ID and the scopes still awaiting the principal's approval.
type ConsentRedirect func(flowID string, pendingScopes []string)

// AuthorizationRedirect delivers the result of the authorization process to
// the client.
//
// Parameters:
//   - redirectURI: The verified URI provided by the client where the user-agent
//     will be redirected after the authorization process.
//   - responseMode: How the response parameters travel back to the client:
//     appended to the query string or carried in the URL fragment.
//   - authorizationCode: The generated single-use authorization code.
//   - state: The CSRF token or other state value that was originally passed in
//     the authorization request, echoed back verbatim.
type AuthorizationRedirect func(redirectURI string, responseMode oauthmodel.ResponseModeType, authorizationCode string, state string)

const (
	defaultCodeTTL = 10 * time.Minute
	// Flows expire with the code timeout: a pending flow has no business
	// outliving the code it would have issued.
	defaultFlowTTL = 10 * time.Minute
)

// Stores holds all store dependencies for the AuthorizationService
type Stores struct {
	Clients  *clients.Registry // Registered OAuth2 clients
	Consents *consent.Store    // Durable per-principal consent approvals
	Codes    authcode.Store    // Single-use authorization codes
	Flows    flowrepo.Repo     // Pending authorization flows
}

// AuthorizationService provides methods for OAuth2 authorization and token requests.
type AuthorizationService struct {
	stores     Stores                    // All store dependencies
	tokens     *token.Manager            // Token issuance, introspection, revocation
	clientAuth *clientauth.Authenticator // Client authentication at the token endpoints
	codeTTL    time.Duration
	flowTTL    time.Duration
	nowTime    func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithCodeTTL overrides the authorization code lifetime. Values above the
// ten minute ceiling are ignored.
func WithCodeTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if ttl > 0 && ttl <= defaultCodeTTL {
			as.codeTTL = ttl
		}
	}
}

// WithFlowTTL overrides how long a pending flow may wait for the login and
// consent surfaces.
func WithFlowTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if ttl > 0 {
			as.flowTTL = ttl
		}
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewAuthorizationService(
	stores Stores,
	tokens *token.Manager,
	clientAuth *clientauth.Authenticator,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if stores.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients registry is required")
	}
	if stores.Consents == nil {
		return nil, errors.New("[NewAuthorizationService] Consents store is required")
	}
	if stores.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes store is required")
	}
	if stores.Flows == nil {
		return nil, errors.New("[NewAuthorizationService] Flows repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAuthorizationService] tokens manager is required")
	}
	if clientAuth == nil {
		return nil, errors.New("[NewAuthorizationService] clientAuth is required")
	}

	authService := &AuthorizationService{
		stores:     stores,
		tokens:     tokens,
		clientAuth: clientAuth,
		codeTTL:    defaultCodeTTL,
		flowTTL:    defaultFlowTTL,
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Authorize initiates the OAuth 2.0 authorization code flow. Errors raised
// before the redirect URI is verified come back as plain *oauthmodel.Error
// values and must be rendered locally; later failures come back as
// *RedirectError and must be delivered to the client's redirect URI. On
// success the pending flow is stored and loginRedirect is invoked.
func (as *AuthorizationService) Authorize(ctx context.Context, parameters *oauthmodel.AuthorizationParameters, loginRedirect LoginRedirect) error {
	client, err := as.stores.Clients.Get(ctx, parameters.ClientID)
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return oauthmodel.InvalidRequest("unknown client_id")
		}
		return errors.Wrap(err, "[Authorize] clients.Get")
	}

	if oauthErr := validateLocal(client, parameters); oauthErr != nil {
		return oauthErr
	}
	if oauthErr := validateRedirectable(client, parameters); oauthErr != nil {
		return as.redirectError(parameters, oauthErr)
	}

	flow := &flowrepo.Flow{
		ID:        uuid.New().String(),
		Params:    parameters,
		CreatedAt: as.nowTime(),
		ExpiresAt: as.nowTime().Add(as.flowTTL),
	}
	if err := as.stores.Flows.Upsert(ctx, flow); err != nil {
		return errors.Wrap(err, "[Authorize] flows.Upsert")
	}

	loginRedirect(flow.ID)
	return nil
}

// ResumeLogin continues a pending flow after the external login surface has
// authenticated the principal. If previously recorded consent covers the
// requested scopes the authorization code is issued immediately; otherwise
// consentRedirect is invoked with the scopes still needing approval.
func (as *AuthorizationService) ResumeLogin(ctx context.Context, flowID, subject string, consentRedirect ConsentRedirect, oauthRedirect AuthorizationRedirect) error {
	if subject == "" {
		return oauthmodel.InvalidRequest("subject is required")
	}

	flow, err := as.stores.Flows.Get(ctx, flowID)
	if err != nil {
		if errors.Is(err, flowrepo.ErrFlowNotFound) {
			return oauthmodel.InvalidRequest("unknown or expired flow")
		}
		return errors.Wrap(err, "[ResumeLogin] flows.Get")
	}

	flow.Subject = subject
	if err := as.stores.Flows.Upsert(ctx, flow); err != nil {
		return errors.Wrap(err, "[ResumeLogin] flows.Upsert")
	}

	pending, err := as.stores.Consents.Missing(ctx, subject, flow.Params.ClientID, flow.Params.Scopes())
	if err != nil {
		return errors.Wrap(err, "[ResumeLogin] consents.Missing")
	}
	if len(pending) > 0 {
		consentRedirect(flow.ID, pending)
		return nil
	}

	return as.issueCodeAndRedirect(ctx, flow, oauthRedirect)
}

// ResumeConsent completes a pending flow after the consent surface reports
// the principal's decision. Approval is additive: the approved subset merges
// with prior approvals. A denial, or an approval that leaves requested scopes
// uncovered, redirects access_denied back to the client and discards the
// flow.
func (as *AuthorizationService) ResumeConsent(ctx context.Context, flowID string, approved bool, approvedScopes []string, oauthRedirect AuthorizationRedirect) error {
	flow, err := as.stores.Flows.Get(ctx, flowID)
	if err != nil {
		if errors.Is(err, flowrepo.ErrFlowNotFound) {
			return oauthmodel.InvalidRequest("unknown or expired flow")
		}
		return errors.Wrap(err, "[ResumeConsent] flows.Get")
	}
	if flow.Subject == "" {
		return oauthmodel.InvalidRequest("flow has not completed login")
	}

	if !approved {
		_ = as.stores.Flows.Delete(ctx, flowID)
		return as.redirectError(flow.Params, oauthmodel.AccessDenied("principal denied consent"))
	}

	requested := flow.Params.Scopes()
	granted := requested
	if len(approvedScopes) > 0 {
		// The surface may only approve scopes this flow actually asked for.
		granted = oauthmodel.IntersectScopes(approvedScopes, requested)
	}
	if err := as.stores.Consents.RecordApproval(ctx, flow.Subject, flow.Params.ClientID, granted); err != nil {
		return errors.Wrap(err, "[ResumeConsent] consents.RecordApproval")
	}

	pending, err := as.stores.Consents.Missing(ctx, flow.Subject, flow.Params.ClientID, requested)
	if err != nil {
		return errors.Wrap(err, "[ResumeConsent] consents.Missing")
	}
	if len(pending) > 0 {
		_ = as.stores.Flows.Delete(ctx, flowID)
		return as.redirectError(flow.Params, oauthmodel.AccessDenied("consent does not cover the requested scopes"))
	}

	return as.issueCodeAndRedirect(ctx, flow, oauthRedirect)
}

func (as *AuthorizationService) issueCodeAndRedirect(ctx context.Context, flow *flowrepo.Flow, oauthRedirect AuthorizationRedirect) error {
	now := as.nowTime()
	code, err := as.stores.Codes.Issue(ctx, authcode.Grant{
		ClientID:            flow.Params.ClientID,
		Subject:             flow.Subject,
		RedirectURI:         flow.Params.RedirectURI,
		Scopes:              flow.Params.Scopes(),
		CodeChallenge:       flow.Params.CodeChallenge,
		CodeChallengeMethod: flow.Params.CodeChallengeMethod,
		Nonce:               flow.Params.Nonce,
		AuthTime:            now,
		ExpiresAt:           now.Add(as.codeTTL),
	})
	if err != nil {
		return errors.Wrap(err, "[issueCodeAndRedirect] codes.Issue")
	}

	if err := as.stores.Flows.Delete(ctx, flow.ID); err != nil {
		return errors.Wrap(err, "[issueCodeAndRedirect] flows.Delete")
	}

	oauthRedirect(flow.Params.RedirectURI, responseMode(flow.Params), code, flow.Params.State)
	return nil
}

func (as *AuthorizationService) redirectError(params *oauthmodel.AuthorizationParameters, oauthErr *oauthmodel.Error) error {
	return &RedirectError{
		OAuthErr:     oauthErr,
		RedirectURI:  params.RedirectURI,
		ResponseMode: responseMode(params),
		State:        params.State,
	}
}

func responseMode(params *oauthmodel.AuthorizationParameters) oauthmodel.ResponseModeType {
	if params.ResponseMode == "" {
		return oauthmodel.QueryResponseMode
	}
	return params.ResponseMode
}

// GetJWKS returns the JSON Web Key Set for public key distribution
func (as *AuthorizationService) GetJWKS() (*keys.JWKS, error) {
	return as.tokens.GetJWKS()
}
