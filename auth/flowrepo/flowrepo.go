// Package flowrepo stores pending authorization flows: validated authorize
// requests waiting for the external login and consent surfaces to call back.
// A flow lives only until a code is issued or the request is rejected.
package flowrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var ErrFlowNotFound = errors.New("flow not found")

// Flow is the server-side record of an authorization request between the
// initial authorize call and code issuance. Subject is empty until the login
// surface reports who authenticated.
type Flow struct {
	ID        string
	Subject   string
	Params    *oauthmodel.AuthorizationParameters
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Repo interface {
	Upsert(ctx context.Context, flow *Flow) error
	Get(ctx context.Context, flowID string) (*Flow, error)
	Delete(ctx context.Context, flowID string) error
}
