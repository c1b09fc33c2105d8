// Package consent records which scopes a subject has approved for a client.
// Approvals are durable and additive: once a subject approves a scope for a
// client it stays approved until explicitly revoked, and later approvals merge
// into the existing grant rather than replacing it.
package consent

import (
	"context"
	"errors"
	"time"
)

var ErrConsentNotFound = errors.New("consent not found")

// Consent is the set of scopes a subject has approved for one client.
type Consent struct {
	Subject   string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	UpdatedAt time.Time
}

// Repo is the persistence boundary for consent records, keyed by
// (subject, clientID).
type Repo interface {
	Get(ctx context.Context, subject, clientID string) (*Consent, error)
	Upsert(ctx context.Context, record *Consent) error
	Delete(ctx context.Context, subject, clientID string) error
}
