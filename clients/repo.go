package clients

import (
	"context"
	"errors"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrDuplicateClient = errors.New("client already registered")
	ErrInvalidScope    = errors.New("scope not allowed for client")
)

// Repo is the persistence boundary for registered clients. Lookups are by the
// exact client ID; implementations must not fold case.
type Repo interface {
	Upsert(ctx context.Context, clientData *Client) error
	Delete(ctx context.Context, clientID string) error
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}
