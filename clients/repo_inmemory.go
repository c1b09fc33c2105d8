package clients

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewInMemoryRepo creates a new in-memory client repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		clients: make(map[string]*Client),
	}
}

// Upsert stores or updates a client
func (r *InMemoryRepo) Upsert(_ context.Context, clientData *Client) error {
	if clientData == nil {
		return errors.New("clientData cannot be nil")
	}
	if clientData.ID == "" {
		return errors.New("client ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.clients[clientData.ID] = copyClient(clientData)
	return nil
}

// Get retrieves a client by its exact ID
func (r *InMemoryRepo) Get(_ context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	if !exists {
		return nil, ErrClientNotFound
	}
	return copyClient(client), nil
}

// Delete removes a client
func (r *InMemoryRepo) Delete(_ context.Context, clientID string) error {
	if clientID == "" {
		return errors.New("clientID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, clientID)
	return nil
}

// List returns clients ordered by ID using offset/limit pagination
func (r *InMemoryRepo) List(_ context.Context, offset, limit int) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, copyClient(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func copyClient(c *Client) *Client {
	clientCopy := *c
	clientCopy.AuthMethods = append([]AuthMethod(nil), c.AuthMethods...)
	clientCopy.GrantTypes = append([]oauthmodel.GrantType(nil), c.GrantTypes...)
	clientCopy.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	clientCopy.Scopes = append([]string(nil), c.Scopes...)
	return &clientCopy
}
