package clients

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
)

// Registry fronts the client Repo with registration rules: duplicate IDs are
// rejected and seed secrets are normalised to bcrypt hashes before they reach
// the repo.
type Registry struct {
	repo Repo
}

func NewRegistry(repo Repo) *Registry {
	return &Registry{repo: repo}
}

// Get looks up a client by its exact, case-sensitive ID.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.Get] repo.Get")
	}
	return client, nil
}

// Register adds a new client. Registering an ID that already exists fails
// with ErrDuplicateClient. A plaintext secret on the incoming client is
// bcrypt-hashed; a value already in bcrypt form is stored as-is.
func (r *Registry) Register(ctx context.Context, client *Client) error {
	if client == nil {
		return errors.New("[Registry.Register] client cannot be nil")
	}
	if client.ID == "" {
		return errors.New("[Registry.Register] client ID cannot be empty")
	}

	_, err := r.repo.Get(ctx, client.ID)
	if err == nil {
		return ErrDuplicateClient
	}
	if !stderrors.Is(err, ErrClientNotFound) {
		return errors.Wrap(err, "[Registry.Register] repo.Get")
	}

	if client.SecretHash != "" && !IsHashedSecret(client.SecretHash) {
		hashed, err := HashSecret(client.SecretHash)
		if err != nil {
			return errors.Wrap(err, "[Registry.Register] HashSecret")
		}
		client.SecretHash = hashed
	}

	if client.Type == "" {
		if client.SecretHash == "" {
			client.Type = ClientTypePublic
		} else {
			client.Type = ClientTypeConfidential
		}
	}

	if err := r.repo.Upsert(ctx, client); err != nil {
		return errors.Wrap(err, "[Registry.Register] repo.Upsert")
	}
	return nil
}

// List pages through registered clients ordered by ID.
func (r *Registry) List(ctx context.Context, offset, limit int) ([]*Client, error) {
	list, err := r.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.List] repo.List")
	}
	return list, nil
}
