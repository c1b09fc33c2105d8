package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var _ clients.Repo = (*ClientsRepo)(nil)

// ClientsRepo stores client registrations in the oauth_client table. Token
// lifetime overrides are held as whole seconds.
type ClientsRepo struct {
	db Querier
}

func NewClientsRepo(db Querier) *ClientsRepo {
	return &ClientsRepo{db: db}
}

// Upsert inserts the client or replaces every column of an existing row.
func (r *ClientsRepo) Upsert(ctx context.Context, clientData *clients.Client) error {
	if clientData == nil {
		return errors.New("[ClientsRepo.Upsert] clientData cannot be nil")
	}
	if clientData.ID == "" {
		return errors.New("[ClientsRepo.Upsert] client ID cannot be empty")
	}

	const q = `
INSERT INTO oauth_client
	(id, client_type, description, secret_hash, auth_methods, grant_types,
	 redirect_uris, scopes, public_key_pem, access_token_ttl, refresh_token_ttl, id_token_ttl)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	client_type       = EXCLUDED.client_type,
	description       = EXCLUDED.description,
	secret_hash       = EXCLUDED.secret_hash,
	auth_methods      = EXCLUDED.auth_methods,
	grant_types       = EXCLUDED.grant_types,
	redirect_uris     = EXCLUDED.redirect_uris,
	scopes            = EXCLUDED.scopes,
	public_key_pem    = EXCLUDED.public_key_pem,
	access_token_ttl  = EXCLUDED.access_token_ttl,
	refresh_token_ttl = EXCLUDED.refresh_token_ttl,
	id_token_ttl      = EXCLUDED.id_token_ttl,
	updated_at        = now()`

	_, err := r.db.Exec(ctx, q,
		clientData.ID,
		string(clientData.Type),
		clientData.Description,
		clientData.SecretHash,
		authMethodsToStrings(clientData.AuthMethods),
		grantTypesToStrings(clientData.GrantTypes),
		clientData.RedirectURIs,
		clientData.Scopes,
		clientData.PublicKeyPEM,
		int64(clientData.AccessTokenTTL/time.Second),
		int64(clientData.RefreshTokenTTL/time.Second),
		int64(clientData.IDTokenTTL/time.Second),
	)
	if err != nil {
		return errors.Wrap(err, "[ClientsRepo.Upsert] db.Exec")
	}
	return nil
}

// Get retrieves a client by its exact ID.
func (r *ClientsRepo) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	if clientID == "" {
		return nil, clients.ErrClientNotFound
	}

	const q = `
SELECT id, client_type, description, secret_hash, auth_methods, grant_types,
       redirect_uris, scopes, public_key_pem, access_token_ttl, refresh_token_ttl, id_token_ttl
FROM oauth_client
WHERE id = $1`

	clientData, err := scanClient(r.db.QueryRow(ctx, q, clientID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, clients.ErrClientNotFound
		}
		return nil, errors.Wrap(err, "[ClientsRepo.Get] scanClient")
	}
	return clientData, nil
}

// Delete removes a client registration.
func (r *ClientsRepo) Delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return errors.New("[ClientsRepo.Delete] clientID cannot be empty")
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_client WHERE id = $1`, clientID); err != nil {
		return errors.Wrap(err, "[ClientsRepo.Delete] db.Exec")
	}
	return nil
}

// List returns clients ordered by ID using offset/limit pagination. A limit
// of zero or less means no limit.
func (r *ClientsRepo) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	q := `
SELECT id, client_type, description, secret_hash, auth_methods, grant_types,
       redirect_uris, scopes, public_key_pem, access_token_ttl, refresh_token_ttl, id_token_ttl
FROM oauth_client
ORDER BY id ASC
OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientsRepo.List] db.Query")
	}
	defer rows.Close()

	var out []*clients.Client
	for rows.Next() {
		clientData, err := scanClient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[ClientsRepo.List] scanClient")
		}
		out = append(out, clientData)
	}
	return out, errors.Wrap(rows.Err(), "[ClientsRepo.List] rows.Err")
}

func scanClient(row pgx.Row) (*clients.Client, error) {
	var (
		clientData  clients.Client
		clientType  string
		authMethods []string
		grantTypes  []string
		accessSecs  int64
		refreshSecs int64
		idTokenSecs int64
	)
	err := row.Scan(
		&clientData.ID,
		&clientType,
		&clientData.Description,
		&clientData.SecretHash,
		&authMethods,
		&grantTypes,
		&clientData.RedirectURIs,
		&clientData.Scopes,
		&clientData.PublicKeyPEM,
		&accessSecs,
		&refreshSecs,
		&idTokenSecs,
	)
	if err != nil {
		return nil, err
	}

	clientData.Type = clients.ClientType(clientType)
	clientData.AuthMethods = stringsToAuthMethods(authMethods)
	clientData.GrantTypes = stringsToGrantTypes(grantTypes)
	clientData.AccessTokenTTL = time.Duration(accessSecs) * time.Second
	clientData.RefreshTokenTTL = time.Duration(refreshSecs) * time.Second
	clientData.IDTokenTTL = time.Duration(idTokenSecs) * time.Second
	return &clientData, nil
}

func authMethodsToStrings(methods []clients.AuthMethod) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	return out
}

func stringsToAuthMethods(values []string) []clients.AuthMethod {
	out := make([]clients.AuthMethod, 0, len(values))
	for _, v := range values {
		out = append(out, clients.AuthMethod(v))
	}
	return out
}

func grantTypesToStrings(grantTypes []oauthmodel.GrantType) []string {
	out := make([]string, 0, len(grantTypes))
	for _, gt := range grantTypes {
		out = append(out, string(gt))
	}
	return out
}

func stringsToGrantTypes(values []string) []oauthmodel.GrantType {
	out := make([]oauthmodel.GrantType, 0, len(values))
	for _, v := range values {
		out = append(out, oauthmodel.GrantType(v))
	}
	return out
}
