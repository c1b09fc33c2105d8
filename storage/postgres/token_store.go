package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/tokenstore"
)

var _ tokenstore.Store = (*TokenStore)(nil)

// TokenStore persists issued-token records in the issued_token table.
// Revocation is a revoked_at timestamp rather than a delete, so introspection
// can report revoked tokens as inactive instead of unknown. The store holds
// the pool directly because Put and Rotate need transactions.
type TokenStore struct {
	pool *pgxpool.Pool
}

func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

const insertTokenQuery = `
INSERT INTO issued_token
	(jti, kind, value_hash, client_id, subject, scopes, grant_scopes,
	 issued_at, expires_at, parent_jti)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectTokenColumns = `
SELECT jti, kind, value_hash, client_id, subject, scopes, grant_scopes,
       issued_at, expires_at, parent_jti, revoked_at
FROM issued_token`

// Put stores new records. All records land or none do.
func (s *TokenStore) Put(ctx context.Context, records ...*tokenstore.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.Put] pool.Begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertRecords(ctx, tx, records); err != nil {
		return errors.Wrap(err, "[TokenStore.Put] insertRecords")
	}
	return errors.Wrap(tx.Commit(ctx), "[TokenStore.Put] tx.Commit")
}

// Rotate revokes oldJTI and stores the replacements in one transaction. The
// conditional update takes a row lock, so with concurrent rotations of the
// same token exactly one sees revoked_at still NULL and wins; the rest get
// ErrTokenRevoked.
func (s *TokenStore) Rotate(ctx context.Context, oldJTI string, replacements ...*tokenstore.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.Rotate] pool.Begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE issued_token SET revoked_at = now() WHERE jti = $1 AND revoked_at IS NULL`, oldJTI)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.Rotate] revoke old")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM issued_token WHERE jti = $1)`, oldJTI).Scan(&exists); err != nil {
			return errors.Wrap(err, "[TokenStore.Rotate] exists check")
		}
		if !exists {
			return tokenstore.ErrTokenNotFound
		}
		return tokenstore.ErrTokenRevoked
	}

	if err := insertRecords(ctx, tx, replacements); err != nil {
		return errors.Wrap(err, "[TokenStore.Rotate] insertRecords")
	}
	return errors.Wrap(tx.Commit(ctx), "[TokenStore.Rotate] tx.Commit")
}

func insertRecords(ctx context.Context, db Querier, records []*tokenstore.Record) error {
	for _, record := range records {
		if record == nil || record.JTI == "" {
			return errors.New("record JTI cannot be empty")
		}
	}
	for _, record := range records {
		_, err := db.Exec(ctx, insertTokenQuery,
			record.JTI,
			string(record.Kind),
			record.ValueHash,
			record.ClientID,
			record.Subject,
			record.Scopes,
			record.GrantScopes,
			record.IssuedAt,
			record.ExpiresAt,
			record.ParentJTI,
		)
		if err != nil {
			return errors.Wrapf(err, "insert %q", record.JTI)
		}
	}
	return nil
}

// GetByJTI retrieves a record by token identifier.
func (s *TokenStore) GetByJTI(ctx context.Context, jti string) (*tokenstore.Record, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx, selectTokenColumns+` WHERE jti = $1`, jti))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, tokenstore.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "[TokenStore.GetByJTI] scanRecord")
	}
	return record, nil
}

// GetByValueHash retrieves a record by the hash of its opaque value.
func (s *TokenStore) GetByValueHash(ctx context.Context, hash string) (*tokenstore.Record, error) {
	if hash == "" {
		return nil, tokenstore.ErrTokenNotFound
	}
	record, err := scanRecord(s.pool.QueryRow(ctx, selectTokenColumns+` WHERE value_hash = $1`, hash))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, tokenstore.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "[TokenStore.GetByValueHash] scanRecord")
	}
	return record, nil
}

// Revoke marks a single token revoked. Revoking an already revoked token is a
// no-op, not an error.
func (s *TokenStore) Revoke(ctx context.Context, jti string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issued_token SET revoked_at = now() WHERE jti = $1 AND revoked_at IS NULL`, jti)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.Revoke] db.Exec")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM issued_token WHERE jti = $1)`, jti).Scan(&exists); err != nil {
			return errors.Wrap(err, "[TokenStore.Revoke] exists check")
		}
		if !exists {
			return tokenstore.ErrTokenNotFound
		}
	}
	return nil
}

// RevokeByParent revokes every token whose ParentJTI matches.
func (s *TokenStore) RevokeByParent(ctx context.Context, parentJTI string) (int, error) {
	if parentJTI == "" {
		return 0, nil
	}
	return s.revokeWhere(ctx, `parent_jti = $1`, parentJTI)
}

// RevokeByClient revokes every token issued to the client.
func (s *TokenStore) RevokeByClient(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, nil
	}
	return s.revokeWhere(ctx, `client_id = $1`, clientID)
}

// RevokeBySubject revokes every token issued for the subject.
func (s *TokenStore) RevokeBySubject(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}
	return s.revokeWhere(ctx, `subject = $1`, subject)
}

func (s *TokenStore) revokeWhere(ctx context.Context, predicate string, arg any) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issued_token SET revoked_at = now() WHERE `+predicate+` AND revoked_at IS NULL`, arg)
	if err != nil {
		return 0, errors.Wrap(err, "[TokenStore.revokeWhere] db.Exec")
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired prunes records that expired before the cutoff. Meant for a
// periodic cleanup job; introspection handles expiry itself, so pruning lag
// only costs storage.
func (s *TokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM issued_token WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "[TokenStore.DeleteExpired] db.Exec")
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*tokenstore.Record, error) {
	var (
		record    tokenstore.Record
		kind      string
		revokedAt *time.Time
	)
	err := row.Scan(
		&record.JTI,
		&kind,
		&record.ValueHash,
		&record.ClientID,
		&record.Subject,
		&record.Scopes,
		&record.GrantScopes,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.ParentJTI,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Kind = tokenstore.Kind(kind)
	if revokedAt != nil {
		record.Revoked = true
		record.RevokedAt = *revokedAt
	}
	return &record, nil
}
