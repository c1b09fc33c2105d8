// Package postgres persists clients, consents and issued-token records in
// PostgreSQL via pgx. It backs the durable stores; the ephemeral ones (codes,
// assertion IDs) belong in memory or redis.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Querier is the minimal query surface shared by *pgxpool.Pool and pgx.Tx, so
// repos can run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	defaultMaxConns    = 8
	defaultConnTimeout = 5 * time.Second
)

// Connect builds a pgx pool from a DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[Connect] pgxpool.ParseConfig")
	}
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = defaultMaxConns
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "[Connect] pgxpool.NewWithConfig")
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "[Connect] pool.Ping")
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS oauth_client (
	id                TEXT PRIMARY KEY,
	client_type       TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	secret_hash       TEXT NOT NULL DEFAULT '',
	auth_methods      TEXT[] NOT NULL DEFAULT '{}',
	grant_types       TEXT[] NOT NULL DEFAULT '{}',
	redirect_uris     TEXT[] NOT NULL DEFAULT '{}',
	scopes            TEXT[] NOT NULL DEFAULT '{}',
	public_key_pem    TEXT NOT NULL DEFAULT '',
	access_token_ttl  BIGINT NOT NULL DEFAULT 0,
	refresh_token_ttl BIGINT NOT NULL DEFAULT 0,
	id_token_ttl      BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_consent (
	subject    TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	scopes     TEXT[] NOT NULL DEFAULT '{}',
	granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (subject, client_id)
);

CREATE TABLE IF NOT EXISTS issued_token (
	jti          TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	value_hash   TEXT NOT NULL DEFAULT '',
	client_id    TEXT NOT NULL,
	subject      TEXT NOT NULL,
	scopes       TEXT[] NOT NULL DEFAULT '{}',
	grant_scopes TEXT[] NOT NULL DEFAULT '{}',
	issued_at    TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	parent_jti   TEXT NOT NULL DEFAULT '',
	revoked_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS issued_token_value_hash_idx
	ON issued_token (value_hash) WHERE value_hash <> '';
CREATE INDEX IF NOT EXISTS issued_token_parent_idx
	ON issued_token (parent_jti) WHERE parent_jti <> '';
CREATE INDEX IF NOT EXISTS issued_token_client_idx ON issued_token (client_id);
CREATE INDEX IF NOT EXISTS issued_token_subject_idx ON issued_token (subject);
CREATE INDEX IF NOT EXISTS issued_token_expires_idx ON issued_token (expires_at);
`

// Migrate creates the tables and indexes if they do not exist yet. The DDL is
// idempotent, so running it on every startup is safe.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "[Migrate] db.Exec")
	}
	return nil
}
