package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/consent"
)

var _ consent.Repo = (*ConsentsRepo)(nil)

// ConsentsRepo stores consent records in the user_consent table. The upsert
// unions scopes at the database level, so two instances recording approvals
// for the same pair concurrently cannot drop each other's scopes.
type ConsentsRepo struct {
	db Querier
}

func NewConsentsRepo(db Querier) *ConsentsRepo {
	return &ConsentsRepo{db: db}
}

// Get retrieves the consent record for a subject/client pair.
func (r *ConsentsRepo) Get(ctx context.Context, subject, clientID string) (*consent.Consent, error) {
	if subject == "" || clientID == "" {
		return nil, consent.ErrConsentNotFound
	}

	const q = `
SELECT subject, client_id, scopes, granted_at, updated_at
FROM user_consent
WHERE subject = $1 AND client_id = $2`

	var record consent.Consent
	err := r.db.QueryRow(ctx, q, subject, clientID).
		Scan(&record.Subject, &record.ClientID, &record.Scopes, &record.GrantedAt, &record.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, consent.ErrConsentNotFound
		}
		return nil, errors.Wrap(err, "[ConsentsRepo.Get] QueryRow")
	}
	return &record, nil
}

// Upsert inserts the record or merges its scopes into the existing row.
func (r *ConsentsRepo) Upsert(ctx context.Context, record *consent.Consent) error {
	if record == nil {
		return errors.New("[ConsentsRepo.Upsert] record cannot be nil")
	}
	if record.Subject == "" || record.ClientID == "" {
		return errors.New("[ConsentsRepo.Upsert] subject and clientID cannot be empty")
	}

	const q = `
INSERT INTO user_consent (subject, client_id, scopes, granted_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (subject, client_id) DO UPDATE SET
	scopes = (
		SELECT ARRAY(
			SELECT DISTINCT x
			FROM UNNEST(user_consent.scopes || EXCLUDED.scopes) AS t(x)
		)
	),
	updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, q,
		record.Subject, record.ClientID, record.Scopes, record.GrantedAt, record.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "[ConsentsRepo.Upsert] db.Exec")
	}
	return nil
}

// Delete removes a consent record. Deleting a record that does not exist is a
// no-op.
func (r *ConsentsRepo) Delete(ctx context.Context, subject, clientID string) error {
	const q = `DELETE FROM user_consent WHERE subject = $1 AND client_id = $2`
	if _, err := r.db.Exec(ctx, q, subject, clientID); err != nil {
		return errors.Wrap(err, "[ConsentsRepo.Delete] db.Exec")
	}
	return nil
}
