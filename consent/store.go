package consent

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// Store wraps a Repo with the merge semantics the authorization flow needs.
type Store struct {
	repo    Repo
	nowFunc func() time.Time
}

type StoreOption func(*Store)

// WithNowTime sets the time function used for approval timestamps
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

func NewStore(repo Repo, opts ...StoreOption) *Store {
	store := &Store{
		repo:    repo,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Approved returns the scopes the subject has approved for the client, or an
// empty list when no consent exists yet.
func (s *Store) Approved(ctx context.Context, subject, clientID string) ([]string, error) {
	record, err := s.repo.Get(ctx, subject, clientID)
	if err != nil {
		if stderrors.Is(err, ErrConsentNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Store.Approved] repo.Get")
	}
	return record.Scopes, nil
}

// Missing returns the requested scopes the subject has not yet approved for
// the client. An empty result means the request is fully covered and no
// consent prompt is needed.
func (s *Store) Missing(ctx context.Context, subject, clientID string, requested []string) ([]string, error) {
	approved, err := s.Approved(ctx, subject, clientID)
	if err != nil {
		return nil, err
	}
	return oauthmodel.MissingScopes(requested, approved), nil
}

// RecordApproval merges newly approved scopes into the subject's existing
// consent for the client. Previously approved scopes are never dropped here.
func (s *Store) RecordApproval(ctx context.Context, subject, clientID string, scopes []string) error {
	if subject == "" || clientID == "" {
		return errors.New("[Store.RecordApproval] subject and clientID are required")
	}

	now := s.nowFunc()
	record, err := s.repo.Get(ctx, subject, clientID)
	if err != nil {
		if !stderrors.Is(err, ErrConsentNotFound) {
			return errors.Wrap(err, "[Store.RecordApproval] repo.Get")
		}
		record = &Consent{
			Subject:   subject,
			ClientID:  clientID,
			GrantedAt: now,
		}
	}

	record.Scopes = oauthmodel.MergeScopes(record.Scopes, scopes)
	record.UpdatedAt = now

	if err := s.repo.Upsert(ctx, record); err != nil {
		return errors.Wrap(err, "[Store.RecordApproval] repo.Upsert")
	}
	return nil
}

// Revoke removes the subject's consent for the client entirely.
func (s *Store) Revoke(ctx context.Context, subject, clientID string) error {
	if err := s.repo.Delete(ctx, subject, clientID); err != nil {
		return errors.Wrap(err, "[Store.Revoke] repo.Delete")
	}
	return nil
}
