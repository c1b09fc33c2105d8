package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	rdb "github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var _ authcode.Store = (*CodeStore)(nil)

// CodeStore keeps pending authorization codes in Redis, with key TTLs doing
// the expiry. A consumed code leaves a tombstone key for the rest of the
// code's lifetime so a replayed exchange can be told apart from a code that
// never existed.
type CodeStore struct {
	client    rdb.UniversalClient
	keyPrefix string
	codeTTL   time.Duration
	nowFunc   func() time.Time
}

type CodeStoreOption func(*CodeStore)

// WithCodeTTL overrides the default lifetime for newly issued codes
func WithCodeTTL(ttl time.Duration) CodeStoreOption {
	return func(s *CodeStore) {
		s.codeTTL = ttl
	}
}

// WithNowTime sets the time function used for expiry arithmetic
func WithNowTime(nowFunc func() time.Time) CodeStoreOption {
	return func(s *CodeStore) {
		s.nowFunc = nowFunc
	}
}

// NewCodeStore wraps an existing client. The prefix namespaces every key so
// one Redis can serve several deployments.
func NewCodeStore(client rdb.UniversalClient, keyPrefix string, opts ...CodeStoreOption) *CodeStore {
	store := &CodeStore{
		client:    client,
		keyPrefix: keyPrefix,
		codeTTL:   authcode.DefaultCodeTTL,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// storedGrant is the JSON shape of a grant at rest. Times are Unix seconds.
type storedGrant struct {
	ClientID            string   `json:"client_id"`
	Subject             string   `json:"subject"`
	RedirectURI         string   `json:"redirect_uri"`
	Scopes              []string `json:"scopes"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	AuthTime            int64    `json:"auth_time"`
	ExpiresAt           int64    `json:"expires_at"`
}

// Issue generates a fresh code for the grant. The grant's ExpiresAt is
// clamped to the store TTL when unset or further out than the TTL allows.
func (s *CodeStore) Issue(ctx context.Context, grant authcode.Grant) (string, error) {
	code, err := authcode.NewCode()
	if err != nil {
		return "", errors.Wrap(err, "[CodeStore.Issue] authcode.NewCode")
	}

	now := s.nowFunc()
	maxExpiry := now.Add(s.codeTTL)
	if grant.ExpiresAt.IsZero() || grant.ExpiresAt.After(maxExpiry) {
		grant.ExpiresAt = maxExpiry
	}

	data, err := json.Marshal(storedGrant{
		ClientID:            grant.ClientID,
		Subject:             grant.Subject,
		RedirectURI:         grant.RedirectURI,
		Scopes:              grant.Scopes,
		CodeChallenge:       grant.CodeChallenge,
		CodeChallengeMethod: string(grant.CodeChallengeMethod),
		Nonce:               grant.Nonce,
		AuthTime:            grant.AuthTime.Unix(),
		ExpiresAt:           grant.ExpiresAt.Unix(),
	})
	if err != nil {
		return "", errors.Wrap(err, "[CodeStore.Issue] json.Marshal")
	}

	if err := s.client.Set(ctx, s.codeKey(code), data, grant.ExpiresAt.Sub(now)).Err(); err != nil {
		return "", errors.Wrap(err, "[CodeStore.Issue] client.Set")
	}
	return code, nil
}

// Peek reads the grant without spending the code.
func (s *CodeStore) Peek(ctx context.Context, code string) (*authcode.Grant, error) {
	if code == "" {
		return nil, authcode.ErrCodeNotFound
	}

	data, err := s.client.Get(ctx, s.codeKey(code)).Bytes()
	if err != nil {
		if stderrors.Is(err, rdb.Nil) {
			return nil, s.missingErr(ctx, code)
		}
		return nil, errors.Wrap(err, "[CodeStore.Peek] client.Get")
	}
	return s.decodeGrant(data)
}

// Consume removes the code and hands back its grant. GETDEL makes the removal
// atomic: with N concurrent callers exactly one receives the value.
func (s *CodeStore) Consume(ctx context.Context, code string) (*authcode.Grant, error) {
	if code == "" {
		return nil, authcode.ErrCodeNotFound
	}

	data, err := s.client.GetDel(ctx, s.codeKey(code)).Bytes()
	if err != nil {
		if stderrors.Is(err, rdb.Nil) {
			return nil, s.missingErr(ctx, code)
		}
		return nil, errors.Wrap(err, "[CodeStore.Consume] client.GetDel")
	}

	grant, err := s.decodeGrant(data)
	if err != nil {
		return nil, err
	}

	// Tombstone is best effort; without it a replay reads as not-found
	// instead of already-used.
	if ttl := grant.ExpiresAt.Sub(s.nowFunc()); ttl > 0 {
		_ = s.client.Set(ctx, s.usedKey(code), "1", ttl).Err()
	}
	return grant, nil
}

func (s *CodeStore) missingErr(ctx context.Context, code string) error {
	used, err := s.client.Exists(ctx, s.usedKey(code)).Result()
	if err == nil && used > 0 {
		return authcode.ErrCodeAlreadyUsed
	}
	return authcode.ErrCodeNotFound
}

func (s *CodeStore) decodeGrant(data []byte) (*authcode.Grant, error) {
	var stored storedGrant
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[CodeStore.decodeGrant] json.Unmarshal")
	}

	grant := authcode.Grant{
		ClientID:            stored.ClientID,
		Subject:             stored.Subject,
		RedirectURI:         stored.RedirectURI,
		Scopes:              stored.Scopes,
		CodeChallenge:       stored.CodeChallenge,
		CodeChallengeMethod: oauthmodel.CodeMethodType(stored.CodeChallengeMethod),
		Nonce:               stored.Nonce,
		AuthTime:            time.Unix(stored.AuthTime, 0),
		ExpiresAt:           time.Unix(stored.ExpiresAt, 0),
	}
	if s.nowFunc().After(grant.ExpiresAt) {
		return nil, authcode.ErrCodeExpired
	}
	return &grant, nil
}

func (s *CodeStore) codeKey(code string) string { return s.keyPrefix + "code:" + code }
func (s *CodeStore) usedKey(code string) string { return s.keyPrefix + "used:" + code }
