package authcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultCodeTTL bounds how long an unconsumed code stays valid.
	DefaultCodeTTL = 10 * time.Minute

	codeByteLength = 32
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps pending codes in process memory. Consumed codes leave a
// tombstone until the code would have expired anyway, so that a second
// exchange attempt can be told apart from a code that never existed.
type InMemoryStore struct {
	codes   sync.Map // code -> *codeEntry
	used    sync.Map // code -> expiry of the tombstone
	codeTTL time.Duration
	nowFunc func() time.Time
}

type codeEntry struct {
	grant     Grant
	expiresAt time.Time
}

type InMemoryStoreOption func(*InMemoryStore)

// WithCodeTTL overrides the default lifetime for newly issued codes
func WithCodeTTL(ttl time.Duration) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.codeTTL = ttl
	}
}

// WithNowTime sets the time function used for expiry checks
func WithNowTime(nowFunc func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowFunc = nowFunc
	}
}

func NewInMemoryStore(opts ...InMemoryStoreOption) *InMemoryStore {
	store := &InMemoryStore{
		codeTTL: DefaultCodeTTL,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue generates a fresh code for the grant. The grant's ExpiresAt is
// clamped to the store TTL when unset or further out than the TTL allows.
func (s *InMemoryStore) Issue(_ context.Context, grant Grant) (string, error) {
	code, err := NewCode()
	if err != nil {
		return "", errors.Wrap(err, "[InMemoryStore.Issue] NewCode")
	}

	now := s.nowFunc()
	maxExpiry := now.Add(s.codeTTL)
	if grant.ExpiresAt.IsZero() || grant.ExpiresAt.After(maxExpiry) {
		grant.ExpiresAt = maxExpiry
	}
	grant.Scopes = append([]string(nil), grant.Scopes...)

	s.codes.Store(code, &codeEntry{grant: grant, expiresAt: grant.ExpiresAt})
	return code, nil
}

// Peek reads the grant without spending the code.
func (s *InMemoryStore) Peek(_ context.Context, code string) (*Grant, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	value, loaded := s.codes.Load(code)
	if !loaded {
		if _, used := s.used.Load(code); used {
			return nil, ErrCodeAlreadyUsed
		}
		return nil, ErrCodeNotFound
	}

	entry := value.(*codeEntry)
	if s.nowFunc().After(entry.expiresAt) {
		return nil, ErrCodeExpired
	}

	grant := entry.grant
	grant.Scopes = append([]string(nil), entry.grant.Scopes...)
	return &grant, nil
}

// Consume removes the code and hands back its grant. LoadAndDelete makes the
// removal atomic: with N concurrent callers exactly one sees the entry.
func (s *InMemoryStore) Consume(_ context.Context, code string) (*Grant, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	value, loaded := s.codes.LoadAndDelete(code)
	if !loaded {
		if _, used := s.used.Load(code); used {
			return nil, ErrCodeAlreadyUsed
		}
		return nil, ErrCodeNotFound
	}

	entry := value.(*codeEntry)
	if s.nowFunc().After(entry.expiresAt) {
		return nil, ErrCodeExpired
	}

	s.used.Store(code, entry.expiresAt)

	grant := entry.grant
	grant.Scopes = append([]string(nil), entry.grant.Scopes...)
	return &grant, nil
}

// RunJanitor prunes expired codes and aged-out tombstones every interval
// until the context is cancelled. Meant to be supervised by the composition
// root's errgroup.
func (s *InMemoryStore) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *InMemoryStore) prune() {
	now := s.nowFunc()
	s.codes.Range(func(key, value any) bool {
		if now.After(value.(*codeEntry).expiresAt) {
			s.codes.Delete(key)
		}
		return true
	})
	s.used.Range(func(key, value any) bool {
		if now.After(value.(time.Time)) {
			s.used.Delete(key)
		}
		return true
	})
}

// NewCode returns 32 bytes of crypto/rand randomness in unpadded base64url,
// the wire format for authorization codes.
func NewCode() (string, error) {
	buf := make([]byte, codeByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
