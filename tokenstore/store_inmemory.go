package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a thread-safe in-memory implementation of the Store
// interface. Revocations live in a side map so records themselves stay
// immutable once written.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record   // JTI -> record
	byHash  map[string]string    // ValueHash -> JTI
	revoked map[string]time.Time // JTI -> revocation time
	nowFunc func() time.Time
}

type InMemoryStoreOption func(*InMemoryStore)

// WithNowTime sets the time function used for revocation timestamps and pruning
func WithNowTime(nowFunc func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowFunc = nowFunc
	}
}

func NewInMemoryStore(opts ...InMemoryStoreOption) *InMemoryStore {
	store := &InMemoryStore{
		records: make(map[string]*Record),
		byHash:  make(map[string]string),
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Put stores new records
func (s *InMemoryStore) Put(_ context.Context, records ...*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(records)
}

// Rotate revokes oldJTI and stores the replacements in one step
func (s *InMemoryStore) Rotate(_ context.Context, oldJTI string, replacements ...*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[oldJTI]; !exists {
		return ErrTokenNotFound
	}
	if _, alreadyRevoked := s.revoked[oldJTI]; alreadyRevoked {
		return ErrTokenRevoked
	}

	s.revoked[oldJTI] = s.nowFunc()
	return s.putLocked(replacements)
}

func (s *InMemoryStore) putLocked(records []*Record) error {
	for _, record := range records {
		if record == nil || record.JTI == "" {
			return errors.New("record JTI cannot be empty")
		}
	}
	for _, record := range records {
		s.records[record.JTI] = copyRecord(record)
		if record.ValueHash != "" {
			s.byHash[record.ValueHash] = record.JTI
		}
	}
	return nil
}

// GetByJTI retrieves a record by token identifier
func (s *InMemoryStore) GetByJTI(_ context.Context, jti string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(jti)
}

// GetByValueHash retrieves a record by the hash of its opaque value
func (s *InMemoryStore) GetByValueHash(_ context.Context, hash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jti, exists := s.byHash[hash]
	if !exists {
		return nil, ErrTokenNotFound
	}
	return s.getLocked(jti)
}

func (s *InMemoryStore) getLocked(jti string) (*Record, error) {
	record, exists := s.records[jti]
	if !exists {
		return nil, ErrTokenNotFound
	}

	result := copyRecord(record)
	if revokedAt, isRevoked := s.revoked[jti]; isRevoked {
		result.Revoked = true
		result.RevokedAt = revokedAt
	}
	return result, nil
}

// Revoke marks a single token revoked
func (s *InMemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[jti]; !exists {
		return ErrTokenNotFound
	}
	if _, alreadyRevoked := s.revoked[jti]; !alreadyRevoked {
		s.revoked[jti] = s.nowFunc()
	}
	return nil
}

// RevokeByParent revokes all tokens spawned by the given token
func (s *InMemoryStore) RevokeByParent(_ context.Context, parentJTI string) (int, error) {
	if parentJTI == "" {
		return 0, nil
	}
	return s.revokeMatching(func(r *Record) bool { return r.ParentJTI == parentJTI }), nil
}

// RevokeByClient revokes all tokens issued to a client
func (s *InMemoryStore) RevokeByClient(_ context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, nil
	}
	return s.revokeMatching(func(r *Record) bool { return r.ClientID == clientID }), nil
}

// RevokeBySubject revokes all tokens issued for a subject
func (s *InMemoryStore) RevokeBySubject(_ context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}
	return s.revokeMatching(func(r *Record) bool { return r.Subject == subject }), nil
}

func (s *InMemoryStore) revokeMatching(match func(*Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	count := 0
	for jti, record := range s.records {
		if !match(record) {
			continue
		}
		if _, alreadyRevoked := s.revoked[jti]; alreadyRevoked {
			continue
		}
		s.revoked[jti] = now
		count++
	}
	return count
}

// RunJanitor drops records that expired before the previous tick, every
// interval, until the context is cancelled.
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
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for jti, record := range s.records {
		if now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, jti)
		delete(s.revoked, jti)
		if record.ValueHash != "" {
			delete(s.byHash, record.ValueHash)
		}
	}
}

func copyRecord(r *Record) *Record {
	recordCopy := *r
	recordCopy.Scopes = append([]string(nil), r.Scopes...)
	recordCopy.GrantScopes = append([]string(nil), r.GrantScopes...)
	return &recordCopy
}
