package consent

import (
	"context"
	"errors"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[consentKey]*Consent
}

type consentKey struct {
	subject  string
	clientID string
}

// NewInMemoryRepo creates a new in-memory consent repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records: make(map[consentKey]*Consent),
	}
}

// Get retrieves the consent record for a subject/client pair
func (r *InMemoryRepo) Get(_ context.Context, subject, clientID string) (*Consent, error) {
	if subject == "" || clientID == "" {
		return nil, ErrConsentNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[consentKey{subject: subject, clientID: clientID}]
	if !exists {
		return nil, ErrConsentNotFound
	}
	return copyConsent(record), nil
}

// Upsert stores or replaces a consent record
func (r *InMemoryRepo) Upsert(_ context.Context, record *Consent) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if record.Subject == "" || record.ClientID == "" {
		return errors.New("subject and clientID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[consentKey{subject: record.Subject, clientID: record.ClientID}] = copyConsent(record)
	return nil
}

// Delete removes a consent record
func (r *InMemoryRepo) Delete(_ context.Context, subject, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, consentKey{subject: subject, clientID: clientID})
	return nil
}

func copyConsent(c *Consent) *Consent {
	consentCopy := *c
	consentCopy.Scopes = append([]string(nil), c.Scopes...)
	return &consentCopy
}
