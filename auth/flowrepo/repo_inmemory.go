package flowrepo

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Expiry is enforced at read time; the janitor only bounds memory.
type InMemoryRepo struct {
	mu      sync.RWMutex
	flows   map[string]*Flow
	nowFunc func() time.Time
}

type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the time function used for expiry checks
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory pending flow repository
func NewInMemoryRepo(opts ...InMemoryRepoOption) *InMemoryRepo {
	repo := &InMemoryRepo{
		flows:   make(map[string]*Flow),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Upsert stores or updates a pending flow
func (r *InMemoryRepo) Upsert(_ context.Context, flow *Flow) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.ID == "" {
		return errors.New("flow ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.flows[flow.ID] = copyFlow(flow)
	return nil
}

// Get retrieves a pending flow by ID. Expired flows report ErrFlowNotFound.
func (r *InMemoryRepo) Get(_ context.Context, flowID string) (*Flow, error) {
	if flowID == "" {
		return nil, errors.New("flow ID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[flowID]
	if !exists {
		return nil, ErrFlowNotFound
	}
	if !r.nowFunc().Before(flow.ExpiresAt) {
		return nil, ErrFlowNotFound
	}
	return copyFlow(flow), nil
}

// Delete removes a pending flow
func (r *InMemoryRepo) Delete(_ context.Context, flowID string) error {
	if flowID == "" {
		return errors.New("flow ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, flowID)
	return nil
}

// RunJanitor drops expired flows every interval until the context is
// cancelled.
func (r *InMemoryRepo) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *InMemoryRepo) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	for id, flow := range r.flows {
		if !now.Before(flow.ExpiresAt) {
			delete(r.flows, id)
		}
	}
}

func copyFlow(f *Flow) *Flow {
	flowCopy := *f
	if f.Params != nil {
		paramsCopy := *f.Params
		flowCopy.Params = &paramsCopy
	}
	return &flowCopy
}
