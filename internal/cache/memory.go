package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"dzchess-analyzer/internal/model"
)

// MemoryStore is an in-memory implementation of Store.
// Use this for development/testing or single-instance deployments.
type MemoryStore struct {
	jobs  *gocache.Cache
	locks *gocache.Cache
	// mu makes the lock compare-and-delete atomic.
	mu        sync.Mutex
	retention time.Duration
}

// NewMemoryStore creates a memory store. Jobs expire after retention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{
		jobs:      gocache.New(retention, time.Minute),
		locks:     gocache.New(gocache.NoExpiration, time.Minute),
		retention: retention,
	}
}

// SaveJob stores a copy of the job.
func (m *MemoryStore) SaveJob(ctx context.Context, job *model.Job) error {
	m.jobs.Set(job.ID, job.Clone(), m.retention)
	return nil
}

// GetJob returns a copy of the stored job.
func (m *MemoryStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	v, ok := m.jobs.Get(id)
	if !ok {
		return nil, errors.Wrapf(model.ErrJobNotFound, "%s", id)
	}
	return v.(*model.Job).Clone(), nil
}

// TryAcquire takes the player lock unless someone else holds it.
func (m *MemoryStore) TryAcquire(ctx context.Context, username, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.locks.Add(username, owner, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Release drops the lock held by owner.
func (m *MemoryStore) Release(ctx context.Context, username, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.locks.Get(username); ok && v.(string) == owner {
		m.locks.Delete(username)
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close clears all entries.
func (m *MemoryStore) Close() error {
	m.jobs.Flush()
	m.locks.Flush()
	return nil
}
