package cache

import (
	"context"
	"time"

	"dzchess-analyzer/internal/model"
)

// JobStore keeps job snapshots for the retention period.
// This abstraction allows swapping between memory (development, single
// instance) and Redis (production) without changing the runner.
type JobStore interface {
	// SaveJob stores a snapshot of the job, replacing any previous one.
	SaveJob(ctx context.Context, job *model.Job) error

	// GetJob returns model.ErrJobNotFound for unknown or expired ids.
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// PlayerLock guards a player against two concurrent jobs.
type PlayerLock interface {
	// TryAcquire takes the lock for owner. It reports false when another
	// owner holds it.
	TryAcquire(ctx context.Context, username, owner string, ttl time.Duration) (bool, error)

	// Release drops the lock if owner still holds it.
	Release(ctx context.Context, username, owner string) error
}

// Store combines the job store and the player lock.
type Store interface {
	JobStore
	PlayerLock

	// Ping checks the backend.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
