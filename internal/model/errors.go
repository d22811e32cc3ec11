package model

import "github.com/pkg/errors"

// Pipeline error taxonomy. Per-record kinds are absorbed into batch counters,
// job-level kinds move a job to FAILED.
var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrDuplicateRecord    = errors.New("duplicate record")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrNoDataAvailable    = errors.New("no data available")
	ErrInvariantViolation = errors.New("aggregate invariant violated")
)

// Job errors.
var (
	ErrPlayerBusy  = errors.New("player already has a job in progress")
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job is already finished")
	ErrCancelled   = errors.New("cancelled")
	ErrInvalidJob  = errors.New("invalid job request")
)
