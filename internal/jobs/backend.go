package jobs

import (
	"context"
	"fmt"
	"time"
)

// Store persists job records.
type Store interface {
	// Save inserts or replaces a job. Finished and failed jobs must carry
	// ExpiresAt; they are dropped once it passes.
	Save(ctx context.Context, job Job) error
	// Get returns ErrNotFound for unknown or expired jobs.
	Get(ctx context.Context, id string) (Job, error)
	// FindActive returns the queued or started job with fingerprint, if any.
	FindActive(ctx context.Context, fingerprint string) (Job, bool, error)
	// Create saves job unless an active job holds its fingerprint, in which
	// case that job is returned with existing set. The check and the write
	// are atomic.
	Create(ctx context.Context, job Job) (stored Job, existing bool, err error)
	Close() error
}

// Queue hands job ids to workers.
type Queue interface {
	Push(ctx context.Context, id string) error
	// Pop blocks until an id is available or ctx is done.
	Pop(ctx context.Context) (string, error)
}

// Backend is a Store with its Queue.
type Backend interface {
	Store
	Queue
}

// Options controls retention for concrete backends.
type Options struct {
	ResultTTL       time.Duration
	ActiveTTL       time.Duration
	CleanupInterval time.Duration
	QueueSize       int
}

const (
	defaultResultTTL       = 3 * time.Hour
	defaultActiveTTL       = 6 * time.Hour
	defaultCleanupInterval = 10 * time.Minute
	defaultQueueSize       = 1024
)

func normalizeOptions(opts Options) Options {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = defaultResultTTL
	}
	if opts.ActiveTTL <= 0 {
		opts.ActiveTTL = defaultActiveTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return opts
}

// Enqueue stores and queues job unless an identical request is still queued
// or running, in which case that job is returned with existing set to true.
func Enqueue(ctx context.Context, b Backend, job Job) (stored Job, existing bool, err error) {
	stored, existing, err = b.Create(ctx, job)
	if err != nil {
		return Job{}, false, fmt.Errorf("create job: %w", err)
	}
	if existing {
		return stored, true, nil
	}
	if err := b.Push(ctx, job.ID); err != nil {
		return Job{}, false, fmt.Errorf("queue job: %w", err)
	}
	return job, false, nil
}

// orphaned reports whether an active job has sat past activeTTL since it was
// last touched. Such jobs belong to a worker that is gone.
func orphaned(job Job, now time.Time, activeTTL time.Duration) bool {
	if job.Status.Done() {
		return false
	}
	last := job.EnqueuedAt
	if job.StartedAt != nil {
		last = *job.StartedAt
	}
	return now.Sub(last) > activeTTL
}
