package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	jobBucket         = "jobs"
	fingerprintBucket = "fingerprints"
)

// boltBackend keeps job records in a BoltDB file and queues ids in memory.
// It serves a single process: API and workers must share it.
type boltBackend struct {
	db              *bolt.DB
	queue           chan string
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	cleanupInterval time.Duration
	resultTTL       time.Duration
	activeTTL       time.Duration
	now             func() time.Time
}

// errTerminated is recorded on jobs that were running when the previous
// process holding the file stopped.
const errTerminated = "worker terminated before the job finished"

// OpenBolt initializes a BoltDB-backed Backend. Jobs left queued by a previous
// run are queued again; jobs it left running are marked failed.
func OpenBolt(path string, opts Options) (Backend, error) {
	return openBolt(path, opts)
}

func openBolt(path string, opts Options) (*boltBackend, error) {
	opts = normalizeOptions(opts)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{jobBucket, fingerprintBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	b := &boltBackend{
		db:              db,
		cleanupInterval: opts.CleanupInterval,
		resultTTL:       opts.ResultTTL,
		activeTTL:       opts.ActiveTTL,
		now:             time.Now,
	}
	b.lastCleanup.Store(b.now().Unix())

	pending, err := b.recoverJobs()
	if err != nil {
		db.Close()
		return nil, err
	}
	// room for everything the previous run left queued
	b.queue = make(chan string, len(pending)+opts.QueueSize)
	for _, id := range pending {
		b.queue <- id
	}
	return b, nil
}

// recoverJobs returns the ids of queued jobs in enqueue order and fails the
// jobs a previous process left started. The bbolt file lock guarantees that
// process is gone.
func (b *boltBackend) recoverJobs() ([]string, error) {
	var pending []Job
	err := b.db.Update(func(tx *bolt.Tx) error {
		jobsBucket := tx.Bucket([]byte(jobBucket))
		fps := tx.Bucket([]byte(fingerprintBucket))
		now := b.now().UTC()
		var orphans []Job
		if err := jobsBucket.ForEach(func(_, v []byte) error {
			job, err := decodeJob(v)
			if err != nil {
				return nil
			}
			switch job.Status {
			case StatusQueued:
				pending = append(pending, job)
			case StatusStarted, StatusDeferred:
				orphans = append(orphans, job)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, job := range orphans {
			expires := now.Add(b.resultTTL)
			job.Status = StatusFailed
			job.ExcInfo = errTerminated
			job.EndedAt = &now
			job.ExpiresAt = &expires
			raw, err := encodeJob(job)
			if err != nil {
				return err
			}
			if err := jobsBucket.Put([]byte(job.ID), raw); err != nil {
				return err
			}
			if string(fps.Get([]byte(job.Fingerprint))) == job.ID {
				if err := fps.Delete([]byte(job.Fingerprint)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recover jobs: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt) })
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Close closes the BoltDB file.
func (b *boltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltBackend) Save(_ context.Context, job Job) error {
	if err := b.maybeCleanupExpired(b.now()); err != nil {
		return err
	}
	raw, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(jobBucket)).Put([]byte(job.ID), raw); err != nil {
			return err
		}
		fps := tx.Bucket([]byte(fingerprintBucket))
		if job.Fingerprint == "" {
			return nil
		}
		if !job.Status.Done() {
			return fps.Put([]byte(job.Fingerprint), []byte(job.ID))
		}
		if string(fps.Get([]byte(job.Fingerprint))) == job.ID {
			return fps.Delete([]byte(job.Fingerprint))
		}
		return nil
	})
}

func (b *boltBackend) Get(_ context.Context, id string) (Job, error) {
	if err := b.maybeCleanupExpired(b.now()); err != nil {
		return Job{}, err
	}

	var job Job
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(jobBucket))
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		decoded, err := decodeJob(raw)
		if err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if decoded.Expired(b.now()) {
			if err := bucket.Delete([]byte(id)); err != nil {
				return err
			}
			return ErrNotFound
		}
		job = decoded
		return nil
	})
	return job, err
}

func (b *boltBackend) FindActive(_ context.Context, fingerprint string) (Job, bool, error) {
	var (
		job Job
		ok  bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		job, ok, err = b.activeFor(tx, fingerprint)
		return err
	})
	return job, ok, err
}

func (b *boltBackend) Create(ctx context.Context, job Job) (Job, bool, error) {
	if err := b.maybeCleanupExpired(b.now()); err != nil {
		return Job{}, false, err
	}
	raw, err := encodeJob(job)
	if err != nil {
		return Job{}, false, fmt.Errorf("encode job: %w", err)
	}

	var (
		prev     Job
		existing bool
	)
	err = b.db.Update(func(tx *bolt.Tx) error {
		if job.Fingerprint != "" {
			var err error
			if prev, existing, err = b.activeFor(tx, job.Fingerprint); err != nil || existing {
				return err
			}
			if err := tx.Bucket([]byte(fingerprintBucket)).Put([]byte(job.Fingerprint), []byte(job.ID)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(jobBucket)).Put([]byte(job.ID), raw)
	})
	if err != nil {
		return Job{}, false, err
	}
	if existing {
		return prev, true, nil
	}
	return job, false, nil
}

// activeFor resolves fingerprint to a queued or started job. Records that are
// gone, done or orphaned do not count.
func (b *boltBackend) activeFor(tx *bolt.Tx, fingerprint string) (Job, bool, error) {
	id := tx.Bucket([]byte(fingerprintBucket)).Get([]byte(fingerprint))
	if id == nil {
		return Job{}, false, nil
	}
	raw := tx.Bucket([]byte(jobBucket)).Get(id)
	if raw == nil {
		return Job{}, false, nil
	}
	job, err := decodeJob(raw)
	if err != nil {
		return Job{}, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	now := b.now()
	if job.Status.Done() || job.Expired(now) || orphaned(job, now, b.activeTTL) {
		return Job{}, false, nil
	}
	return job, true, nil
}

func (b *boltBackend) Push(ctx context.Context, id string) error {
	select {
	case b.queue <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *boltBackend) Pop(ctx context.Context) (string, error) {
	select {
	case id := <-b.queue:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// maybeCleanupExpired removes expired jobs on a fixed cadence to avoid unbounded growth.
func (b *boltBackend) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(jobBucket)).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			job, err := decodeJob(v)
			if err != nil || job.Expired(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}
