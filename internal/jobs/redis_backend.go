package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig points a backend at a redis instance.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

const popWait = time.Second

// redisBackend stores job records as TTL'd keys and queues ids on a list.
// Any number of API and worker processes may share it.
type redisBackend struct {
	rdb    redis.UniversalClient
	prefix string
	opts   Options
	now    func() time.Time
}

// OpenRedis connects to redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig, opts Options) (Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return newRedisBackend(rdb, cfg.Prefix, opts), nil
}

func newRedisBackend(rdb redis.UniversalClient, prefix string, opts Options) *redisBackend {
	if prefix == "" {
		prefix = "ptnews"
	}
	return &redisBackend{rdb: rdb, prefix: prefix, opts: normalizeOptions(opts), now: time.Now}
}

func (b *redisBackend) jobKey(id string) string { return b.prefix + ":job:" + id }
func (b *redisBackend) fpKey(fp string) string  { return b.prefix + ":fp:" + fp }
func (b *redisBackend) queueKey() string        { return b.prefix + ":queue" }

func (b *redisBackend) Close() error { return b.rdb.Close() }

func (b *redisBackend) Save(ctx context.Context, job Job) error {
	raw, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	ttl := b.opts.ActiveTTL
	if job.Status.Done() {
		ttl = b.opts.ResultTTL
		if job.ExpiresAt != nil {
			ttl = job.ExpiresAt.Sub(b.now())
		}
		if ttl <= 0 {
			return b.rdb.Del(ctx, b.jobKey(job.ID)).Err()
		}
	}

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.jobKey(job.ID), raw, ttl)
	if job.Fingerprint != "" {
		if job.Status.Done() {
			pipe.Del(ctx, b.fpKey(job.Fingerprint))
		} else {
			pipe.Set(ctx, b.fpKey(job.Fingerprint), job.ID, b.opts.ActiveTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (b *redisBackend) Get(ctx context.Context, id string) (Job, error) {
	return b.load(ctx, b.rdb, id)
}

// stringGetter is satisfied by clients and by WATCH transactions.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (b *redisBackend) load(ctx context.Context, c stringGetter, id string) (Job, error) {
	raw, err := c.Get(ctx, b.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	if job.Expired(b.now()) {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (b *redisBackend) FindActive(ctx context.Context, fingerprint string) (Job, bool, error) {
	return b.activeFor(ctx, b.rdb, fingerprint)
}

func (b *redisBackend) activeFor(ctx context.Context, c stringGetter, fingerprint string) (Job, bool, error) {
	id, err := c.Get(ctx, b.fpKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("lookup fingerprint: %w", err)
	}

	job, err := b.load(ctx, c, id)
	if errors.Is(err, ErrNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	if job.Status.Done() || orphaned(job, b.now(), b.opts.ActiveTTL) {
		return Job{}, false, nil
	}
	return job, true, nil
}

const createRetries = 5

// Create claims the fingerprint under WATCH so that concurrent identical
// requests resolve to a single job.
func (b *redisBackend) Create(ctx context.Context, job Job) (Job, bool, error) {
	raw, err := encodeJob(job)
	if err != nil {
		return Job{}, false, fmt.Errorf("encode job: %w", err)
	}
	if job.Fingerprint == "" {
		if err := b.rdb.Set(ctx, b.jobKey(job.ID), raw, b.opts.ActiveTTL).Err(); err != nil {
			return Job{}, false, fmt.Errorf("save job %s: %w", job.ID, err)
		}
		return job, false, nil
	}

	fpKey := b.fpKey(job.Fingerprint)
	var (
		prev     Job
		existing bool
	)
	claim := func(tx *redis.Tx) error {
		var err error
		prev, existing, err = b.activeFor(ctx, tx, job.Fingerprint)
		if err != nil || existing {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, b.jobKey(job.ID), raw, b.opts.ActiveTTL)
			pipe.Set(ctx, fpKey, job.ID, b.opts.ActiveTTL)
			return nil
		})
		return err
	}

	for i := 0; i < createRetries; i++ {
		err := b.rdb.Watch(ctx, claim, fpKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Job{}, false, fmt.Errorf("create job %s: %w", job.ID, err)
		}
		if existing {
			return prev, true, nil
		}
		return job, false, nil
	}
	return Job{}, false, fmt.Errorf("create job %s: fingerprint kept changing", job.ID)
}

func (b *redisBackend) Push(ctx context.Context, id string) error {
	if err := b.rdb.LPush(ctx, b.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", id, err)
	}
	return nil
}

// Pop polls the queue list in short blocking calls so ctx cancellation is
// noticed within popWait.
func (b *redisBackend) Pop(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := b.rdb.BRPop(ctx, popWait, b.queueKey()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("pop job: %w", err)
		}
		// BRPOP replies with [key, value]
		if len(res) == 2 {
			return res[1], nil
		}
	}
}
