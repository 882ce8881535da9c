package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
)

func newTestRedis(t *testing.T, opts Options) (*redisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := newRedisBackend(rdb, "test", opts)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisSaveGetAndKeys(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t, Options{ActiveTTL: time.Hour})

	job := NewJob(domain.Publico, urlRequest(t, "https://www.publico.pt/a-1"), time.Now())
	require.NoError(t, b.Save(ctx, job))

	got, err := b.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, StatusQueued, got.Status)

	assert.True(t, mr.Exists("test:job:"+job.ID))
	fp, err := mr.Get("test:fp:" + job.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, job.ID, fp)
	assert.Equal(t, time.Hour, mr.TTL("test:job:"+job.ID))

	_, err = b.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisFinishedJobsExpire(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t, Options{})

	now := time.Now()
	b.now = func() time.Time { return now }
	job := NewJob(domain.CM, urlRequest(t, "https://www.cmjornal.pt/a/detalhe/x"), now)
	require.NoError(t, b.Save(ctx, job))

	expires := now.Add(10 * time.Minute)
	job.Status = StatusFinished
	job.EndedAt = &now
	job.ExpiresAt = &expires
	job.Result = []domain.Article{{Title: "t", URL: "https://www.cmjornal.pt/a/detalhe/x"}}
	require.NoError(t, b.Save(ctx, job))

	assert.False(t, mr.Exists("test:fp:"+job.Fingerprint), "fingerprint must be released")
	_, ok, err := b.FindActive(ctx, job.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := b.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Result, 1)

	mr.FastForward(11 * time.Minute)
	_, err = b.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisEnqueueDetectsDuplicates(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t, Options{})

	req := urlRequest(t, "https://www.publico.pt/a-1", "https://www.publico.pt/b-2")
	first, existing, err := Enqueue(ctx, b, NewJob(domain.Publico, req, time.Now()))
	require.NoError(t, err)
	assert.False(t, existing)

	second, existing, err := Enqueue(ctx, b, NewJob(domain.Publico, req, time.Now()))
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first.ID, second.ID)

	other, existing, err := Enqueue(ctx, b, NewJob(domain.CM, req, time.Now()))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, first.ID, other.ID)

	id, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	id, err = b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.ID, id)
}

func TestRedisConcurrentEnqueueCreatesOneJob(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t, Options{})
	req := urlRequest(t, "https://www.publico.pt/a-1")

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, existing, err := Enqueue(ctx, b, NewJob(domain.Publico, req, time.Now()))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !existing {
				created++
			}
			ids[job.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	queued, err := mr.List("test:queue")
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestRedisFindActiveIgnoresStaleJobs(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t, Options{ActiveTTL: time.Hour})

	now := time.Now()
	req := urlRequest(t, "https://www.cmjornal.pt/a/detalhe/x")
	job := NewJob(domain.CM, req, now)
	started := now
	job.Status = StatusStarted
	job.StartedAt = &started
	require.NoError(t, b.Save(ctx, job))

	b.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok, err := b.FindActive(ctx, job.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, existing, err := b.Create(ctx, NewJob(domain.CM, req, now.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, job.ID, fresh.ID)
}

func TestRedisPopHonoursContext(t *testing.T) {
	b, _ := newTestRedis(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
