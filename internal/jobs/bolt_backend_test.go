package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
)

func urlRequest(t *testing.T, urls ...string) domain.SearchRequest {
	t.Helper()
	req, err := domain.NewURLSearch(urls)
	if err != nil {
		t.Fatalf("NewURLSearch: %v", err)
	}
	return req
}

func openTestBolt(t *testing.T, opts Options) *boltBackend {
	t.Helper()
	b, err := openBolt(filepath.Join(t.TempDir(), "jobs.db"), opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBoltSaveAndGet(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{})

	job := NewJob(domain.CM, urlRequest(t, "https://www.cmjornal.pt/a/detalhe/x"), time.Now())
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := b.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != job.ID || got.Status != StatusQueued || got.Publisher != domain.CM {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.Args.URL == nil || got.Args.URL.URLs[0] != "https://www.cmjornal.pt/a/detalhe/x" {
		t.Fatalf("args not preserved: %+v", got.Args)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltExpiredJobsReadAsNotFound(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{CleanupInterval: time.Hour})

	now := time.Now()
	job := NewJob(domain.Publico, urlRequest(t, "https://www.publico.pt/x-1"), now)
	ended := now
	expires := now.Add(time.Minute)
	job.Status = StatusFinished
	job.EndedAt = &ended
	job.ExpiresAt = &expires
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := b.Get(ctx, job.ID); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := b.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestBoltCleanupRemovesExpiredJobs(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{CleanupInterval: time.Second})

	now := time.Now()
	expires := now.Add(-time.Second)
	job := NewJob(domain.CM, urlRequest(t, "https://www.cmjornal.pt/b/detalhe/y"), now)
	job.Status = StatusFailed
	job.ExpiresAt = &expires
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b.lastCleanup.Store(now.Add(-time.Hour).Unix())
	if err := b.maybeCleanupExpired(now); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	var raw []byte
	b.db.View(func(tx *bolt.Tx) error {
		raw = tx.Bucket([]byte(jobBucket)).Get([]byte(job.ID))
		return nil
	})
	if raw != nil {
		t.Fatalf("expected expired job to be purged")
	}
}

func TestBoltFindActiveTracksFingerprint(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{})

	job := NewJob(domain.CM, urlRequest(t, "https://www.cmjornal.pt/c/detalhe/z"), time.Now())
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	active, ok, err := b.FindActive(ctx, job.Fingerprint)
	if err != nil || !ok || active.ID != job.ID {
		t.Fatalf("expected active job, got %+v ok=%v err=%v", active, ok, err)
	}

	ended := time.Now()
	expires := ended.Add(time.Hour)
	job.Status = StatusFinished
	job.EndedAt = &ended
	job.ExpiresAt = &expires
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save finished: %v", err)
	}
	if _, ok, err := b.FindActive(ctx, job.Fingerprint); err != nil || ok {
		t.Fatalf("finished job must not be active, ok=%v err=%v", ok, err)
	}
}

func TestBoltQueueAndRequeueOnOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	b, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	job := NewJob(domain.CM, urlRequest(t, "https://www.cmjornal.pt/d/detalhe/w"), time.Now())
	if _, _, err := Enqueue(ctx, b, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	id, err := b.Pop(ctx)
	if err != nil || id != job.ID {
		t.Fatalf("Pop = %q, %v", id, err)
	}
	b.Close()

	reopened, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	id, err = reopened.Pop(popCtx)
	if err != nil || id != job.ID {
		t.Fatalf("expected queued job to be requeued, got %q, %v", id, err)
	}
}

func TestBoltReopenFailsJobsLeftRunning(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	b, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	req := urlRequest(t, "https://www.cmjornal.pt/e/detalhe/v")
	job := NewJob(domain.CM, req, time.Now())
	started := time.Now()
	job.Status = StatusStarted
	job.StartedAt = &started
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b.Close()

	reopened, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed || got.ExcInfo != errTerminated || got.EndedAt == nil || got.ExpiresAt == nil {
		t.Fatalf("expected job left running to be failed, got %+v", got)
	}

	fresh, existing, err := Enqueue(ctx, reopened, NewJob(domain.CM, req, time.Now()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if existing || fresh.ID == job.ID {
		t.Fatalf("resubmission must create a new job, got existing=%v id=%s", existing, fresh.ID)
	}
	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if id, err := reopened.Pop(popCtx); err != nil || id != fresh.ID {
		t.Fatalf("expected only the new job queued, got %q, %v", id, err)
	}
}

func TestBoltFindActiveIgnoresStaleJobs(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{ActiveTTL: time.Minute})

	now := time.Now()
	req := urlRequest(t, "https://www.cmjornal.pt/f/detalhe/u")
	job := NewJob(domain.CM, req, now)
	if err := b.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok, _ := b.FindActive(ctx, job.Fingerprint); !ok {
		t.Fatalf("fresh job must be active")
	}

	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok, err := b.FindActive(ctx, job.Fingerprint); err != nil || ok {
		t.Fatalf("stale job must not be active, ok=%v err=%v", ok, err)
	}
	fresh, existing, err := b.Create(ctx, NewJob(domain.CM, req, now.Add(2*time.Minute)))
	if err != nil || existing || fresh.ID == job.ID {
		t.Fatalf("expected a new job, got %+v existing=%v err=%v", fresh, existing, err)
	}
}

func TestBoltRequeueKeepsEveryPendingJob(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	b, err := openBolt(path, Options{QueueSize: 1})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	base := time.Now()
	var want []string
	for i, u := range []string{"https://www.publico.pt/a-1", "https://www.publico.pt/b-2", "https://www.publico.pt/c-3"} {
		job := NewJob(domain.Publico, urlRequest(t, u), base.Add(time.Duration(i)*time.Second))
		if err := b.Save(ctx, job); err != nil {
			t.Fatalf("Save: %v", err)
		}
		want = append(want, job.ID)
	}
	b.Close()

	reopened, err := openBolt(path, Options{QueueSize: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i, id := range want {
		popCtx, cancel := context.WithTimeout(ctx, time.Second)
		got, err := reopened.Pop(popCtx)
		cancel()
		if err != nil || got != id {
			t.Fatalf("pop %d = %q, %v; want %q", i, got, err, id)
		}
	}
}

func TestBoltConcurrentEnqueueCreatesOneJob(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t, Options{})
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
			if err != nil {
				t.Errorf("Enqueue: %v", err)
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
	if created != 1 || len(ids) != 1 {
		t.Fatalf("expected one job for identical requests, created=%d ids=%d", created, len(ids))
	}
}

func TestBoltPopHonoursContext(t *testing.T) {
	b := openTestBolt(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), BackendConfig{Type: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
