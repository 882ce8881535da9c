package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
)

// SearchFunc executes the search described by a job.
type SearchFunc func(ctx context.Context, pub domain.Publisher, req domain.SearchRequest) ([]domain.Article, error)

// Notifier is told about every job that reaches a final state.
type Notifier interface {
	JobDone(ctx context.Context, job Job) error
}

// RunnerOptions tune a Runner.
type RunnerOptions struct {
	Timeout   time.Duration
	ResultTTL time.Duration
	Notifier  Notifier
	Log       logger.Logger
}

// Runner pulls job ids from a backend and executes them.
type Runner struct {
	backend   Backend
	search    SearchFunc
	notifier  Notifier
	timeout   time.Duration
	resultTTL time.Duration
	log       logger.Logger
	now       func() time.Time
}

// NewRunner builds a runner. A zero Timeout disables the per-job deadline.
func NewRunner(b Backend, search SearchFunc, opts RunnerOptions) *Runner {
	ttl := opts.ResultTTL
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &Runner{
		backend:   b,
		search:    search,
		notifier:  opts.Notifier,
		timeout:   opts.Timeout,
		resultTTL: ttl,
		log:       logger.Ensure(opts.Log),
		now:       time.Now,
	}
}

// Run starts workers goroutines and blocks until ctx is cancelled and all of
// them returned.
func (r *Runner) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("worker count must be >= 1, got %d", workers)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.loop(ctx, n)
		}(i)
	}
	wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context, worker int) {
	r.log.DebugObj("worker started", "worker", worker)
	for {
		id, err := r.backend.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.DebugObj("worker exiting", "worker", worker)
				return
			}
			r.log.ErrorObj("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := r.Process(ctx, id); err != nil {
			r.log.ErrorObj("job processing failed", "job", map[string]any{
				"id":    id,
				"error": err.Error(),
			})
		}
	}
}

// Process runs a single job to completion. Search failures are recorded on
// the job; the returned error covers storage problems only.
func (r *Runner) Process(ctx context.Context, id string) error {
	job, err := r.backend.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		r.log.WarnObj("dropping unknown job", "job_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status != StatusQueued {
		r.log.WarnObj("skipping job that is not queued", "job", map[string]any{
			"id":     job.ID,
			"status": job.Status,
		})
		return nil
	}

	started := r.now().UTC()
	job.Status = StatusStarted
	job.StartedAt = &started
	if err := r.backend.Save(ctx, job); err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	r.log.InfoObj("job started", "job", map[string]any{
		"id":        job.ID,
		"publisher": job.Publisher,
		"kind":      job.Kind,
	})

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	articles, searchErr := r.search(runCtx, job.Publisher, job.Args)
	cancel()

	ended := r.now().UTC()
	expires := ended.Add(r.resultTTL)
	job.EndedAt = &ended
	job.ExpiresAt = &expires
	if searchErr != nil {
		job.Status = StatusFailed
		job.ExcInfo = searchErr.Error()
		job.Result = nil
	} else {
		job.Status = StatusFinished
		if articles == nil {
			articles = []domain.Article{}
		}
		job.Result = articles
	}

	// the outcome is stored even when shutdown cancelled the search
	saveCtx := context.WithoutCancel(ctx)
	if err := r.backend.Save(saveCtx, job); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	r.log.InfoObj("job done", "job", map[string]any{
		"id":             job.ID,
		"status":         job.Status,
		"number_of_news": len(job.Result),
		"elapsed_ms":     ended.Sub(started).Milliseconds(),
	})

	if r.notifier != nil {
		if err := r.notifier.JobDone(saveCtx, job); err != nil {
			r.log.WarnObj("job notification failed", "error", err)
		}
	}
	return nil
}
