package app

import (
	"context"
	"fmt"

	"github.com/opennews-pt/pt-news-extractor/internal/config"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/jobs"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/internal/search"
	"github.com/opennews-pt/pt-news-extractor/internal/session"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/notifiers"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

// Worker runs queued search jobs until its context is cancelled.
type Worker struct {
	rt      *runtime
	runner  *jobs.Runner
	fanout  *notifiers.Fanout
	workers int
	ownsRT  bool
}

// NewWorker builds a standalone worker runtime from config.
func NewWorker(ctx context.Context, cfg *config.Config, log logger.Logger) (*Worker, error) {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	w, err := newWorker(ctx, rt)
	if err != nil {
		rt.closeBackend()
		return nil, err
	}
	w.ownsRT = true
	return w, nil
}

func newWorker(ctx context.Context, rt *runtime) (*Worker, error) {
	fanout, err := loadNotifiers(ctx, rt.cfg, rt.log)
	if err != nil {
		return nil, err
	}

	opener := session.NewOpener(
		httpclient.NewFactory(rt.cfg.HTTPTimeout),
		rt.providerReg,
		credentials(rt.cfg),
		rt.log,
	)
	runSearch := searchFunc(opener, rt.providerReg, search.Options{MaxPages: rt.cfg.MaxPages, Log: rt.log})

	runner := jobs.NewRunner(rt.backend, runSearch, jobs.RunnerOptions{
		Timeout:   rt.cfg.JobTimeout,
		ResultTTL: rt.cfg.JobResultTTL,
		Notifier:  jobNotifier{fanout: fanout, baseURL: rt.cfg.PublicBaseURL},
		Log:       rt.log,
	})

	return &Worker{
		rt:      rt,
		runner:  runner,
		fanout:  fanout,
		workers: rt.cfg.WorkerCount,
	}, nil
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.runner == nil {
		return fmt.Errorf("worker is not initialized")
	}
	defer w.close()

	w.rt.log.InfoObj("worker pool starting", "worker_state", map[string]any{
		"workers":         w.workers,
		"notifiers_count": w.fanout.Size(),
		"job_timeout":     w.rt.cfg.JobTimeout.String(),
	})
	err := w.runner.Run(ctx, w.workers)
	w.rt.log.InfoObj("worker pool exiting", "reason", ctx.Err())
	return err
}

func (w *Worker) close() {
	if err := w.fanout.Close(); err != nil {
		w.rt.log.ErrorObj("notifiers close failed", "error", err)
	}
	if w.ownsRT {
		w.rt.closeBackend()
	}
}

// searchFunc opens a fresh session per job and runs the requested search on it.
func searchFunc(opener *session.Opener, reg *providers.Registry, opts search.Options) jobs.SearchFunc {
	return func(ctx context.Context, pub domain.Publisher, req domain.SearchRequest) ([]domain.Article, error) {
		client, err := opener.Open(ctx, pub)
		if err != nil {
			return nil, fmt.Errorf("open %s session: %w", pub, err)
		}
		svc, err := search.NewService(pub, reg, client, opts)
		if err != nil {
			return nil, err
		}
		return svc.Run(ctx, req)
	}
}

func credentials(cfg *config.Config) map[domain.Publisher]session.Credentials {
	return map[domain.Publisher]session.Credentials{
		domain.Publico: {User: cfg.PublicoUser, Password: cfg.PublicoPW},
		domain.CM:      {User: cfg.CMUser, Password: cfg.CMPW},
	}
}
