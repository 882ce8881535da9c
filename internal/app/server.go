package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/api"
	"github.com/opennews-pt/pt-news-extractor/internal/config"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the REST API runtime. With the bbolt backend the queue lives in
// this process, so it also runs the worker pool.
type Server struct {
	rt     *runtime
	http   *http.Server
	worker *Worker
}

// NewServer builds the API runtime from config.
func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Server, error) {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	handler := api.NewServer(rt.backend, rt.providerReg, api.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		Log:           rt.log,
	}).Handler()

	s := &Server{
		rt: rt,
		http: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.JobBackend == config.BackendBBolt {
		w, err := newWorker(ctx, rt)
		if err != nil {
			rt.closeBackend()
			return nil, err
		}
		s.worker = w
	}
	return s, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s == nil || s.http == nil {
		return fmt.Errorf("server is not initialized")
	}
	defer s.rt.closeBackend()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var wg sync.WaitGroup
	if s.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.worker.Run(workerCtx); err != nil {
				s.rt.log.ErrorObj("embedded worker failed", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		s.rt.log.InfoObj("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.rt.log.InfoObj("shutdown signal received", "reason", ctx.Err())
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.rt.log.ErrorObj("http server shutdown error", "error", err)
	}

	stopWorker()
	wg.Wait()
	return runErr
}
