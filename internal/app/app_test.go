package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennews-pt/pt-news-extractor/internal/api"
	"github.com/opennews-pt/pt-news-extractor/internal/config"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/jobs"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/pkg/notifiers"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

const cmArticle = `<html><head><meta property="og:url" content="https://www.cmjornal.pt%s"></head><body>
<div class="centro"><h1>%s</h1></div><strong class="lead">Lead</strong>
<span class="data">09/03/2021 às 09:00</span><span class="autor">Redação</span>
<div class="texto_container paywall"><p>Corpo.</p></div></body></html>`

func TestJobEvent(t *testing.T) {
	ended := time.Date(2021, 3, 9, 10, 0, 0, 0, time.UTC)
	job := jobs.Job{
		ID:        "j1",
		Publisher: domain.CM,
		Kind:      domain.KindTag,
		Status:    jobs.StatusFailed,
		ExcInfo:   "boom",
		EndedAt:   &ended,
	}
	evt := jobEvent(job, "https://api.example.pt")
	assert.Equal(t, notifiers.EventJobFailed, evt.Type)
	assert.Equal(t, "cm", evt.Publisher)
	assert.Equal(t, "tag_search", evt.Kind)
	assert.Equal(t, "boom", evt.ExcInfo)
	assert.Equal(t, ended, evt.DateDone)
	assert.Equal(t, "https://api.example.pt/news/results/j1", evt.ResultsURL)

	job.Status = jobs.StatusFinished
	job.ExcInfo = ""
	job.Result = []domain.Article{{}, {}}
	evt = jobEvent(job, "")
	assert.Equal(t, notifiers.EventJobFinished, evt.Type)
	assert.Equal(t, 2, evt.NumberOfNews)
	assert.Empty(t, evt.ResultsURL)
}

func TestBackendConfigFromSettings(t *testing.T) {
	cfg := &config.Config{
		JobBackend:         config.BackendRedis,
		RedisAddr:          "redis:6379",
		RedisPrefix:        "px",
		JobResultTTL:       time.Hour,
		JobTimeout:         time.Minute,
		JobCleanupInterval: time.Second,
	}
	bc := backendConfig(cfg)
	assert.Equal(t, jobs.BackendRedis, bc.Type)
	assert.Equal(t, "redis:6379", bc.Redis.Addr)
	assert.Equal(t, "px", bc.Redis.Prefix)
	assert.Equal(t, time.Hour, bc.Retention.ResultTTL)
	assert.Equal(t, 2*time.Minute, bc.Retention.ActiveTTL)
}

// TestURLSearchPipeline drives a request from the API through the worker
// pool and the notifier fan-out against a stand-in CM site.
func TestURLSearchPipeline(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/economia/detalhe/a":
			fmt.Fprintf(w, cmArticle, r.URL.Path, "A")
		case "/economia/detalhe/b":
			fmt.Fprintf(w, cmArticle, r.URL.Path, "B")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer site.Close()

	events := make(chan notifiers.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt notifiers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			events <- evt
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	dir := t.TempDir()
	notifiersFile := filepath.Join(dir, "notifiers.yaml")
	require.NoError(t, os.WriteFile(notifiersFile, []byte(fmt.Sprintf(`
notifiers:
  - id: hook
    type: http
    http:
      url: "%s"
`, hook.URL)), 0o644))

	siteURL, err := url.Parse(site.URL)
	require.NoError(t, err)
	reg, err := providers.NewRegistry(providers.Provider{
		ID:       "cm",
		Name:     "CM",
		BaseURL:  site.URL,
		Hosts:    []string{siteURL.Host, "www.cmjornal.pt"},
		Denylist: []string{"multimedia"},
	})
	require.NoError(t, err)

	backend, err := jobs.OpenBolt(filepath.Join(dir, "jobs.db"), jobs.Options{})
	require.NoError(t, err)

	cfg := &config.Config{
		JobBackend:    config.BackendBBolt,
		NotifiersFile: notifiersFile,
		PublicBaseURL: "https://api.example.pt",
		JobResultTTL:  time.Hour,
		JobTimeout:    time.Minute,
		HTTPTimeout:   5 * time.Second,
		WorkerCount:   1,
		MaxPages:      10,
	}
	rt := &runtime{cfg: cfg, providerReg: reg, backend: backend, log: logger.NopLogger{}}
	defer rt.closeBackend()

	worker, err := newWorker(context.Background(), rt)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	handler := api.NewServer(backend, reg, api.Options{PublicBaseURL: cfg.PublicBaseURL}).Handler()
	body := fmt.Sprintf(`{"urls": ["%[1]s/economia/detalhe/a", "%[1]s/multimedia/detalhe/x", "%[1]s/economia/detalhe/b"]}`, site.URL)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/news/cm/", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var queued api.EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))

	select {
	case evt := <-events:
		assert.Equal(t, queued.JobID, evt.JobID)
		assert.Equal(t, "finished", evt.Status)
		assert.Equal(t, 2, evt.NumberOfNews)
		assert.Equal(t, queued.ResultsURL, evt.ResultsURL)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for job notification")
	}
	cancel()
	require.NoError(t, <-done)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news/results/"+queued.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		NumberOfNews int              `json:"number_of_news"`
		News         []domain.Article `json:"news"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 2, result.NumberOfNews)
	assert.Equal(t, "A", result.News[0].Title)
	assert.Equal(t, "B", result.News[1].Title)
	assert.Equal(t, "https://www.cmjornal.pt/economia/detalhe/a", result.News[0].URL)
}
