package notifiers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

type httpNotifier struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

func newHTTPNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("notifier %q missing http configuration", cfg.ID)
	}

	client := httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second)

	return &httpNotifier{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  client,
		log:     ensureLogger(log),
	}, nil
}

func (h *httpNotifier) ID() string   { return h.id }
func (h *httpNotifier) Type() string { return TypeHTTP }
func (h *httpNotifier) Close() error { return nil }

func (h *httpNotifier) Notify(ctx context.Context, evt Event) error {
	req := h.client.R().
		SetContext(ctx).
		SetBody(evt)

	if len(h.headers) > 0 {
		req.SetHeaders(h.headers)
	}

	req.SetHeader("Content-Type", "application/json")

	resp, err := req.Execute(h.method, h.url)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), providers.ResponseSnippet(resp.Body()))
	}
	h.log.DebugObj("http notifier delivered event", "notifier_http_delivery", map[string]any{
		"notifier_id": h.id,
		"job_id":      evt.JobID,
	})
	return nil
}
