package session

import (
	"context"

	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
)

// WithHeaders decorates client so every request carries defaults. Headers
// passed per call take precedence.
func WithHeaders(client httpclient.Client, defaults map[string]string) httpclient.Client {
	if len(defaults) == 0 {
		return client
	}
	return &headerClient{inner: client, defaults: defaults}
}

type headerClient struct {
	inner    httpclient.Client
	defaults map[string]string
}

func (c *headerClient) merge(headers map[string]string) map[string]string {
	out := make(map[string]string, len(c.defaults)+len(headers))
	for k, v := range c.defaults {
		out[k] = v
	}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

func (c *headerClient) Get(ctx context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	return c.inner.Get(ctx, url, c.merge(headers))
}

func (c *headerClient) PostForm(ctx context.Context, url string, form map[string]string, headers map[string]string) (httpclient.Response, error) {
	return c.inner.PostForm(ctx, url, form, c.merge(headers))
}
