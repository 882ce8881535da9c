package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Implementations keep cookies between calls, so one Client is one browser session.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	PostForm(ctx context.Context, url string, form map[string]string, headers map[string]string) (Response, error)
}

// Factory opens a new, empty session. Each job gets its own.
type Factory func() Client
