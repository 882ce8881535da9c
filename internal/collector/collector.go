// Package collector walks publisher listing endpoints and gathers the
// article URLs published inside a date window.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/opennews-pt/pt-news-extractor/internal/dates"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

// DefaultMaxPages bounds a single query when no limit is configured.
const DefaultMaxPages = 500

// PageParseError reports a listing page that could not be decoded. It ends
// the current query only.
type PageParseError struct {
	URL string
	Err error
}

func (e *PageParseError) Error() string {
	return fmt.Sprintf("parse listing page %s: %v", e.URL, e.Err)
}

func (e *PageParseError) Unwrap() error { return e.Err }

// DateLookup resolves the publish date of an article for listings that do
// not carry one. ok is false when the article is unsupported.
type DateLookup func(ctx context.Context, url string) (published time.Time, ok bool, err error)

// Collector paginates over one provider's endpoints.
type Collector struct {
	client   httpclient.Client
	provider providers.Provider
	lookup   DateLookup
	maxPages int
	log      logger.Logger
}

// Option customizes a Collector.
type Option func(*Collector)

// WithDateLookup sets the resolver used for undated listings.
func WithDateLookup(fn DateLookup) Option {
	return func(c *Collector) { c.lookup = fn }
}

// WithMaxPages caps the number of pages fetched per query.
func WithMaxPages(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Collector) { c.log = logger.Ensure(log) }
}

// New builds a Collector for prov that fetches through client.
func New(client httpclient.Client, prov providers.Provider, opts ...Option) *Collector {
	c := &Collector{
		client:   client,
		provider: prov,
		maxPages: DefaultMaxPages,
		log:      logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type item struct {
	url   string
	date  time.Time
	dated bool
}

// Collect runs every query against the named endpoint and returns the
// in-window URLs, deduplicated in first-seen order.
//
// For endpoints marked Descending, the first item older than start ends the
// query. Prefiltered endpoints are trusted to apply the window themselves.
func (c *Collector) Collect(ctx context.Context, endpoint string, queries []string, start, end time.Time) ([]string, error) {
	ep, ok := c.provider.Endpoint(endpoint)
	if !ok {
		return nil, fmt.Errorf("provider %s has no %s endpoint", c.provider.ID, endpoint)
	}
	if !ep.Prefiltered && !ep.Dated() && c.lookup == nil {
		return nil, fmt.Errorf("provider %s %s endpoint lists no dates and no date lookup is set", c.provider.ID, endpoint)
	}

	start, end = dates.Day(start), dates.Day(end)

	var collected []string
	for _, q := range queries {
		urls, err := c.collectQuery(ctx, ep, q, start, end)
		collected = append(collected, urls...)
		if err != nil {
			var pErr *PageParseError
			if !errors.As(err, &pErr) {
				return nil, err
			}
			c.log.WarnObj("listing page unreadable, query aborted", "collect", map[string]any{
				"provider": c.provider.ID,
				"endpoint": endpoint,
				"query":    q,
				"error":    err.Error(),
			})
		}
	}
	return domain.Dedup(collected), nil
}

func (c *Collector) collectQuery(ctx context.Context, ep providers.Endpoint, query string, start, end time.Time) ([]string, error) {
	var out []string
	index := ep.FirstIndex

	for page := 0; ; page++ {
		if page >= c.maxPages {
			c.log.WarnObj("page limit reached", "collect", map[string]any{
				"provider":  c.provider.ID,
				"query":     query,
				"max_pages": c.maxPages,
			})
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		pageURL := ep.PageURL(query, index, start, end)
		resp, err := c.client.Get(ctx, pageURL, nil)
		if err != nil {
			return out, fmt.Errorf("fetch listing %s: %w", pageURL, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return out, fmt.Errorf("listing %s returned status %d body: %s", pageURL, resp.StatusCode(), providers.ResponseSnippet(resp.Body()))
		}

		body := resp.Body()
		if ep.IsSentinel(body) {
			return out, nil
		}

		items, err := c.parsePage(ep, body)
		if err != nil {
			return out, &PageParseError{URL: pageURL, Err: err}
		}
		if len(items) == 0 {
			return out, nil
		}
		c.log.DebugObj("listing page", "page", map[string]any{
			"url":   pageURL,
			"items": len(items),
		})

		halt := false
		for _, it := range items {
			if ep.Prefiltered {
				out = append(out, it.url)
				continue
			}

			published, ok, err := c.dateOf(ctx, it)
			if err != nil {
				return out, err
			}
			if !ok {
				continue
			}
			day := dates.Day(published)
			if day.Before(start) {
				if ep.Descending {
					halt = true
					break
				}
				continue
			}
			if day.After(end) {
				continue
			}
			out = append(out, it.url)
		}
		if halt {
			return out, nil
		}
		index += ep.Step
	}
}

func (c *Collector) dateOf(ctx context.Context, it item) (time.Time, bool, error) {
	if it.dated {
		return it.date, true, nil
	}
	if c.lookup == nil {
		return time.Time{}, false, nil
	}
	published, ok, err := c.lookup(ctx, it.url)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("resolve date of %s: %w", it.url, err)
	}
	return published, ok, nil
}

func (c *Collector) parsePage(ep providers.Endpoint, body []byte) ([]item, error) {
	switch ep.Format {
	case providers.FormatJSON:
		return c.parseJSON(ep, body)
	case providers.FormatHTML:
		return c.parseHTML(ep, body)
	default:
		return nil, fmt.Errorf("unsupported listing format %q", ep.Format)
	}
}

func (c *Collector) parseJSON(ep providers.Endpoint, body []byte) ([]item, error) {
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	items := make([]item, 0, len(raw))
	for _, entry := range raw {
		u, _ := entry[ep.ItemURLField].(string)
		if u = strings.TrimSpace(u); u == "" {
			continue
		}
		it := item{url: c.provider.Absolute(u)}
		if ep.Dated() {
			rawDate, _ := entry[ep.ItemDateField].(string)
			published, err := dates.Parse(rawDate, dates.YMD)
			if err != nil {
				c.log.DebugObj("listing item without a usable date", "item", map[string]any{
					"url":   u,
					"error": err.Error(),
				})
				continue
			}
			it.date, it.dated = published, true
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *Collector) parseHTML(ep providers.Endpoint, body []byte) ([]item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var items []item
	doc.Find(ep.ItemSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr(ep.ItemAttr)
		if href = strings.TrimSpace(href); !ok || href == "" {
			return
		}
		if ep.StripSuffix != "" {
			if idx := strings.Index(href, ep.StripSuffix); idx >= 0 {
				href = href[:idx]
			}
		}
		items = append(items, item{url: c.provider.Absolute(href)})
	})
	return items, nil
}
