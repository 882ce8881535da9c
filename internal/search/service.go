// Package search runs the URL, tag and keyword searches of one job.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/collector"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/internal/scraper"
	"github.com/opennews-pt/pt-news-extractor/internal/validator"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

const maxHTMLBodyBytes = 8 << 20 // 8 MiB

// Options tune a Service.
type Options struct {
	MaxPages int
	Log      logger.Logger
}

// Service coordinates validation, fetching and parsing for one publisher
// session. It is not shared between jobs.
type Service struct {
	publisher domain.Publisher
	client    httpclient.Client
	checker   URLChecker
	parser    PageParser
	collector URLCollector
	log       logger.Logger
}

// NewService wires a search service for pub on top of a job session.
func NewService(pub domain.Publisher, reg *providers.Registry, client httpclient.Client, opts Options) (*Service, error) {
	prov, ok := reg.Get(pub)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPublisher, pub)
	}
	s := &Service{
		publisher: pub,
		client:    client,
		checker:   validator.New(reg, client).ForPublisher(pub),
		parser:    scraper.NewParser(reg, client).ForPublisher(pub),
		log:       logger.Ensure(opts.Log),
	}
	s.collector = collector.New(client, prov,
		collector.WithDateLookup(s.publishedAt),
		collector.WithMaxPages(opts.MaxPages),
		collector.WithLogger(s.log),
	)
	return s, nil
}

// Run dispatches req to the matching entry point.
func (s *Service) Run(ctx context.Context, req domain.SearchRequest) ([]domain.Article, error) {
	switch req.Kind {
	case domain.KindURL:
		if req.URL == nil {
			return nil, fmt.Errorf("url search without urls")
		}
		return s.URLSearch(ctx, req.URL.URLs)
	case domain.KindTag:
		if req.Tag == nil {
			return nil, fmt.Errorf("tag search without tags")
		}
		return s.TagSearch(ctx, *req.Tag)
	case domain.KindKeyword:
		if req.Keyword == nil {
			return nil, fmt.Errorf("keyword search without keywords")
		}
		return s.KeywordSearch(ctx, *req.Keyword)
	default:
		return nil, fmt.Errorf("unknown search kind %q", req.Kind)
	}
}

// TagSearch collects URLs from the tag listings and builds their articles.
func (s *Service) TagSearch(ctx context.Context, req domain.TagSearch) ([]domain.Article, error) {
	listing := req.Listing
	if listing == "" {
		listing = providers.EndpointTag
	}
	urls, err := s.collector.Collect(ctx, listing, req.Tags, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%s tag search: %w", s.publisher, err)
	}
	return s.URLSearch(ctx, urls)
}

// KeywordSearch collects URLs from the free-text search and builds their articles.
func (s *Service) KeywordSearch(ctx context.Context, req domain.KeywordSearch) ([]domain.Article, error) {
	urls, err := s.collector.Collect(ctx, providers.EndpointKeyword, req.Keywords, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%s keyword search: %w", s.publisher, err)
	}
	return s.URLSearch(ctx, urls)
}

// URLSearch validates, fetches and parses every URL in order. Unsupported
// URLs are logged and skipped; no date filtering happens here.
func (s *Service) URLSearch(ctx context.Context, urls []string) ([]domain.Article, error) {
	articles := make([]domain.Article, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))

	for _, u := range domain.Dedup(urls) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		unsupported, err := s.checker.Check(ctx, u)
		if err != nil {
			return nil, err
		}
		if unsupported != nil {
			s.logSkip(unsupported)
			continue
		}

		out, err := s.fetchAndParse(ctx, u)
		if err != nil {
			return nil, err
		}
		if out.Unsupported != nil {
			s.logSkip(out.Unsupported)
			continue
		}
		if _, dup := seen[out.Article.URL]; dup {
			continue
		}
		seen[out.Article.URL] = struct{}{}
		articles = append(articles, *out.Article)
	}

	s.log.InfoObj("url search completed", "search_result", map[string]any{
		"publisher":      s.publisher,
		"urls":           len(urls),
		"articles_built": len(articles),
	})
	return articles, nil
}

func (s *Service) fetchAndParse(ctx context.Context, u string) (scraper.Outcome, error) {
	resp, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return scraper.Outcome{}, fmt.Errorf("http fetch %s: %w", u, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return scraper.Outcome{Unsupported: domain.Unsupported(u, "status %d", resp.StatusCode())}, nil
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		return scraper.Outcome{Unsupported: domain.Unsupported(u, "page of %d bytes exceeds the %d byte limit", len(body), maxHTMLBodyBytes)}, nil
	}
	out, err := s.parser.Parse(ctx, body)
	if err != nil {
		return scraper.Outcome{}, fmt.Errorf("parse %s: %w", u, err)
	}
	if out.Unsupported != nil && out.Unsupported.URL == "" {
		out.Unsupported.URL = u
	}
	return out, nil
}

// publishedAt resolves dates for listings that do not carry them by reading
// the article itself.
func (s *Service) publishedAt(ctx context.Context, u string) (time.Time, bool, error) {
	out, err := s.fetchAndParse(ctx, u)
	if err != nil {
		return time.Time{}, false, err
	}
	if out.Unsupported != nil {
		s.logSkip(out.Unsupported)
		return time.Time{}, false, nil
	}
	return out.Article.PublishedAt, true, nil
}

func (s *Service) logSkip(u *domain.UnsupportedArticle) {
	s.log.DebugObj("article skipped", "skip", map[string]any{
		"publisher": s.publisher,
		"url":       u.URL,
		"reason":    u.Reason,
	})
}
