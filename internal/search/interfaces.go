package search

import (
	"context"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/scraper"
)

// URLChecker decides whether a URL is worth fetching.
type URLChecker interface {
	Check(ctx context.Context, rawURL string) (*domain.UnsupportedArticle, error)
}

// PageParser turns a fetched page into an article or a skip.
type PageParser interface {
	Parse(ctx context.Context, page []byte) (scraper.Outcome, error)
}

// URLCollector gathers candidate URLs from listing endpoints.
type URLCollector interface {
	Collect(ctx context.Context, endpoint string, queries []string, start, end time.Time) ([]string, error)
}
