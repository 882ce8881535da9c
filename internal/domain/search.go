package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	MaxURLsPerSearch    = 50
	MaxQueriesPerSearch = 5
	MaxSearchSpan       = 90 * 24 * time.Hour
)

// ErrUnknownPublisher is returned for publishers without a rule table.
var ErrUnknownPublisher = errors.New("unknown publisher")

// ValidationError reports a request that must be rejected before a job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SearchKind names the search entry point a job runs.
type SearchKind string

const (
	KindURL     SearchKind = "url_search"
	KindTag     SearchKind = "tag_search"
	KindKeyword SearchKind = "keyword_search"
)

// URLSearch asks for an explicit list of article URLs.
type URLSearch struct {
	URLs []string `json:"urls"`
}

// DateRange bounds tag and keyword searches. Both ends are inclusive calendar days.
type DateRange struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// TagSearch queries publisher topic listings. Listing names an alternative
// tag-style listing endpoint; empty means the default one.
type TagSearch struct {
	Tags    []string `json:"tags"`
	Listing string   `json:"listing,omitempty"`
	DateRange
}

// KeywordSearch queries the publisher free-text search endpoint.
type KeywordSearch struct {
	Keywords []string `json:"keywords"`
	DateRange
}

// SearchRequest is the payload handed to a job. Exactly one of the
// pointer fields is set, matching Kind.
type SearchRequest struct {
	Kind    SearchKind     `json:"kind"`
	URL     *URLSearch     `json:"url,omitempty"`
	Tag     *TagSearch     `json:"tag,omitempty"`
	Keyword *KeywordSearch `json:"keyword,omitempty"`
}

// NewURLSearch deduplicates urls (first occurrence wins) and validates the result.
func NewURLSearch(urls []string) (SearchRequest, error) {
	cleaned := make([]string, 0, len(urls))
	for i, raw := range urls {
		u := strings.TrimSpace(raw)
		if err := validateURL(u); err != nil {
			return SearchRequest{}, invalid("urls", "invalid URL at position %d: %v", i, err)
		}
		cleaned = append(cleaned, u)
	}
	cleaned = Dedup(cleaned)

	if len(cleaned) == 0 {
		return SearchRequest{}, invalid("urls", "at least one URL is required")
	}
	if len(cleaned) > MaxURLsPerSearch {
		return SearchRequest{}, invalid("urls", "too many URLs to search, please provide up to %d", MaxURLsPerSearch)
	}
	return SearchRequest{Kind: KindURL, URL: &URLSearch{URLs: cleaned}}, nil
}

// NewTagSearch validates tags and the date window.
func NewTagSearch(tags []string, start, end time.Time) (SearchRequest, error) {
	cleaned, err := cleanQueries("tags", tags)
	if err != nil {
		return SearchRequest{}, err
	}
	rng, err := NewDateRange(start, end)
	if err != nil {
		return SearchRequest{}, err
	}
	return SearchRequest{Kind: KindTag, Tag: &TagSearch{Tags: cleaned, DateRange: rng}}, nil
}

// NewKeywordSearch validates keywords and the date window.
func NewKeywordSearch(keywords []string, start, end time.Time) (SearchRequest, error) {
	cleaned, err := cleanQueries("keywords", keywords)
	if err != nil {
		return SearchRequest{}, err
	}
	rng, err := NewDateRange(start, end)
	if err != nil {
		return SearchRequest{}, err
	}
	return SearchRequest{Kind: KindKeyword, Keyword: &KeywordSearch{Keywords: cleaned, DateRange: rng}}, nil
}

// NewDateRange enforces end > start and a span of at most 90 days.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if !end.After(start) {
		return DateRange{}, invalid("end_date", "end_date must be greater than start_date")
	}
	if end.Sub(start) > MaxSearchSpan {
		return DateRange{}, invalid("end_date", "please limit your date range to no more than 90 days")
	}
	return DateRange{StartDate: start, EndDate: end}, nil
}

// Contains reports whether t falls on a day inside the inclusive range.
func (r DateRange) Contains(t time.Time) bool {
	day := truncateDay(t)
	return !day.Before(r.StartDate) && !day.After(r.EndDate)
}

// Dedup removes repeated strings keeping the first occurrence order.
func Dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cleanQueries(field string, queries []string) ([]string, error) {
	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(strings.ReplaceAll(q, "\n", ""))
		if q == "" {
			continue
		}
		cleaned = append(cleaned, q)
	}
	cleaned = Dedup(cleaned)
	if len(cleaned) == 0 {
		return nil, invalid(field, "at least one entry is required")
	}
	if len(cleaned) > MaxQueriesPerSearch {
		return nil, invalid(field, "at most %d entries are allowed", MaxQueriesPerSearch)
	}
	return cleaned, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
