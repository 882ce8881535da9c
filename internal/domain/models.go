package domain

import (
	"fmt"
	"strings"
	"time"
)

// Domain contains core models and interfaces.

// Publisher identifies a supported newspaper.
type Publisher string

const (
	Publico Publisher = "publico"
	CM      Publisher = "cm"
)

// Publishers lists every supported publisher in a stable order.
func Publishers() []Publisher {
	return []Publisher{Publico, CM}
}

// ParsePublisher maps a path segment onto a known publisher.
func ParsePublisher(raw string) (Publisher, error) {
	p := Publisher(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Publishers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPublisher, raw)
}

// Article is a single scraped news article.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Section     string    `json:"rubric"`
	PublishedAt time.Time `json:"published_at"`
	Authors     []string  `json:"authors"`
	IsOpinion   bool      `json:"is_opinion"`
	BodyText    string    `json:"text"`
}

// UnsupportedArticle explains why a URL or page cannot produce an Article.
type UnsupportedArticle struct {
	URL    string
	Reason string
}

func (u *UnsupportedArticle) String() string {
	if u == nil {
		return ""
	}
	if u.URL == "" {
		return u.Reason
	}
	return u.URL + ": " + u.Reason
}

// Unsupported is a shorthand constructor used by the parser and validator.
func Unsupported(url, format string, args ...any) *UnsupportedArticle {
	return &UnsupportedArticle{URL: url, Reason: fmt.Sprintf(format, args...)}
}
