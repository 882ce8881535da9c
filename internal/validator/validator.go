// Package validator decides whether a URL is a supported, fetchable article.
package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

// ErrArticleIDNotFound is returned when a URL path carries no numeric article id.
var ErrArticleIDNotFound = errors.New("article id not found")

// Validator checks URLs against the provider rule tables and the network.
type Validator struct {
	providers *providers.Registry
	client    httpclient.Client
	publisher domain.Publisher
}

// New builds a Validator that issues its requests through client. It accepts
// the hosts of every registered publisher until bound with ForPublisher.
func New(reg *providers.Registry, client httpclient.Client) *Validator {
	return &Validator{providers: reg, client: client}
}

// ForPublisher returns a copy of v that only accepts hosts of pub.
func (v *Validator) ForPublisher(pub domain.Publisher) *Validator {
	bound := *v
	bound.publisher = pub
	return &bound
}

// IsSupported reports whether rawURL can be scraped. Network errors are returned.
func (v *Validator) IsSupported(ctx context.Context, rawURL string) (bool, error) {
	skip, err := v.Check(ctx, rawURL)
	if err != nil {
		return false, err
	}
	return skip == nil, nil
}

// Check is IsSupported with the reason a URL was rejected.
func (v *Validator) Check(ctx context.Context, rawURL string) (*domain.UnsupportedArticle, error) {
	prov, skip := CheckStatic(v.providers, v.publisher, rawURL)
	if skip != nil {
		return skip, nil
	}

	if prov.SummaryAPI != "" {
		id, err := ExtractArticleID(rawURL)
		if err != nil {
			return domain.Unsupported(rawURL, "no article id in path"), nil
		}
		ok, err := v.answersOK(ctx, prov.SummaryURL(id))
		if err != nil {
			return nil, fmt.Errorf("summary lookup for %s: %w", rawURL, err)
		}
		if !ok {
			return domain.Unsupported(rawURL, "summary api has no entry for id %s", id), nil
		}
	}

	ok, err := v.answersOK(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if !ok {
		return domain.Unsupported(rawURL, "article did not answer 200"), nil
	}
	return nil, nil
}

func (v *Validator) answersOK(ctx context.Context, target string) (bool, error) {
	resp, err := v.client.Get(ctx, target, nil)
	if err != nil {
		return false, err
	}
	return resp.StatusCode() == http.StatusOK, nil
}

// CheckStatic applies the rules that need no network access: the host must
// belong to pub's provider (any provider when pub is empty) and the path must
// not hit its denylist.
func CheckStatic(reg *providers.Registry, pub domain.Publisher, rawURL string) (providers.Provider, *domain.UnsupportedArticle) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return providers.Provider{}, domain.Unsupported(rawURL, "malformed url")
	}
	prov, ok := reg.ForHost(u.Host)
	if pub != "" {
		prov, ok = reg.Get(pub)
		if ok && !prov.HasHost(u.Host) {
			return providers.Provider{}, domain.Unsupported(rawURL, "host %s does not belong to %s", u.Host, pub)
		}
	}
	if !ok {
		return providers.Provider{}, domain.Unsupported(rawURL, "unknown host %s", u.Host)
	}
	if d, denied := prov.DeniedBy(u.Path); denied {
		return prov, domain.Unsupported(rawURL, "%s content is not supported", d)
	}
	return prov, nil
}

// ExtractArticleID returns the trailing "-<digits>" token of the URL path.
func ExtractArticleID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArticleIDNotFound, err)
	}
	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "-")
	if idx < 0 {
		return "", ErrArticleIDNotFound
	}
	id := path[idx+1:]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q is not numeric", ErrArticleIDNotFound, id)
	}
	return id, nil
}
