// Package scraper turns article pages into domain.Article values.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/opennews-pt/pt-news-extractor/internal/dates"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/validator"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

// Outcome is the result of parsing one page: exactly one field is set.
type Outcome struct {
	Article     *domain.Article
	Unsupported *domain.UnsupportedArticle
}

func skip(rawURL, format string, args ...any) Outcome {
	return Outcome{Unsupported: domain.Unsupported(rawURL, format, args...)}
}

// Parser extracts articles using the per-host rulesets. The client is only
// used for the Público summary API.
type Parser struct {
	providers *providers.Registry
	client    httpclient.Client
	publisher domain.Publisher
}

// NewParser builds a Parser bound to a job session.
func NewParser(reg *providers.Registry, client httpclient.Client) *Parser {
	return &Parser{providers: reg, client: client}
}

// ForPublisher returns a copy of p that rejects pages whose canonical URL is
// not on one of pub's hosts.
func (p *Parser) ForPublisher(pub domain.Publisher) *Parser {
	bound := *p
	bound.publisher = pub
	return &bound
}

// Parse reads one article page. Pages that cannot produce a complete Article
// yield Outcome.Unsupported; the error is reserved for failures that should
// abort the job (network errors, cancelled context).
func (p *Parser) Parse(ctx context.Context, page []byte) (Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return skip("", "unparsable html: %v", err), nil
	}

	canonical, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content")
	canonical = strings.TrimSpace(canonical)
	if !ok || canonical == "" {
		return skip("", "page has no og:url"), nil
	}

	prov, unsupported := validator.CheckStatic(p.providers, p.publisher, canonical)
	if unsupported != nil {
		return Outcome{Unsupported: unsupported}, nil
	}

	u, _ := url.Parse(canonical)
	if prov.SummaryAPI != "" {
		return p.parseWithSummary(ctx, prov, doc, canonical)
	}
	rs, ok := RulesetFor(strings.ToLower(u.Host))
	if !ok {
		return skip(canonical, "no ruleset for host %s", u.Host), nil
	}
	return parseHTML(doc, rs, canonical, u), nil
}

func parseHTML(doc *goquery.Document, rs Ruleset, canonical string, u *url.URL) Outcome {
	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	section := capitalize(segments[0])
	if section == "" {
		return skip(canonical, "no section in path")
	}
	isOpinion := section == "Opiniao"

	descSel := rs.Description
	if isOpinion {
		descSel = rs.OpinionDescription
	}
	descNode := doc.Find(descSel).First()
	if descNode.Length() == 0 {
		return skip(canonical, "missing description (%s)", descSel)
	}

	dateNode := doc.Find(rs.Date).First()
	if dateNode.Length() == 0 {
		return skip(canonical, "missing date (%s)", rs.Date)
	}
	rawDate := strings.ReplaceAll(dateNode.Text(), rs.DateStrip, "")
	published, err := dates.Parse(rawDate, rs.DateOrder)
	if err != nil {
		return skip(canonical, "%v", err)
	}

	title := normalize(doc.Find(rs.Title).First().Text())
	if title == "" {
		return skip(canonical, "missing title (%s)", rs.Title)
	}

	authors := []string{}
	doc.Find(rs.Authors).Each(func(_ int, s *goquery.Selection) {
		if name := normalize(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	body := textWalk{exclude: rs.BodyExclude}.collect(doc.Find(rs.Body))

	return Outcome{Article: &domain.Article{
		Title:       title,
		Description: normalize(descNode.Text()),
		URL:         canonical,
		Section:     section,
		PublishedAt: published,
		Authors:     authors,
		IsOpinion:   isOpinion,
		BodyText:    CleanBody(strings.Join(body, " ")),
	}}
}

type summaryAuthor struct {
	Nome *string `json:"nome"`
}

// summary mirrors the fields read from the Público content API.
type summary struct {
	Titulo    *string         `json:"titulo"`
	Descricao *string         `json:"descricao"`
	IsOpiniao *bool           `json:"isOpiniao"`
	Autores   []summaryAuthor `json:"autores"`
	Seccao    *string         `json:"seccao"`
	Data      *string         `json:"data"`
}

func (p *Parser) parseWithSummary(ctx context.Context, prov providers.Provider, doc *goquery.Document, canonical string) (Outcome, error) {
	id, err := validator.ExtractArticleID(canonical)
	if err != nil {
		return skip(canonical, "%v", err), nil
	}

	if doc.Find(publicoLiveLabel).Length() > 0 {
		return skip(canonical, "live article"), nil
	}

	resp, err := p.client.Get(ctx, prov.SummaryURL(id), nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("summary %s: %w", id, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return skip(canonical, "summary api returned status %d", resp.StatusCode()), nil
	}

	var meta *summary
	if err := json.Unmarshal(resp.Body(), &meta); err != nil {
		return skip(canonical, "decode summary: %v", err), nil
	}
	if meta == nil {
		return skip(canonical, "summary api has no data"), nil
	}

	switch {
	case meta.Titulo == nil || normalize(*meta.Titulo) == "":
		return skip(canonical, "summary missing titulo"), nil
	case meta.IsOpiniao == nil:
		return skip(canonical, "summary missing isOpiniao"), nil
	case meta.Autores == nil:
		return skip(canonical, "summary missing autores"), nil
	case meta.Seccao == nil:
		return skip(canonical, "summary missing seccao"), nil
	case meta.Data == nil:
		return skip(canonical, "summary missing data"), nil
	}

	published, err := dates.Parse(*meta.Data, dates.YMD)
	if err != nil {
		return skip(canonical, "%v", err), nil
	}

	// Público omits the lead on some pieces; a single space has always been
	// stored in that case.
	description := " "
	if meta.Descricao != nil {
		description = normalize(*meta.Descricao)
	}

	authors := make([]string, 0, len(meta.Autores))
	for _, a := range meta.Autores {
		if a.Nome == nil {
			continue
		}
		if name := normalize(*a.Nome); name != "" {
			authors = append(authors, name)
		}
	}

	body := textWalk{keep: publicoBodyKeep, exclude: publicoBodyExclude}.collect(doc.Find(publicoBody))

	return Outcome{Article: &domain.Article{
		Title:       normalize(*meta.Titulo),
		Description: description,
		URL:         canonical,
		Section:     strings.TrimSpace(*meta.Seccao),
		PublishedAt: published,
		Authors:     authors,
		IsOpinion:   *meta.IsOpiniao,
		BodyText:    CleanBody(strings.Join(body, " ")),
	}}, nil
}
