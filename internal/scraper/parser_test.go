package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

type stubHTTPResponse struct {
	body       []byte
	statusCode int
}

func (s stubHTTPResponse) Body() []byte    { return s.body }
func (s stubHTTPResponse) StatusCode() int { return s.statusCode }

// stubHTTPClient serves canned bodies keyed by URL.
type stubHTTPClient struct {
	bodies map[string]string
	err    error
}

func (s stubHTTPClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.bodies[url]
	if !ok {
		return stubHTTPResponse{statusCode: 404}, nil
	}
	return stubHTTPResponse{body: []byte(body), statusCode: 200}, nil
}

func (s stubHTTPClient) PostForm(context.Context, string, map[string]string, map[string]string) (httpclient.Response, error) {
	return nil, errors.New("unexpected post")
}

const cmPage = `<html><head>
<meta property="og:url" content="https://www.cmjornal.pt/politica/detalhe/governo-aprova-orcamento">
</head><body>
<div class="centro"><section><h1> Governo aprova
 orçamento </h1></section></div>
<strong class="lead">O executivo aprovou hoje o documento.</strong>
<span class="data">15/03/2021 às 10:30</span>
<span class="autor">Ana Silva</span><span class="autor"> João Costa </span>
<div class="texto_container paywall">
  <p>Primeiro   parágrafo.</p>
  <aside><p>Leia também: outra notícia</p></aside>
  <div class="inContent">PUBLICIDADE</div>
  <blockquote>citação</blockquote>
  <p>Segundo parágrafo.\</p>
  <script>var x = 1;</script>
  <p>Para aceder a todos os Exclusivos CM assine já</p>
  <p>texto escondido</p>
</div>
</body></html>`

func TestParseCMArticle(t *testing.T) {
	p := NewParser(providers.Default(), stubHTTPClient{})
	out, err := p.Parse(context.Background(), []byte(cmPage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Unsupported != nil {
		t.Fatalf("unexpected skip: %s", out.Unsupported)
	}
	a := out.Article
	if a.Title != "Governo aprova orçamento" {
		t.Errorf("title %q", a.Title)
	}
	if a.Description != "O executivo aprovou hoje o documento." {
		t.Errorf("description %q", a.Description)
	}
	if a.Section != "Politica" || a.IsOpinion {
		t.Errorf("section %q opinion %v", a.Section, a.IsOpinion)
	}
	if !a.PublishedAt.Equal(time.Date(2021, time.March, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("published_at %v", a.PublishedAt)
	}
	if len(a.Authors) != 2 || a.Authors[1] != "João Costa" {
		t.Errorf("authors %v", a.Authors)
	}
	if a.BodyText != "Primeiro parágrafo. Segundo parágrafo." {
		t.Errorf("body %q", a.BodyText)
	}
}

func TestParseCMOpinionUsesOpinionLead(t *testing.T) {
	page := strings.NewReplacer(
		"/politica/", "/opiniao/",
		`<strong class="lead">O executivo aprovou hoje o documento.</strong>`, `<p class="destaques_lead">Uma opinião.</p>`,
	).Replace(cmPage)

	out, err := NewParser(providers.Default(), stubHTTPClient{}).Parse(context.Background(), []byte(page))
	if err != nil || out.Article == nil {
		t.Fatalf("expected article, got %+v %v", out, err)
	}
	if !out.Article.IsOpinion || out.Article.Section != "Opiniao" || out.Article.Description != "Uma opinião." {
		t.Fatalf("unexpected opinion article %+v", out.Article)
	}
}

func TestParseCMSkips(t *testing.T) {
	cases := map[string]string{
		"no og url":       strings.Replace(cmPage, `property="og:url"`, `property="og:title"`, 1),
		"denied type":     strings.Replace(cmPage, "/politica/", "/multimedia/", 1),
		"unknown host":    strings.Replace(cmPage, "www.cmjornal.pt", "www.expresso.pt", 1),
		"no description":  strings.Replace(cmPage, `class="lead"`, `class="other"`, 1),
		"no title":        strings.Replace(cmPage, `class="centro"`, `class="lado"`, 1),
		"bad date":        strings.Replace(cmPage, "15/03/2021 às 10:30", "ontem", 1),
		"opinion no lead": strings.Replace(cmPage, "/politica/", "/opiniao/", 1),
	}
	p := NewParser(providers.Default(), stubHTTPClient{})
	for name, page := range cases {
		out, err := p.Parse(context.Background(), []byte(page))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if out.Article != nil || out.Unsupported == nil {
			t.Fatalf("%s: expected skip, got %+v", name, out)
		}
	}
}

const vidasPage = `<html><head>
<meta property="og:url" content="https://www.vidas.pt/famosos/detalhe/casamento-do-ano">
</head><body>
<div class="centro"><h1>Casamento do ano</h1></div>
<div class="lead">Foi uma festa.</div>
<div class="data">02.11.2020 • 18:05</div>
<div class="autor">Vidas</div>
<div class="text_container"><p>Os noivos chegaram.</p><iframe>video</iframe><p>Ler o artigo completo</p></div>
</body></html>`

func TestParseVidasArticle(t *testing.T) {
	out, err := NewParser(providers.Default(), stubHTTPClient{}).Parse(context.Background(), []byte(vidasPage))
	if err != nil || out.Article == nil {
		t.Fatalf("expected article, got %+v %v", out.Unsupported, err)
	}
	a := out.Article
	if a.Section != "Famosos" || a.Description != "Foi uma festa." || a.BodyText != "Os noivos chegaram." {
		t.Fatalf("unexpected vidas article %+v", a)
	}
	if !a.PublishedAt.Equal(time.Date(2020, time.November, 2, 18, 5, 0, 0, time.UTC)) {
		t.Fatalf("published_at %v", a.PublishedAt)
	}
}

const (
	publicoURL     = "https://www.publico.pt/2021/01/31/politica/noticia/eleicoes-1948394"
	publicoSummary = "https://api.publico.pt/content/summary/scriptor_noticias/1948394"
)

const publicoPage = `<html><head>
<meta property="og:url" content="` + publicoURL + `">
</head><body>
<div class="story__body">
  <p>Os portugueses votaram.</p>
  <h2>Resultados</h2>
  <div class="inline-supplemental-slot"><p>Newsletter</p></div>
  <aside><p>Relacionado</p></aside>
  <blockquote>“Dia histórico”</blockquote>
  <div>texto solto fora de parágrafo</div>
  <p>Subscreva gratuitamente as newsletters e receba o melhor da actualidade e os trabalhos mais profundos do Público.</p>
  <p>Fim.</p>
</div>
</body></html>`

const publicoJSON = `{"titulo":"Eleições presidenciais","descricao":null,"isOpiniao":false,
"autores":[{"nome":"Maria Lopes"},{"nome":null}],"seccao":"Política","data":"2021-01-31T16:54:12"}`

func TestParsePublicoArticle(t *testing.T) {
	client := stubHTTPClient{bodies: map[string]string{publicoSummary: publicoJSON}}
	out, err := NewParser(providers.Default(), client).Parse(context.Background(), []byte(publicoPage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Article == nil {
		t.Fatalf("unexpected skip: %s", out.Unsupported)
	}
	a := out.Article
	if a.Title != "Eleições presidenciais" || a.Section != "Política" {
		t.Errorf("unexpected title/section %q %q", a.Title, a.Section)
	}
	if a.Description != " " {
		t.Errorf("null descricao must become a single space, got %q", a.Description)
	}
	if len(a.Authors) != 1 || a.Authors[0] != "Maria Lopes" {
		t.Errorf("authors %v", a.Authors)
	}
	if !a.PublishedAt.Equal(time.Date(2021, time.January, 31, 16, 54, 12, 0, time.UTC)) {
		t.Errorf("published_at %v", a.PublishedAt)
	}
	want := "Os portugueses votaram. Resultados “Dia histórico” Fim."
	if a.BodyText != want {
		t.Errorf("body\n got %q\nwant %q", a.BodyText, want)
	}
}

func TestParsePublicoSkips(t *testing.T) {
	live := strings.Replace(publicoPage, "<body>", `<body><span class="label label--live">Directo</span>`, 1)
	noID := strings.Replace(publicoPage, "eleicoes-1948394", "eleicoes", 1)

	cases := []struct {
		name   string
		page   string
		bodies map[string]string
	}{
		{"null summary", publicoPage, map[string]string{publicoSummary: "null"}},
		{"missing summary", publicoPage, map[string]string{}},
		{"live page", live, map[string]string{publicoSummary: publicoJSON}},
		{"no id", noID, map[string]string{publicoSummary: publicoJSON}},
		{"missing titulo", publicoPage, map[string]string{publicoSummary: `{"isOpiniao":true,"autores":[],"seccao":"x","data":"2021-01-31T16:54:12"}`}},
		{"bad date", publicoPage, map[string]string{publicoSummary: `{"titulo":"t","isOpiniao":true,"autores":[],"seccao":"x","data":"nunca"}`}},
	}
	for _, tc := range cases {
		out, err := NewParser(providers.Default(), stubHTTPClient{bodies: tc.bodies}).Parse(context.Background(), []byte(tc.page))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if out.Unsupported == nil {
			t.Fatalf("%s: expected skip, got %+v", tc.name, out.Article)
		}
	}
}

func TestParsePublicoPropagatesNetworkErrors(t *testing.T) {
	boom := errors.New("timeout")
	_, err := NewParser(providers.Default(), stubHTTPClient{err: boom}).Parse(context.Background(), []byte(publicoPage))
	if !errors.Is(err, boom) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestCleanBody(t *testing.T) {
	plain := "Um   texto\n sem\tpublicidade."
	if got := CleanBody(plain); got != "Um texto sem publicidade." {
		t.Fatalf("CleanBody(plain) = %q", got)
	}
	withPhrase := "Antes. " + newsletterPhrase + " Depois."
	if got := CleanBody(withPhrase); got != "Antes. Depois." {
		t.Fatalf("CleanBody(phrase) = %q", got)
	}
	if got := CleanBody(`Texto \"citado\" Ler o artigo completo resto`); got != `Texto "citado"` {
		t.Fatalf("CleanBody(marker) = %q", got)
	}
}

func TestCapitalize(t *testing.T) {
	if got := capitalize("ÉCONOMIA"); got != "Économia" {
		t.Fatalf("capitalize = %q", got)
	}
	if capitalize("") != "" {
		t.Fatalf("empty input must stay empty")
	}
}

func TestParseBoundToPublisherSkipsForeignPages(t *testing.T) {
	client := stubHTTPClient{bodies: map[string]string{publicoSummary: publicoJSON}}
	out, err := NewParser(providers.Default(), client).ForPublisher(domain.CM).Parse(context.Background(), []byte(publicoPage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Article != nil || out.Unsupported == nil {
		t.Fatalf("expected publico page to be rejected for cm, got %+v", out.Article)
	}

	out, err = NewParser(providers.Default(), client).ForPublisher(domain.Publico).Parse(context.Background(), []byte(publicoPage))
	if err != nil || out.Article == nil {
		t.Fatalf("expected publico page to parse for publico, got %v %v", out.Unsupported, err)
	}
}
