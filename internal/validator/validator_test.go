package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/pkg/httpclient"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

type mockResponse struct {
	body       []byte
	statusCode int
}

func (r mockResponse) Body() []byte    { return r.body }
func (r mockResponse) StatusCode() int { return r.statusCode }

// mockHTTPClient answers by URL; unknown URLs get 404.
type mockHTTPClient struct {
	status map[string]int
	err    error
	calls  []string
}

func (m *mockHTTPClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return nil, m.err
	}
	if code, ok := m.status[url]; ok {
		return mockResponse{statusCode: code}, nil
	}
	return mockResponse{statusCode: 404}, nil
}

func (m *mockHTTPClient) PostForm(context.Context, string, map[string]string, map[string]string) (httpclient.Response, error) {
	return nil, errors.New("unexpected post")
}

const (
	publicoURL = "https://www.publico.pt/2021/01/31/politica/noticia/eleicoes-presidenciais-1948394"
	summaryURL = "https://api.publico.pt/content/summary/scriptor_noticias/1948394"
	cmURL      = "https://www.cmjornal.pt/politica/detalhe/costa-anuncia-medidas"
)

func TestCheckPublicoRequiresSummaryAndPage(t *testing.T) {
	client := &mockHTTPClient{status: map[string]int{summaryURL: 200, publicoURL: 200}}
	v := New(providers.Default(), client)

	ok, err := v.IsSupported(context.Background(), publicoURL)
	if err != nil || !ok {
		t.Fatalf("expected supported, got %v %v", ok, err)
	}
	if len(client.calls) != 2 || client.calls[0] != summaryURL {
		t.Fatalf("expected summary lookup then page fetch, got %v", client.calls)
	}

	client = &mockHTTPClient{status: map[string]int{publicoURL: 200}}
	v = New(providers.Default(), client)
	skip, err := v.Check(context.Background(), publicoURL)
	if err != nil || skip == nil {
		t.Fatalf("expected skip when summary api misses, got %v %v", skip, err)
	}
}

func TestCheckDenylistWinsOverValidID(t *testing.T) {
	client := &mockHTTPClient{status: map[string]int{}}
	v := New(providers.Default(), client)

	// numeric id present, but the path is a multimedia page
	u := "https://www.cmjornal.pt/multimedia/detalhe/galeria-123456"
	if id, err := ExtractArticleID(u); err != nil || id != "123456" {
		t.Fatalf("ExtractArticleID = %q, %v", id, err)
	}
	skip, err := v.Check(context.Background(), u)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if skip == nil || !strings.Contains(skip.Reason, "multimedia") {
		t.Fatalf("expected multimedia skip, got %v", skip)
	}
	if len(client.calls) != 0 {
		t.Fatalf("denied urls must not hit the network, got %v", client.calls)
	}
}

func TestCheckUnknownHostAndMissingID(t *testing.T) {
	v := New(providers.Default(), &mockHTTPClient{})
	for _, u := range []string{
		"https://www.expresso.pt/politica/x-1",
		"https://www.publico.pt/opiniao/sem-id",
		"::not a url",
	} {
		ok, err := v.IsSupported(context.Background(), u)
		if err != nil || ok {
			t.Fatalf("%s: expected unsupported, got %v %v", u, ok, err)
		}
	}
}

func TestCheckBoundToPublisherRejectsOtherHosts(t *testing.T) {
	client := &mockHTTPClient{status: map[string]int{summaryURL: 200, publicoURL: 200, cmURL: 200}}
	v := New(providers.Default(), client).ForPublisher(domain.CM)

	skip, err := v.Check(context.Background(), publicoURL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if skip == nil || !strings.Contains(skip.Reason, "does not belong to cm") {
		t.Fatalf("expected foreign host skip, got %v", skip)
	}
	if len(client.calls) != 0 {
		t.Fatalf("foreign hosts must not hit the network, got %v", client.calls)
	}

	ok, err := v.IsSupported(context.Background(), cmURL)
	if err != nil || !ok {
		t.Fatalf("own host must stay supported, got %v %v", ok, err)
	}
}

func TestCheckCMNeedsOnlyThePage(t *testing.T) {
	client := &mockHTTPClient{status: map[string]int{cmURL: 200}}
	ok, err := New(providers.Default(), client).IsSupported(context.Background(), cmURL)
	if err != nil || !ok {
		t.Fatalf("expected supported, got %v %v", ok, err)
	}
}

func TestCheckPropagatesNetworkErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := New(providers.Default(), &mockHTTPClient{err: boom}).IsSupported(context.Background(), cmURL)
	if !errors.Is(err, boom) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestExtractArticleID(t *testing.T) {
	if _, err := ExtractArticleID("https://www.publico.pt/politica/noticia/sem-numero"); !errors.Is(err, ErrArticleIDNotFound) {
		t.Fatalf("expected ErrArticleIDNotFound, got %v", err)
	}
	if _, err := ExtractArticleID("https://www.publico.pt/"); !errors.Is(err, ErrArticleIDNotFound) {
		t.Fatalf("expected ErrArticleIDNotFound, got %v", err)
	}
	id, err := ExtractArticleID(publicoURL + "/")
	if err != nil || id != "1948394" {
		t.Fatalf("unexpected id %q, %v", id, err)
	}
}
