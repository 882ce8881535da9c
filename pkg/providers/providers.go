package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"gopkg.in/yaml.v3"
)

// Package providers holds the per-newspaper rule tables (hosts, denylist,
// listing endpoints, login URLs) and the YAML/JSON file that overrides them.

// Endpoint names used by the collector.
const (
	EndpointTag       = "tag"
	EndpointKeyword   = "keyword"
	EndpointMoreAbout = "more_about"
)

// Listing formats.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

type Provider struct {
	ID         string              `json:"id" yaml:"id"`
	Name       string              `json:"name" yaml:"name"`
	BaseURL    string              `json:"base_url" yaml:"base_url"`
	Hosts      []string            `json:"hosts" yaml:"hosts"`
	Denylist   []string            `json:"denylist" yaml:"denylist"`
	SummaryAPI string              `json:"summary_api" yaml:"summary_api"`
	Login      Login               `json:"login" yaml:"login"`
	Endpoints  map[string]Endpoint `json:"endpoints" yaml:"endpoints"`
	Config     map[string]any      `json:"config" yaml:"config"`
}

// Login holds the URLs of the publisher sign-in flow.
type Login struct {
	URL      string `json:"url" yaml:"url"`
	TokenURL string `json:"token_url" yaml:"token_url"`
}

type registry struct {
	Providers []Provider `json:"providers" yaml:"providers"`
}

// Registry resolves providers by publisher or by article host.
type Registry struct {
	idx map[domain.Publisher]Provider
}

// Default returns the built-in rule tables.
func Default() *Registry {
	r := &Registry{idx: make(map[domain.Publisher]Provider, 2)}
	for _, p := range builtin() {
		r.idx[domain.Publisher(p.ID)] = sanitizeProvider(p)
	}
	return r
}

// NewRegistry builds a registry from explicit entries. Tests use it to point
// providers at local servers.
func NewRegistry(entries ...Provider) (*Registry, error) {
	r := &Registry{idx: make(map[domain.Publisher]Provider, len(entries))}
	for i := range entries {
		p := sanitizeProvider(entries[i])
		if err := validateProvider(p); err != nil {
			return nil, fmt.Errorf("provider[%d]: %w", i, err)
		}
		key := domain.Publisher(p.ID)
		if _, exists := r.idx[key]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		r.idx[key] = p
	}
	return r, nil
}

// Get returns the provider for a publisher.
func (r *Registry) Get(p domain.Publisher) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	prov, ok := r.idx[p]
	return prov, ok
}

// ForHost returns the provider that serves articles on host.
func (r *Registry) ForHost(host string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	for _, p := range domain.Publishers() {
		if prov, ok := r.idx[p]; ok && prov.HasHost(host) {
			return prov, true
		}
	}
	return Provider{}, false
}

// All returns the loaded providers in publisher order.
func (r *Registry) All() []Provider {
	if r == nil {
		return nil
	}
	out := make([]Provider, 0, len(r.idx))
	for _, p := range domain.Publishers() {
		if prov, ok := r.idx[p]; ok {
			out = append(out, prov)
		}
	}
	return out
}

// LoadProviders starts from the built-in tables and replaces every entry
// found in the file at path. An empty path yields the defaults.
func LoadProviders(path string) (*Registry, error) {
	reg := Default()
	if strings.TrimSpace(path) == "" {
		return reg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	if len(parsed.Providers) == 0 {
		return nil, errors.New("providers file contains no providers entries")
	}

	seen := make(map[string]struct{}, len(parsed.Providers))
	for i := range parsed.Providers {
		p := sanitizeProvider(parsed.Providers[i])
		if err := validateProvider(p); err != nil {
			return nil, fmt.Errorf("provider[%d]: %w", i, err)
		}
		if _, exists := seen[p.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		reg.idx[domain.Publisher(p.ID)] = p
	}

	return reg, nil
}

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registry{}, errors.New("providers file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registry, error) {
	var reg registry
	if err := fn(data, &reg); err != nil {
		return registry{}, fmt.Errorf("decode %s providers: %w", name, err)
	}
	return reg, nil
}

func sanitizeProvider(p Provider) Provider {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	p.Name = strings.TrimSpace(p.Name)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.SummaryAPI = strings.TrimRight(strings.TrimSpace(p.SummaryAPI), "/")
	p.Login.URL = strings.TrimSpace(p.Login.URL)
	p.Login.TokenURL = strings.TrimSpace(p.Login.TokenURL)

	hosts := make([]string, 0, len(p.Hosts))
	for _, h := range p.Hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	p.Hosts = hosts

	deny := make([]string, 0, len(p.Denylist))
	for _, d := range p.Denylist {
		if d = strings.TrimSpace(d); d != "" {
			deny = append(deny, d)
		}
	}
	p.Denylist = deny

	if p.Config == nil {
		p.Config = map[string]any{}
	}
	endpoints := make(map[string]Endpoint, len(p.Endpoints))
	for name, ep := range p.Endpoints {
		endpoints[strings.ToLower(strings.TrimSpace(name))] = sanitizeEndpoint(ep)
	}
	p.Endpoints = endpoints

	return p
}

func validateProvider(p Provider) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if _, err := domain.ParsePublisher(p.ID); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("name is required for provider %q", p.ID)
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url is required for provider %q", p.ID)
	}
	if _, err := url.Parse(p.BaseURL); err != nil {
		return fmt.Errorf("base_url for provider %q: %w", p.ID, err)
	}
	if len(p.Hosts) == 0 {
		return fmt.Errorf("hosts are required for provider %q", p.ID)
	}
	for name, ep := range p.Endpoints {
		if err := validateEndpoint(ep); err != nil {
			return fmt.Errorf("endpoint %q of provider %q: %w", name, p.ID, err)
		}
	}
	return nil
}

// HasHost reports whether host belongs to the provider.
func (p Provider) HasHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, h := range p.Hosts {
		if h == host {
			return true
		}
	}
	return false
}

// DeniedBy returns the first denylist entry contained in path.
func (p Provider) DeniedBy(path string) (string, bool) {
	for _, d := range p.Denylist {
		if strings.Contains(path, d) {
			return d, true
		}
	}
	return "", false
}

// Endpoint returns the listing endpoint registered under name.
func (p Provider) Endpoint(name string) (Endpoint, bool) {
	ep, ok := p.Endpoints[name]
	return ep, ok
}

// Absolute turns a site-relative href into an absolute URL on BaseURL.
func (p Provider) Absolute(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return p.BaseURL + href
	}
	return href
}

// SummaryURL builds the metadata API URL for an article id.
func (p Provider) SummaryURL(id string) string {
	if p.SummaryAPI == "" {
		return ""
	}
	return p.SummaryAPI + "/" + id
}
