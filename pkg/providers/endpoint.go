package providers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query styles applied to a tag or keyword before it is placed in a URL.
const (
	QuerySlug   = "slug"
	QueryEscape = "escape"
)

// Endpoint describes one paginated listing API of a publisher.
//
// URL is a template. Supported placeholders: {query}, {index}, {last},
// {start} and {end}. {last} is index+step; dates are rendered as
// dd<sep>mm<sep>YYYY using DateSeparator.
type Endpoint struct {
	URL           string `json:"url" yaml:"url"`
	Format        string `json:"format" yaml:"format"`
	FirstIndex    int    `json:"first_index" yaml:"first_index"`
	Step          int    `json:"step" yaml:"step"`
	Sentinel      string `json:"sentinel" yaml:"sentinel"`
	Descending    bool   `json:"descending" yaml:"descending"`
	Prefiltered   bool   `json:"prefiltered" yaml:"prefiltered"`
	QueryStyle    string `json:"query_style" yaml:"query_style"`
	DateSeparator string `json:"date_separator" yaml:"date_separator"`

	// JSON listings
	ItemURLField  string `json:"item_url_field" yaml:"item_url_field"`
	ItemDateField string `json:"item_date_field" yaml:"item_date_field"`

	// HTML listings
	ItemSelector string `json:"item_selector" yaml:"item_selector"`
	ItemAttr     string `json:"item_attr" yaml:"item_attr"`
	StripSuffix  string `json:"strip_suffix" yaml:"strip_suffix"`
}

// PageURL renders the URL of the page starting at index.
func (e Endpoint) PageURL(query string, index int, start, end time.Time) string {
	r := strings.NewReplacer(
		"{query}", e.Query(query),
		"{index}", strconv.Itoa(index),
		"{last}", strconv.Itoa(index+e.Step),
		"{start}", formatDay(start, e.DateSeparator),
		"{end}", formatDay(end, e.DateSeparator),
	)
	return r.Replace(e.URL)
}

// Query normalizes a tag or keyword the way the publisher expects it.
func (e Endpoint) Query(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if e.QueryStyle == QueryEscape {
		return url.QueryEscape(q)
	}
	return url.PathEscape(strings.ReplaceAll(q, " ", "-"))
}

// IsSentinel reports whether body is the empty-page marker. Blank bodies
// always count as empty.
func (e Endpoint) IsSentinel(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return trimmed == "" || trimmed == strings.TrimSpace(e.Sentinel)
}

// Dated reports whether listing items carry their own publish date.
func (e Endpoint) Dated() bool {
	return e.Format == FormatJSON && e.ItemDateField != ""
}

func formatDay(t time.Time, sep string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02" + sep + "01" + sep + "2006")
}

func sanitizeEndpoint(e Endpoint) Endpoint {
	e.URL = strings.TrimSpace(e.URL)
	e.Format = strings.ToLower(strings.TrimSpace(e.Format))
	e.QueryStyle = strings.ToLower(strings.TrimSpace(e.QueryStyle))
	if e.QueryStyle == "" {
		e.QueryStyle = QuerySlug
	}
	if e.Step <= 0 {
		e.Step = 1
	}
	if e.DateSeparator == "" {
		e.DateSeparator = "/"
	}
	e.ItemURLField = strings.TrimSpace(e.ItemURLField)
	e.ItemDateField = strings.TrimSpace(e.ItemDateField)
	e.ItemSelector = strings.TrimSpace(e.ItemSelector)
	e.ItemAttr = strings.TrimSpace(e.ItemAttr)
	return e
}

func validateEndpoint(e Endpoint) error {
	if e.URL == "" {
		return errors.New("url is required")
	}
	switch e.Format {
	case FormatJSON:
		if e.ItemURLField == "" {
			return errors.New("item_url_field is required for json listings")
		}
	case FormatHTML:
		if e.ItemSelector == "" || e.ItemAttr == "" {
			return errors.New("item_selector and item_attr are required for html listings")
		}
	default:
		return fmt.Errorf("unsupported format %q", e.Format)
	}
	if e.QueryStyle != QuerySlug && e.QueryStyle != QueryEscape {
		return fmt.Errorf("unsupported query_style %q", e.QueryStyle)
	}
	return nil
}
