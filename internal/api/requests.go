package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opennews-pt/pt-news-extractor/internal/dates"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
)

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return errors.New("expected a string or an array of strings")
	}
	*l = arr
	return nil
}

type urlSearchBody struct {
	URLs stringList `json:"urls"`
	// legacy alias
	URL stringList `json:"url"`
}

func (b urlSearchBody) request() (domain.SearchRequest, error) {
	urls := b.URLs
	if len(urls) == 0 {
		urls = b.URL
	}
	return domain.NewURLSearch(urls)
}

type dateWindow struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (w dateWindow) parse() (time.Time, time.Time, error) {
	if w.StartDate == "" || w.EndDate == "" {
		return time.Time{}, time.Time{}, &domain.ValidationError{
			Field:   "start_date",
			Message: "start_date and end_date are required (dd/mm/YYYY)",
		}
	}
	start, err := dates.ParseDay(w.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := dates.ParseDay(w.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type tagSearchBody struct {
	Tags stringList `json:"tags"`
	// legacy aliases
	Tag         stringList `json:"tag"`
	SearchTopic stringList `json:"search_topic"`
	// Listing selects another tag-style listing, e.g. "more_about" on CM.
	Listing string `json:"listing"`
	dateWindow
}

func (b tagSearchBody) request() (domain.SearchRequest, error) {
	start, end, err := b.parse()
	if err != nil {
		return domain.SearchRequest{}, err
	}
	tags := append(append(append([]string{}, b.Tags...), b.Tag...), b.SearchTopic...)
	req, err := domain.NewTagSearch(tags, start, end)
	if err != nil {
		return domain.SearchRequest{}, err
	}
	req.Tag.Listing = strings.TrimSpace(b.Listing)
	return req, nil
}

type keywordSearchBody struct {
	Keywords stringList `json:"keywords"`
	dateWindow
}

func (b keywordSearchBody) request() (domain.SearchRequest, error) {
	start, end, err := b.parse()
	if err != nil {
		return domain.SearchRequest{}, err
	}
	return domain.NewKeywordSearch(b.Keywords, start, end)
}

// jobArguments renders a request the way clients submitted it.
func jobArguments(req domain.SearchRequest) map[string]any {
	switch req.Kind {
	case domain.KindURL:
		if req.URL != nil {
			return map[string]any{"urls": req.URL.URLs}
		}
	case domain.KindTag:
		if req.Tag != nil {
			args := map[string]any{
				"tags":       req.Tag.Tags,
				"start_date": dates.FormatDMY(req.Tag.StartDate, "/"),
				"end_date":   dates.FormatDMY(req.Tag.EndDate, "/"),
			}
			if req.Tag.Listing != "" {
				args["listing"] = req.Tag.Listing
			}
			return args
		}
	case domain.KindKeyword:
		if req.Keyword != nil {
			return map[string]any{
				"keywords":   req.Keyword.Keywords,
				"start_date": dates.FormatDMY(req.Keyword.StartDate, "/"),
				"end_date":   dates.FormatDMY(req.Keyword.EndDate, "/"),
			}
		}
	}
	return map[string]any{"kind": fmt.Sprint(req.Kind)}
}
