// Package api exposes the search job REST interface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opennews-pt/pt-news-extractor/internal/dates"
	"github.com/opennews-pt/pt-news-extractor/internal/domain"
	"github.com/opennews-pt/pt-news-extractor/internal/jobs"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every 4xx/5xx reply that is not a job result.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a rejected request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EnqueueResponse is returned when a search job is accepted.
type EnqueueResponse struct {
	JobID      string `json:"job_id"`
	ResultsURL string `json:"results_url"`
}

// Options tune a Server.
type Options struct {
	// PublicBaseURL prefixes results_url; when empty the request host is used.
	PublicBaseURL string
	Log           logger.Logger
}

// Server turns HTTP requests into queued jobs and reports their results.
type Server struct {
	backend jobs.Backend
	reg     *providers.Registry
	baseURL string
	log     logger.Logger
	now     func() time.Time
}

// NewServer builds a Server over a job backend and the provider registry.
func NewServer(backend jobs.Backend, reg *providers.Registry, opts Options) *Server {
	return &Server{
		backend: backend,
		reg:     reg,
		baseURL: opts.PublicBaseURL,
		log:     logger.Ensure(opts.Log),
		now:     time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/news/results/{job_id}", s.handleResults).Methods(http.MethodGet)

	news := r.PathPrefix("/news/{publisher}").Subrouter()
	news.HandleFunc("", s.handleURLSearch).Methods(http.MethodPost)
	news.HandleFunc("/", s.handleURLSearch).Methods(http.MethodPost)
	news.HandleFunc("/tag_search", s.handleTagSearch).Methods(http.MethodPost)
	news.HandleFunc("/keywords_search", s.handleKeywordSearch).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.DebugObj("http request", "request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	})
}

func (s *Server) handleURLSearch(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, &urlSearchBody{}, "")
}

func (s *Server) handleTagSearch(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, &tagSearchBody{}, providers.EndpointTag)
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, &keywordSearchBody{}, providers.EndpointKeyword)
}

type searchBody interface {
	request() (domain.SearchRequest, error)
}

// enqueue decodes body, validates it and queues a job for the path's
// publisher. endpoint, when set, must be offered by that publisher.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, body searchBody, endpoint string) {
	pub, err := domain.ParsePublisher(mux.Vars(r)["publisher"])
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_publisher", err.Error())
		return
	}
	prov, ok := s.reg.Get(pub)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_publisher", fmt.Sprintf("publisher %q is not configured", pub))
		return
	}
	if endpoint != "" {
		if _, ok := prov.Endpoint(endpoint); !ok {
			writeError(w, http.StatusNotFound, "unsupported_search", fmt.Sprintf("%s does not support %s", prov.Name, endpoint))
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	req, err := body.request()
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	if req.Tag != nil && req.Tag.Listing != "" {
		if !tagListing(req.Tag.Listing) {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("listing %q is not a tag listing", req.Tag.Listing))
			return
		}
		if _, ok := prov.Endpoint(req.Tag.Listing); !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("%s has no %s listing", prov.Name, req.Tag.Listing))
			return
		}
	}

	job, existing, err := jobs.Enqueue(r.Context(), s.backend, jobs.NewJob(pub, req, s.now()))
	if err != nil {
		s.log.ErrorObj("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue_failed", "could not queue the search")
		return
	}
	s.log.InfoObj("search job queued", "job", map[string]any{
		"id":        job.ID,
		"publisher": pub,
		"kind":      req.Kind,
		"existing":  existing,
	})

	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		JobID:      job.ID,
		ResultsURL: s.resultsURL(r, job.ID),
	})
}

func tagListing(name string) bool {
	return name == providers.EndpointTag || name == providers.EndpointMoreAbout
}

func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	var dateErr *dates.ParseError
	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &dateErr):
		writeError(w, http.StatusBadRequest, "invalid_date",
			fmt.Sprintf("invalid date %q, please provide dates as dd/mm/YYYY", dateErr.Raw))
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, "invalid_request", valErr.Error())
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	job, err := s.backend.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job_not_found", fmt.Sprintf("job %s does not exist", id))
		return
	}
	if err != nil {
		s.log.ErrorObj("load job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load the job")
		return
	}

	switch job.Status {
	case jobs.StatusFinished:
		news := job.Result
		if news == nil {
			news = []domain.Article{}
		}
		writeJSON(w, http.StatusOK, finishedResponse{
			ID:           job.ID,
			Status:       job.Status,
			NumberOfNews: len(news),
			News:         news,
			JobArguments: jobArguments(job.Args),
			DateDone:     job.EndedAt,
			ExpiresAt:    job.ExpiresAt,
		})
	case jobs.StatusFailed:
		writeJSON(w, http.StatusInternalServerError, failedResponse{
			ID:           job.ID,
			Status:       job.Status,
			ExcInfo:      job.ExcInfo,
			JobArguments: jobArguments(job.Args),
		})
	default:
		writeJSON(w, http.StatusAccepted, pendingResponse{
			ID:      job.ID,
			Status:  job.Status,
			Message: pendingMessage(job.Status),
		})
	}
}

type finishedResponse struct {
	ID           string           `json:"id"`
	Status       jobs.Status      `json:"status"`
	NumberOfNews int              `json:"number_of_news"`
	News         []domain.Article `json:"news"`
	JobArguments map[string]any   `json:"job_arguments"`
	DateDone     *time.Time       `json:"date_done"`
	ExpiresAt    *time.Time       `json:"expires_at"`
}

type failedResponse struct {
	ID           string         `json:"id"`
	Status       jobs.Status    `json:"status"`
	ExcInfo      string         `json:"exc_info"`
	JobArguments map[string]any `json:"job_arguments"`
}

type pendingResponse struct {
	ID      string      `json:"id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func pendingMessage(st jobs.Status) string {
	switch st {
	case jobs.StatusStarted:
		return "Your job has started"
	case jobs.StatusDeferred:
		return "Your job is deferred"
	default:
		return "Your job is in queue"
	}
}

func (s *Server) resultsURL(r *http.Request, id string) string {
	base := s.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/news/results/" + id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
