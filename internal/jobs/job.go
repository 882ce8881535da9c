// Package jobs stores search jobs, queues them and runs them on workers.
package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opennews-pt/pt-news-extractor/internal/domain"
)

// ErrNotFound is returned for unknown or expired jobs.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusDeferred Status = "deferred"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Done reports whether the job reached a final state.
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusFailed
}

// Job is the persisted record of one search.
type Job struct {
	ID          string               `json:"id"`
	Publisher   domain.Publisher     `json:"publisher"`
	Kind        domain.SearchKind    `json:"kind"`
	Status      Status               `json:"status"`
	Args        domain.SearchRequest `json:"args"`
	Result      []domain.Article     `json:"result"`
	ExcInfo     string               `json:"exc_info,omitempty"`
	Fingerprint string               `json:"fingerprint"`
	EnqueuedAt  time.Time            `json:"enqueued_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	EndedAt     *time.Time           `json:"ended_at,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

// NewJob creates a queued job for req.
func NewJob(pub domain.Publisher, req domain.SearchRequest, now time.Time) Job {
	return Job{
		ID:          uuid.NewString(),
		Publisher:   pub,
		Kind:        req.Kind,
		Status:      StatusQueued,
		Args:        req,
		Fingerprint: Fingerprint(pub, req),
		EnqueuedAt:  now.UTC(),
	}
}

// Expired reports whether the job record outlived its TTL at now.
func (j Job) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && !j.ExpiresAt.After(now)
}

// Fingerprint identifies identical requests for duplicate detection.
func Fingerprint(pub domain.Publisher, req domain.SearchRequest) string {
	raw, _ := json.Marshal(struct {
		Publisher domain.Publisher     `json:"publisher"`
		Request   domain.SearchRequest `json:"request"`
	}{pub, req})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func encodeJob(j Job) ([]byte, error) { return json.Marshal(j) }

func decodeJob(raw []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(raw, &j)
	return j, err
}
