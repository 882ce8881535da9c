package notifiers

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	EventJobFinished = "job.finished"
	EventJobFailed   = "job.failed"
)

// Event is the payload sent when a search job reaches a final state. It
// carries a summary only; clients fetch the articles from ResultsURL.
type Event struct {
	Type         string    `json:"event"`
	JobID        string    `json:"job_id"`
	Publisher    string    `json:"publisher"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	NumberOfNews int       `json:"number_of_news"`
	ResultsURL   string    `json:"results_url,omitempty"`
	ExcInfo      string    `json:"exc_info,omitempty"`
	DateDone     time.Time `json:"date_done"`
}

// attributes are attached as message metadata by queue-style sinks.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event":     e.Type,
		"publisher": e.Publisher,
		"status":    e.Status,
	}
}

func (e Event) payload() ([]byte, error) {
	return json.Marshal(e)
}
