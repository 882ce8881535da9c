package app

import (
	"context"

	"github.com/opennews-pt/pt-news-extractor/internal/jobs"
	"github.com/opennews-pt/pt-news-extractor/pkg/notifiers"
)

// jobNotifier turns finished jobs into notifier events.
type jobNotifier struct {
	fanout  *notifiers.Fanout
	baseURL string
}

func (n jobNotifier) JobDone(ctx context.Context, job jobs.Job) error {
	if n.fanout.Size() == 0 {
		return nil
	}
	_, err := n.fanout.Notify(ctx, jobEvent(job, n.baseURL))
	return err
}

func jobEvent(job jobs.Job, baseURL string) notifiers.Event {
	evt := notifiers.Event{
		Type:         notifiers.EventJobFinished,
		JobID:        job.ID,
		Publisher:    string(job.Publisher),
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		NumberOfNews: len(job.Result),
		ExcInfo:      job.ExcInfo,
	}
	if job.Status == jobs.StatusFailed {
		evt.Type = notifiers.EventJobFailed
	}
	if job.EndedAt != nil {
		evt.DateDone = *job.EndedAt
	}
	if baseURL != "" {
		evt.ResultsURL = baseURL + "/news/results/" + job.ID
	}
	return evt
}
