package notifiers

import "context"

// Notifier delivers job completion events to a downstream sink (HTTP, SQS, etc).
type Notifier interface {
	ID() string
	Type() string
	Notify(ctx context.Context, evt Event) error
	Close() error
}
