package notifiers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type pubsubNotifier struct {
	id     string
	client *pubsub.Client
	topic  *pubsub.Topic
	log    Logger
}

// newPubSubNotifier honours PUBSUB_EMULATOR_HOST through the client library.
func newPubSubNotifier(ctx context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("notifier %q missing gcp_pubsub configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []option.ClientOption
	if cfg.PubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &pubsubNotifier{
		id:     cfg.ID,
		client: client,
		topic:  client.Topic(cfg.PubSub.Topic),
		log:    ensureLogger(log),
	}, nil
}

func (p *pubsubNotifier) ID() string   { return p.id }
func (p *pubsubNotifier) Type() string { return TypePubSub }

func (p *pubsubNotifier) Notify(ctx context.Context, evt Event) error {
	payload, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: evt.attributes(),
	})
	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	p.log.DebugObj("pubsub notifier delivered event", "notifier_pubsub_delivery", map[string]any{
		"notifier_id": p.id,
		"message_id":  id,
	})
	return nil
}

func (p *pubsubNotifier) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
