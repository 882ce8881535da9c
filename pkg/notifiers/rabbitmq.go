package notifiers

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishingChannel is the part of *amqp.Channel the notifier uses.
type PublishingChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

type rabbitNotifier struct {
	id         string
	conn       *amqp.Connection
	ch         PublishingChannel
	exchange   string
	routingKey string
	log        Logger
}

func newRabbitNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.RabbitMQ == nil {
		return nil, fmt.Errorf("notifier %q missing rabbitmq configuration", cfg.ID)
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URI)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.RabbitMQ.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare failed: %w", err)
	}

	return &rabbitNotifier{
		id:         cfg.ID,
		conn:       conn,
		ch:         ch,
		exchange:   cfg.RabbitMQ.Exchange,
		routingKey: cfg.RabbitMQ.RoutingKey,
		log:        ensureLogger(log),
	}, nil
}

func (r *rabbitNotifier) ID() string   { return r.id }
func (r *rabbitNotifier) Type() string { return TypeRabbitMQ }

func (r *rabbitNotifier) Notify(ctx context.Context, evt Event) error {
	body, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range evt.attributes() {
		headers[k] = v
	}

	if err := r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    evt.JobID,
		Timestamp:    evt.DateDone,
		Headers:      headers,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}
	return nil
}

func (r *rabbitNotifier) Close() error {
	var err error
	if r.ch != nil {
		err = r.ch.Close()
	}
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
