package notifiers

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type kafkaNotifier struct {
	id       string
	topic    string
	producer sarama.SyncProducer
	log      Logger
}

func newKafkaNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("notifier %q missing kafka configuration", cfg.ID)
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &kafkaNotifier{
		id:       cfg.ID,
		topic:    cfg.Kafka.Topic,
		producer: producer,
		log:      ensureLogger(log),
	}, nil
}

func (k *kafkaNotifier) ID() string   { return k.id }
func (k *kafkaNotifier) Type() string { return TypeKafka }

func (k *kafkaNotifier) Notify(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := make([]sarama.RecordHeader, 0, 3)
	for key, v := range evt.attributes() {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(v)})
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   k.topic,
		Key:     sarama.StringEncoder(evt.JobID),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("send to kafka: %w", err)
	}
	k.log.DebugObj("kafka notifier delivered event", "notifier_kafka_delivery", map[string]any{
		"notifier_id": k.id,
		"partition":   partition,
		"offset":      offset,
	})
	return nil
}

func (k *kafkaNotifier) Close() error { return k.producer.Close() }
