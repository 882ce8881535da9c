package notifiers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsNotifier struct {
	id       string
	topicARN string
	client   snsClient
	log      Logger
}

func newSNSNotifier(ctx context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("notifier %q missing sns configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SNS.AWSConfig)
	if err != nil {
		return nil, err
	}
	endpoint := endpointOverride(cfg.SNS.Endpoint)

	return &snsNotifier{
		id:       cfg.ID,
		topicARN: cfg.SNS.TopicARN,
		client: sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			if endpoint != nil {
				o.BaseEndpoint = endpoint
			}
		}),
		log: ensureLogger(log),
	}, nil
}

func (s *snsNotifier) ID() string   { return s.id }
func (s *snsNotifier) Type() string { return TypeSNS }
func (s *snsNotifier) Close() error { return nil }

func (s *snsNotifier) Notify(ctx context.Context, evt Event) error {
	payload, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range evt.attributes() {
		if v == "" {
			continue
		}
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if _, err := s.client.Publish(ctx, input); err != nil {
		s.log.ErrorObj("sns notifier publish failed", "notifier_sns_error", map[string]any{
			"notifier_id": s.id,
			"error":       err.Error(),
		})
		return fmt.Errorf("publish to sns: %w", err)
	}
	return nil
}
