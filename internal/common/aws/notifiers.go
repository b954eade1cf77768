// internal/common/aws/notifiers.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SESClient delivers completion emails. It wraps the raw SDK client so the
// notification layer can be tested against an interface.
type SESClient struct {
	client *ses.Client
}

// SNSClient delivers completion texts.
type SNSClient struct {
	client *sns.Client
}

// NewNotificationClients builds both delivery clients off a single shared
// credential load. Credentials come from the default chain (env, shared
// config, instance role).
func NewNotificationClients(ctx context.Context, region string) (*SESClient, *SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, nil, err
	}
	return &SESClient{client: ses.NewFromConfig(cfg)},
		&SNSClient{client: sns.NewFromConfig(cfg)},
		nil
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input)
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	return s.client.Publish(ctx, input)
}
