// internal/notify/notifier.go
package notify

import (
	"context"
	"errors"
	"fmt"

	"cohort-intake/internal/common/config"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// SESService and SNSService mirror the slices of the AWS clients the
// notifier uses, for mocking.
type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Recipient is where a completion notice goes. Empty channels are skipped.
type Recipient struct {
	Email string
	Phone string
}

// Notifier tells the business owner their cohort profile is ready. Sending
// is best effort on every channel: a dead mail provider must never fail a
// completed intake.
type Notifier struct {
	config    *config.NotificationConfig
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
}

func NewNotifier(cfg *config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger: log.With(map[string]interface{}{
			"component": "completion-notifier",
		}),
	}
}

// NotifyCompletion sends the completion notice over every enabled channel
// the recipient has an address for. It returns an error only when every
// attempted channel failed.
func (n *Notifier) NotifyCompletion(ctx context.Context, recipient Recipient, record *models.CohortRecord) error {
	subject := "Your customer profile is ready"
	body := n.renderBody(record)

	attempted := 0
	failed := 0

	if n.config.Email.Enabled && recipient.Email != "" && n.sesClient != nil {
		attempted++
		if err := n.sendEmail(ctx, recipient.Email, subject, body); err != nil {
			failed++
			n.logger.Error("completion email failed", map[string]interface{}{
				"recordId": record.ID,
				"error":    err.Error(),
			})
		}
	}

	if n.config.SMS.Enabled && recipient.Phone != "" && n.snsClient != nil {
		attempted++
		if err := n.sendSMS(ctx, recipient.Phone, body); err != nil {
			failed++
			n.logger.Error("completion SMS failed", map[string]interface{}{
				"recordId": record.ID,
				"error":    err.Error(),
			})
		}
	}

	if attempted > 0 && failed == attempted {
		return fmt.Errorf("%w: all %d channels failed", ErrNotificationSendFailed, attempted)
	}
	return nil
}

func (n *Notifier) renderBody(record *models.CohortRecord) string {
	name := record.Draft.Name
	if name == "" {
		name = "your ideal customer"
	}
	return fmt.Sprintf("We finished building the profile for %s. Open your dashboard to review it.", name)
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.config.Email.FromEmail),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
		},
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, phone, body string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(body),
	})
	return err
}
