package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SMSSender sends SMS messages via AWS SNS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type smsSender struct {
	client snsAPI
}

func NewSMSSender(client snsAPI) SMSSender {
	return &smsSender{client: client}
}

func (s *smsSender) SendSMS(ctx context.Context, to, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &to,
		Message:     &message,
	})
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}
