package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Payload is the platform push body delivered to the device's background
// handler.
type Payload struct {
	Notification PayloadNotification `json:"notification"`
	Data         map[string]string   `json:"data,omitempty"`
}

type PayloadNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Publisher sends a push to a device endpoint.
type Publisher interface {
	PublishPush(ctx context.Context, endpointARN string, p Payload) error
}

type publisher struct {
	client snsAPI
}

func NewPublisher(client snsAPI) Publisher {
	return &publisher{client: client}
}

func (p *publisher) PublishPush(ctx context.Context, endpointARN string, payload Payload) error {
	msg, err := encodeMessage(payload)
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpointARN),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	return nil
}

// encodeMessage builds the per-protocol envelope SNS expects when
// MessageStructure is "json".
func encodeMessage(p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode push payload: %w", err)
	}
	aps, err := json.Marshal(map[string]any{
		"aps":  map[string]any{"alert": map[string]string{"title": p.Notification.Title, "body": p.Notification.Body}},
		"data": p.Data,
	})
	if err != nil {
		return "", fmt.Errorf("encode apns payload: %w", err)
	}
	envelope, err := json.Marshal(map[string]string{
		"default": p.Notification.Body,
		"GCM":     string(body),
		"APNS":    string(aps),
	})
	if err != nil {
		return "", fmt.Errorf("encode push envelope: %w", err)
	}
	return string(envelope), nil
}
