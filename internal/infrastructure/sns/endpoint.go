package sns

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-hr-sync/internal/domain"
)

// EndpointPlatform is the device push capability backed by an SNS platform
// application. The token handed to the portal is the endpoint ARN created
// for the raw device token.
type EndpointPlatform struct {
	client         snsAPI
	platformAppARN string
	deviceToken    string
	platform       string
	consent        domain.PushPermission

	mu          sync.Mutex
	endpointARN string
}

type EndpointPlatformConfig struct {
	PlatformAppARN string
	DeviceToken    string
	Platform       string
	// Consent answers the permission prompt on devices that cannot show one.
	Consent domain.PushPermission
}

func NewEndpointPlatform(client snsAPI, cfg EndpointPlatformConfig) *EndpointPlatform {
	return &EndpointPlatform{
		client:         client,
		platformAppARN: cfg.PlatformAppARN,
		deviceToken:    cfg.DeviceToken,
		platform:       cfg.Platform,
		consent:        cfg.Consent,
	}
}

func (p *EndpointPlatform) Name() string { return p.platform }

func (p *EndpointPlatform) Supported() bool {
	return p.client != nil && p.platformAppARN != "" && p.deviceToken != ""
}

func (p *EndpointPlatform) RequestPermission(context.Context) (domain.PushPermission, error) {
	return p.consent, nil
}

// Token returns the endpoint ARN, creating the endpoint on first use.
// CreatePlatformEndpoint is idempotent for the same token and attributes.
func (p *EndpointPlatform) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpointARN != "" {
		return p.endpointARN, nil
	}
	out, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.platformAppARN),
		Token:                  aws.String(p.deviceToken),
	})
	if err != nil {
		return "", fmt.Errorf("create platform endpoint: %w", err)
	}
	if out.EndpointArn == nil || *out.EndpointArn == "" {
		return "", fmt.Errorf("create platform endpoint: empty arn: %w", domain.ErrUnavailable)
	}
	p.endpointARN = *out.EndpointArn
	return p.endpointARN, nil
}
