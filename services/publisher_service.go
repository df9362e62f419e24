package services

import (
	"context"
	"fmt"
	"time"

	"SocialPublisher/models"
	"SocialPublisher/publishers"
	"SocialPublisher/utils"
)

// PublisherService routes health checks and publish attempts to the
// adapter of the account's platform and bounds each call in time.
type PublisherService struct {
	registry       publishers.Registry
	publishTimeout time.Duration
}

func NewPublisherService(registry publishers.Registry, publishTimeout time.Duration) *PublisherService {
	if publishTimeout <= 0 {
		publishTimeout = 10 * time.Minute
	}
	return &PublisherService{registry: registry, publishTimeout: publishTimeout}
}

func (ps *PublisherService) Publisher(platform models.Platform) (publishers.PlatformPublisher, error) {
	p, ok := ps.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("platform %q is not supported", platform)
	}
	return p, nil
}

// CheckCredentials is the local, network free credential check.
func (ps *PublisherService) CheckCredentials(account *models.Account) error {
	p, err := ps.Publisher(account.Platform)
	if err != nil {
		return err
	}
	return p.CheckCredentials(account)
}

// ValidateAccount runs the remote credential check used by the health cache.
func (ps *PublisherService) ValidateAccount(ctx context.Context, account *models.Account) error {
	p, err := ps.Publisher(account.Platform)
	if err != nil {
		return err
	}
	return p.ValidateCredentials(ctx, account)
}

// Publish attempts delivery once. Adapter panics are converted into a
// failed result.
func (ps *PublisherService) Publish(ctx context.Context, post *models.Post, account *models.Account) (result models.PublishResult) {
	p, err := ps.Publisher(account.Platform)
	if err != nil {
		return models.PublishResult{
			Platform:      account.Platform,
			Message:       err.Error(),
			Err:           err,
			ErrorCategory: models.ErrorUnknown,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ps.publishTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("publisher panic platform=%s post=%s panic=%v", account.Platform, post.ID, r)
			err := fmt.Errorf("%s publisher panicked: %v", account.Platform.DisplayName(), r)
			result = models.PublishResult{
				Platform:      account.Platform,
				Message:       err.Error(),
				Err:           err,
				ErrorCategory: models.ErrorUnknown,
			}
		}
	}()

	start := time.Now()
	result = p.Publish(ctx, post, account)
	utils.Infof("publish attempt platform=%s post=%s success=%t duration=%s", account.Platform, post.ID, result.Success, time.Since(start).Round(time.Millisecond))
	return result
}
