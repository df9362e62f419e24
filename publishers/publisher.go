package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"SocialPublisher/classifier"
	"SocialPublisher/models"
)

// PlatformPublisher is implemented once per social network.
type PlatformPublisher interface {
	Platform() models.Platform
	// CheckCredentials verifies locally that the credential bundle carries
	// every field the platform needs. It never touches the network.
	CheckCredentials(account *models.Account) error
	// ValidateCredentials performs the remote health check.
	ValidateCredentials(ctx context.Context, account *models.Account) error
	Publish(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrContentTooLong     = errors.New("content too long")
	ErrMediaRequired      = errors.New("media required")
	ErrUnsupportedMedia   = errors.New("unsupported media")
)

// ValidationError is a local failure detected before any network call.
type ValidationError struct {
	Platform models.Platform
	Reason   string
	Category models.ErrorCategory
	// AccountLevel is true when the fault lies with the account rather
	// than with the post (e.g. missing credentials).
	AccountLevel bool
	cause        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform.DisplayName(), e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.cause }

func (e *ValidationError) ErrorCategory() models.ErrorCategory { return e.Category }

func missingCredentials(platform models.Platform, fields ...string) *ValidationError {
	return &ValidationError{
		Platform:     platform,
		Reason:       fmt.Sprintf("missing credentials (%s)", strings.Join(fields, ", ")),
		Category:     models.ErrorUnknown,
		AccountLevel: true,
		cause:        ErrMissingCredentials,
	}
}

func contentTooLong(platform models.Platform, length, limit int) *ValidationError {
	return &ValidationError{
		Platform: platform,
		Reason:   fmt.Sprintf("content too long (%d characters, limit %d)", length, limit),
		Category: models.ErrorContentPolicy,
		cause:    ErrContentTooLong,
	}
}

func mediaRequired(platform models.Platform) *ValidationError {
	return &ValidationError{
		Platform: platform,
		Reason:   "media required: at least one image or video must be attached",
		Category: models.ErrorContentPolicy,
		cause:    ErrMediaRequired,
	}
}

func unsupportedMedia(platform models.Platform, reason string) *ValidationError {
	return &ValidationError{
		Platform: platform,
		Reason:   "unsupported media: " + reason,
		Category: models.ErrorContentPolicy,
		cause:    ErrUnsupportedMedia,
	}
}

// contentRules are the local checks every adapter runs before publishing.
type contentRules struct {
	maxLength    int
	requireMedia bool
	maxMedia     int
}

func (r contentRules) validate(platform models.Platform, post *models.Post) error {
	if n := utf8.RuneCountInString(post.Content); r.maxLength > 0 && n > r.maxLength {
		return contentTooLong(platform, n, r.maxLength)
	}
	if r.requireMedia && len(post.Media) == 0 {
		return mediaRequired(platform)
	}
	if r.maxMedia > 0 && len(post.Media) > r.maxMedia {
		return unsupportedMedia(platform, fmt.Sprintf("%d attachments, limit %d", len(post.Media), r.maxMedia))
	}
	return nil
}

func success(platform models.Platform, externalID string, raw []byte) models.PublishResult {
	return models.PublishResult{
		Platform:    platform,
		Success:     true,
		Message:     fmt.Sprintf("Published successfully on %s", platform.DisplayName()),
		PostID:      externalID,
		PublishedAt: time.Now(),
		Raw:         raw,
	}
}

func failure(platform models.Platform, err error) models.PublishResult {
	return models.PublishResult{
		Platform:      platform,
		Success:       false,
		Message:       err.Error(),
		Err:           err,
		ErrorCategory: classifier.Classify(err),
	}
}

// Registry selects the adapter for an account's platform.
type Registry map[models.Platform]PlatformPublisher

func NewRegistry(publishers ...PlatformPublisher) Registry {
	r := make(Registry, len(publishers))
	for _, p := range publishers {
		r[p.Platform()] = p
	}
	return r
}

func (r Registry) Get(platform models.Platform) (PlatformPublisher, bool) {
	p, ok := r[platform]
	return p, ok
}
