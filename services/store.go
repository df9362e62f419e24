package services

import (
	"context"
	"time"

	"SocialPublisher/models"
)

// Store is the persistence the scheduler depends on. Post transitions are
// conditional on the current status so a post leaves "scheduled" at most
// once; implementations return database.ErrPostNotScheduled otherwise.
type Store interface {
	GetDuePosts(ctx context.Context, now time.Time) ([]*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	MarkPostPublished(ctx context.Context, id, externalID string, publishedAt time.Time) error
	MarkPostFailed(ctx context.Context, id, reason string, failedAt time.Time) error
	PostponePost(ctx context.Context, id string, until time.Time, reason string) error
	RetryPost(ctx context.Context, id string, scheduledAt time.Time) (*models.Post, error)

	MarkAccountNeedsReconnection(ctx context.Context, id, reason string) error
	DisconnectAccount(ctx context.Context, id, reason string) error
	MarkAccountUnhealthy(ctx context.Context, id, reason string) error
	MarkAccountHealthy(ctx context.Context, id string, at time.Time) error

	GetPublishedPosts(ctx context.Context, since time.Time) ([]models.ReportEntry, error)
	GetFailedPosts(ctx context.Context, since time.Time) ([]models.ReportEntry, error)
	GetUpcomingPosts(ctx context.Context, now time.Time, limit int) ([]models.ReportEntry, error)
	HasHealthyConnectedAccount(ctx context.Context) (bool, error)
}

// UsageRecorder receives one call per successful publish, e.g. to count
// posts against a plan limit.
type UsageRecorder interface {
	RecordPublish(ctx context.Context, userID string, platform models.Platform) error
}
