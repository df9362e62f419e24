package handlers

import (
	"context"
	"time"

	"SocialPublisher/database"
	"SocialPublisher/models"
	"SocialPublisher/services"
)

// SchedulerOps is the part of *services.Scheduler exposed over HTTP.
type SchedulerOps interface {
	Start() error
	Stop()
	TriggerOnce(ctx context.Context) (*services.PassSummary, error)
	GetStats() models.StatsSnapshot
	ResetStats()
	GetPublishingReport(ctx context.Context, hours int) (*models.PublishingReport, error)
	AutoManage(ctx context.Context) (bool, error)
	RetryPost(ctx context.Context, postID string) (*models.Post, error)
}

type PostStore interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	CreatePost(ctx context.Context, post *models.Post, mediaIDs []string) error
	CreateMedia(ctx context.Context, media *database.Media) error
	GetMediaByIDs(ctx context.Context, ids []string) ([]*database.Media, error)
}

type Handler struct {
	scheduler SchedulerOps
	store     PostStore
	now       func() time.Time
}

func NewHandler(scheduler SchedulerOps, store PostStore) *Handler {
	return &Handler{
		scheduler: scheduler,
		store:     store,
		now:       time.Now,
	}
}
