package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SocialPublisher/classifier"
	"SocialPublisher/database"
	"SocialPublisher/models"
	"SocialPublisher/publishers"
	"SocialPublisher/utils"
)

// BatchProcessor handles the due posts of one account: one health check for
// the whole batch, then each post in order.
type BatchProcessor struct {
	store     Store
	publisher *PublisherService
	cache     *HealthCache
	policy    Policy
	stats     *Stats
	usage     UsageRecorder
	now       func() time.Time

	// unknownGrace is the number of consecutive unknown failures tolerated
	// before an account is disconnected.
	unknownGrace int
	strikesMu    sync.Mutex
	strikes      map[string]int
}

type BatchProcessorConfig struct {
	Policy       Policy
	UnknownGrace int
	Usage        UsageRecorder
}

func NewBatchProcessor(store Store, publisher *PublisherService, cache *HealthCache, stats *Stats, cfg BatchProcessorConfig) *BatchProcessor {
	if cfg.Policy == (Policy{}) {
		cfg.Policy = NewPolicy(0, 0)
	}
	return &BatchProcessor{
		store:        store,
		publisher:    publisher,
		cache:        cache,
		policy:       cfg.Policy,
		stats:        stats,
		usage:        cfg.Usage,
		now:          time.Now,
		unknownGrace: cfg.UnknownGrace,
		strikes:      make(map[string]int),
	}
}

// ProcessAccount never returns an error for publish failures; those are
// recorded on the posts. An error means the account could not be processed
// at all and its posts were left untouched.
func (b *BatchProcessor) ProcessAccount(ctx context.Context, accountID string, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	account, err := b.store.GetAccount(ctx, accountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		utils.Warnf("due posts reference a missing account account=%s posts=%d", accountID, len(posts))
		for _, post := range posts {
			b.failPost(ctx, post, models.ErrorUnknown, "The account for this post no longer exists")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading account %s: %w", accountID, err)
	}

	if !account.Connected {
		b.applyToAll(ctx, account, posts, b.policy.Decide(models.ErrorUnknown, account.Platform, "account is not connected"))
		return nil
	}

	if err := b.publisher.CheckCredentials(account); err != nil {
		utils.Warnf("account fails local credential check account=%s platform=%s err=%v", account.ID, account.Platform, err)
		b.applyToAll(ctx, account, posts, b.policy.Decide(models.ErrorUnknown, account.Platform, err.Error()))
		return nil
	}

	health := b.cache.Get(ctx, account)
	if err := ctx.Err(); err != nil {
		utils.Warnf("batch interrupted during health check account=%s err=%v", account.ID, err)
		return err
	}
	if !health.Healthy {
		d := b.withGrace(account, b.policy.Decide(health.Category, account.Platform, health.Message))
		b.applyToAll(ctx, account, posts, d)
		return nil
	}

	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			utils.Warnf("batch interrupted account=%s remaining=%d err=%v", account.ID, len(posts)-i, err)
			return err
		}
		if changed := b.processPost(ctx, account, post); changed {
			if rest := len(posts) - i - 1; rest > 0 {
				utils.Infof("account state changed, leaving posts scheduled account=%s remaining=%d", account.ID, rest)
			}
			break
		}
	}
	return nil
}

// processPost publishes one post and reports whether the account was
// taken out of service as a result.
func (b *BatchProcessor) processPost(ctx context.Context, account *models.Account, post *models.Post) bool {
	result := b.publisher.Publish(ctx, post, account)

	if result.Success {
		b.onPublished(ctx, account, post, result)
		return false
	}

	if ctx.Err() != nil {
		utils.Warnf("publish interrupted, leaving post scheduled post=%s err=%v", post.ID, result.Err)
		return false
	}

	category := result.ErrorCategory
	if category == "" {
		category = classifier.Classify(result.Err)
	}

	var validation *publishers.ValidationError
	if errors.As(result.Err, &validation) && validation.AccountLevel {
		category = models.ErrorUnknown
	}

	d := b.policy.Decide(category, account.Platform, result.Message)
	if validation == nil || !validation.AccountLevel {
		d = b.withGrace(account, d)
	}

	b.applyToPost(ctx, post, d)
	b.applyToAccount(ctx, account, d)
	return d.Account == AccountNeedsReconnection || d.Account == AccountDisconnect
}

func (b *BatchProcessor) onPublished(ctx context.Context, account *models.Account, post *models.Post, result models.PublishResult) {
	publishedAt := result.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = b.now()
	}

	if err := b.store.MarkPostPublished(ctx, post.ID, result.PostID, publishedAt); err != nil {
		// The platform already has the post; only the bookkeeping failed.
		utils.Errorf("post published but not recorded post=%s external=%s err=%v", post.ID, result.PostID, err)
	}
	b.stats.RecordPublished()
	b.cache.Invalidate(account)
	b.resetStrikes(account.ID)

	utils.Infof("post published post=%s platform=%s external=%s", post.ID, account.Platform, result.PostID)

	if !account.ConnectionHealthy || account.SyncStatus != models.SyncSuccess {
		if err := b.store.MarkAccountHealthy(ctx, account.ID, publishedAt); err != nil {
			utils.Warnf("could not restore account health account=%s err=%v", account.ID, err)
		} else {
			utils.Infof("account recovered account=%s platform=%s", account.ID, account.Platform)
			account.ConnectionHealthy = true
			account.SyncStatus = models.SyncSuccess
		}
	}

	if b.usage != nil {
		if err := b.usage.RecordPublish(ctx, post.UserID, account.Platform); err != nil {
			utils.Warnf("usage not recorded user=%s post=%s err=%v", post.UserID, post.ID, err)
		}
	}
}

func (b *BatchProcessor) applyToAll(ctx context.Context, account *models.Account, posts []*models.Post, d Disposition) {
	for _, post := range posts {
		b.applyToPost(ctx, post, d)
	}
	b.applyToAccount(ctx, account, d)
}

func (b *BatchProcessor) applyToPost(ctx context.Context, post *models.Post, d Disposition) {
	if d.Post == PostPostpone {
		until := b.now().Add(d.Delay)
		if err := b.store.PostponePost(ctx, post.ID, until, d.Reason); err != nil {
			utils.Errorf("postpone failed post=%s err=%v", post.ID, err)
			return
		}
		b.stats.RecordPostponed(d.Category)
		utils.Infof("post postponed post=%s category=%s until=%s", post.ID, d.Category, until.Format(time.RFC3339))
		return
	}
	b.failPost(ctx, post, d.Category, d.Reason)
}

func (b *BatchProcessor) failPost(ctx context.Context, post *models.Post, category models.ErrorCategory, reason string) {
	if err := b.store.MarkPostFailed(ctx, post.ID, reason, b.now()); err != nil {
		utils.Errorf("mark failed post=%s err=%v", post.ID, err)
		return
	}
	b.stats.RecordFailed(category)
	utils.Warnf("post failed post=%s category=%s reason=%q", post.ID, category, reason)
}

func (b *BatchProcessor) applyToAccount(ctx context.Context, account *models.Account, d Disposition) {
	var err error
	switch d.Account {
	case AccountNone:
		return
	case AccountNeedsReconnection:
		err = b.store.MarkAccountNeedsReconnection(ctx, account.ID, d.Reason)
	case AccountDisconnect:
		utils.Warnf("disconnecting account account=%s platform=%s category=%s reason=%q", account.ID, account.Platform, d.Category, d.Reason)
		err = b.store.DisconnectAccount(ctx, account.ID, d.Reason)
		b.resetStrikes(account.ID)
	case AccountUnhealthy:
		err = b.store.MarkAccountUnhealthy(ctx, account.ID, d.Reason)
	}
	b.cache.Invalidate(account)
	if err != nil {
		utils.Errorf("account update failed account=%s action=%s err=%v", account.ID, d.Account, err)
	}
}

// withGrace downgrades a disconnect for an unknown error to "unhealthy"
// while the account is within its grace allowance.
func (b *BatchProcessor) withGrace(account *models.Account, d Disposition) Disposition {
	if d.Category != models.ErrorUnknown || d.Account != AccountDisconnect || b.unknownGrace <= 0 {
		return d
	}

	b.strikesMu.Lock()
	b.strikes[account.ID]++
	strikes := b.strikes[account.ID]
	b.strikesMu.Unlock()

	if strikes > b.unknownGrace {
		return d
	}
	utils.Warnf("unknown error within grace account=%s strike=%d grace=%d", account.ID, strikes, b.unknownGrace)
	d.Account = AccountUnhealthy
	d.Reason = fmt.Sprintf("Publishing to %s failed with an unexpected error: %s", account.Platform.DisplayName(), d.Detail)
	return d
}

func (b *BatchProcessor) resetStrikes(accountID string) {
	b.strikesMu.Lock()
	delete(b.strikes, accountID)
	b.strikesMu.Unlock()
}
