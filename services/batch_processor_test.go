package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"SocialPublisher/models"
	"SocialPublisher/publishers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBatch(t *testing.T, h *harness, accountID string) {
	t.Helper()
	posts, err := h.store.GetDuePosts(context.Background(), testNow)
	require.NoError(t, err)

	var batch []*models.Post
	for _, p := range posts {
		if p.AccountID == accountID {
			batch = append(batch, p)
		}
	}
	require.NoError(t, h.processor.ProcessAccount(context.Background(), accountID, batch))
}

func TestProcessAccountPublishes(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{platform: models.Twitter}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	post := store.post("p1")
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, "ext-p1", post.ExternalPostID)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, testNow, *post.PublishedAt)

	assert.Equal(t, 0, h.cache.Size(), "publishing invalidates the health entry")
	assert.Empty(t, store.accountEvents(), "a healthy account is left alone")
	assert.Equal(t, []string{"user-1:twitter"}, store.usage)

	snap := h.stats.Snapshot()
	assert.EqualValues(t, 1, snap.PostsPublished)
	assert.EqualValues(t, 1, snap.PostsProcessed)
	assert.Equal(t, "100.0%", snap.SuccessRate)
}

func TestProcessAccountPostponesOnRateLimit(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{
		platform: models.Twitter,
		publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
			return failedResult(models.Twitter, models.ErrorRateLimit, "Too Many Requests")
		},
	}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	post := store.post("p1")
	assert.Equal(t, models.StatusScheduled, post.Status)
	assert.Equal(t, testNow.Add(15*time.Minute), post.ScheduledDate)
	assert.Contains(t, post.PublishError, "15 minutes")

	snap := h.stats.Snapshot()
	assert.EqualValues(t, 1, snap.RateLimitErrors)
	assert.EqualValues(t, 1, snap.PostsPostponed)
	assert.EqualValues(t, 0, snap.PostsFailed)
	assert.Empty(t, store.accountEvents())
}

func TestProcessAccountStopsAfterAuthFailure(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Facebook))
	store.addPost(duePost("p1", "acc-1", models.Facebook, 2*time.Minute))
	store.addPost(duePost("p2", "acc-1", models.Facebook, time.Minute))
	pub := &fakePublisher{
		platform: models.Facebook,
		publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
			return failedResult(models.Facebook, models.ErrorAuthentication, "Error validating access token")
		},
	}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	assert.EqualValues(t, 1, pub.publishCalls.Load())
	first := store.post("p1")
	assert.Equal(t, models.StatusFailed, first.Status)
	assert.Contains(t, first.PublishError, "Reconnect")
	assert.Equal(t, models.StatusScheduled, store.post("p2").Status)

	account := store.account("acc-1")
	assert.True(t, account.Connected)
	assert.Equal(t, models.SyncNeedsReconnection, account.SyncStatus)
	assert.EqualValues(t, 1, h.stats.Snapshot().AuthenticationErrors)
}

func TestProcessAccountUnhealthyCheckFailsWholeBatch(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Instagram))
	store.addPost(duePost("p1", "acc-1", models.Instagram, 2*time.Minute))
	store.addPost(duePost("p2", "acc-1", models.Instagram, time.Minute))
	pub := &fakePublisher{
		platform: models.Instagram,
		validateFunc: func(context.Context, *models.Account) error {
			return &publishers.APIError{Platform: models.Instagram, StatusCode: 403, Code: 10, Message: "Application does not have permission"}
		},
	}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	assert.Zero(t, pub.publishCalls.Load())
	assert.Equal(t, models.StatusFailed, store.post("p1").Status)
	assert.Equal(t, models.StatusFailed, store.post("p2").Status)
	assert.Equal(t, []string{"needs_reconnection:acc-1"}, store.accountEvents())
	assert.EqualValues(t, 2, h.stats.Snapshot().PermissionErrors)
}

func TestProcessAccountMissingCredentialsDisconnects(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{
		platform: models.Twitter,
		checkFunc: func(*models.Account) error {
			return publishers.ErrMissingCredentials
		},
	}
	h := newHarness(t, store, 3, pub)

	runBatch(t, h, "acc-1")

	assert.Zero(t, pub.validateCalls.Load())
	assert.Equal(t, models.StatusFailed, store.post("p1").Status)
	assert.False(t, store.account("acc-1").Connected)
	assert.Equal(t, []string{"disconnect:acc-1"}, store.accountEvents())
}

func TestProcessAccountMissingAccountFailsPosts(t *testing.T) {
	store := newMemStore()
	store.addPost(duePost("p1", "gone", models.Twitter, time.Minute))
	h := newHarness(t, store, 0, &fakePublisher{platform: models.Twitter})

	runBatch(t, h, "gone")

	assert.Equal(t, models.StatusFailed, store.post("p1").Status)
	assert.Empty(t, store.accountEvents())
	assert.EqualValues(t, 1, h.stats.Snapshot().UnknownErrors)
}

func TestProcessAccountStoreErrorLeavesPostsUntouched(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	store.getAccountErr["acc-1"] = errors.New("connection reset")
	h := newHarness(t, store, 0, &fakePublisher{platform: models.Twitter})

	posts, _ := store.GetDuePosts(context.Background(), testNow)
	err := h.processor.ProcessAccount(context.Background(), "acc-1", posts)
	require.Error(t, err)
	assert.Equal(t, models.StatusScheduled, store.post("p1").Status)
}

func TestUnknownErrorGrace(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{
		platform: models.Twitter,
		publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
			return failedResult(models.Twitter, models.ErrorUnknown, "something odd happened")
		},
	}
	h := newHarness(t, store, 1, pub)

	runBatch(t, h, "acc-1")
	assert.Equal(t, []string{"unhealthy:acc-1"}, store.accountEvents())
	assert.True(t, store.account("acc-1").Connected)
	assert.Equal(t, models.StatusFailed, store.post("p1").Status)

	store.addPost(duePost("p2", "acc-1", models.Twitter, time.Minute))
	runBatch(t, h, "acc-1")
	assert.Equal(t, []string{"unhealthy:acc-1", "disconnect:acc-1"}, store.accountEvents())
	assert.False(t, store.account("acc-1").Connected)
}

func TestUnknownErrorWithoutGraceDisconnects(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{
		platform: models.Twitter,
		publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
			return failedResult(models.Twitter, "", "weird failure")
		},
	}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	assert.Equal(t, []string{"disconnect:acc-1"}, store.accountEvents())
	assert.Contains(t, store.post("p1").PublishError, "disconnected")
}

func TestPublishRestoresUnhealthyAccount(t *testing.T) {
	store := newMemStore()
	account := healthyAccount("acc-1", models.Facebook)
	account.ConnectionHealthy = false
	account.SyncStatus = models.SyncError
	store.addAccount(account)
	store.addPost(duePost("p1", "acc-1", models.Facebook, time.Minute))
	h := newHarness(t, store, 0, &fakePublisher{platform: models.Facebook})

	runBatch(t, h, "acc-1")

	got := store.account("acc-1")
	assert.True(t, got.ConnectionHealthy)
	assert.Equal(t, models.SyncSuccess, got.SyncStatus)
	require.NotNil(t, got.LastSyncedAt)
	assert.Equal(t, []string{"healthy:acc-1"}, store.accountEvents())
}

func TestPublisherPanicBecomesUnknownFailure(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))
	pub := &fakePublisher{
		platform: models.Twitter,
		publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
			panic("nil map")
		},
	}
	h := newHarness(t, store, 0, pub)

	runBatch(t, h, "acc-1")

	post := store.post("p1")
	assert.Equal(t, models.StatusFailed, post.Status)
	assert.Contains(t, post.PublishError, "panicked")
	assert.Equal(t, []string{"disconnect:acc-1"}, store.accountEvents())
}

func TestProcessAccountDispositionPerCategory(t *testing.T) {
	tests := []struct {
		category  models.ErrorCategory
		status    models.PostStatus
		delay     time.Duration
		events    []string
		connected bool
	}{
		{models.ErrorRateLimit, models.StatusScheduled, 15 * time.Minute, nil, true},
		{models.ErrorNetwork, models.StatusScheduled, 5 * time.Minute, nil, true},
		{models.ErrorAuthentication, models.StatusFailed, 0, []string{"needs_reconnection:acc-1"}, true},
		{models.ErrorPermissions, models.StatusFailed, 0, []string{"needs_reconnection:acc-1"}, true},
		{models.ErrorDuplicateContent, models.StatusFailed, 0, nil, true},
		{models.ErrorContentPolicy, models.StatusFailed, 0, nil, true},
		{models.ErrorUnknown, models.StatusFailed, 0, []string{"disconnect:acc-1"}, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			store := newMemStore()
			store.addAccount(healthyAccount("acc-1", models.Facebook))
			store.addPost(duePost("p1", "acc-1", models.Facebook, time.Minute))
			pub := &fakePublisher{
				platform: models.Facebook,
				publishFunc: func(context.Context, *models.Post, *models.Account) models.PublishResult {
					return failedResult(models.Facebook, tt.category, "graph said no")
				},
			}
			h := newHarness(t, store, 0, pub)

			runBatch(t, h, "acc-1")

			post := store.post("p1")
			assert.Equal(t, tt.status, post.Status)
			assert.Contains(t, post.PublishError, "graph said no")
			if tt.status == models.StatusScheduled {
				assert.Equal(t, testNow.Add(tt.delay), post.ScheduledDate)
				assert.Nil(t, post.FailedAt)
			} else {
				require.NotNil(t, post.FailedAt)
				assert.Equal(t, testNow, *post.FailedAt)
			}

			assert.Equal(t, tt.events, store.accountEvents())
			assert.Equal(t, tt.connected, store.account("acc-1").Connected)

			snap := h.stats.Snapshot()
			counts := map[models.ErrorCategory]int64{
				models.ErrorRateLimit:        snap.RateLimitErrors,
				models.ErrorNetwork:          snap.NetworkErrors,
				models.ErrorAuthentication:   snap.AuthenticationErrors,
				models.ErrorPermissions:      snap.PermissionErrors,
				models.ErrorDuplicateContent: snap.DuplicateContentErrors,
				models.ErrorContentPolicy:    snap.ContentPolicyErrors,
				models.ErrorUnknown:          snap.UnknownErrors,
			}
			for category, n := range counts {
				if category == tt.category {
					assert.EqualValues(t, 1, n, category)
				} else {
					assert.Zero(t, n, category)
				}
			}
		})
	}
}

func TestProcessAccountCanceledDuringHealthCheck(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{
		platform: models.Twitter,
		validateFunc: func(ctx context.Context, _ *models.Account) error {
			cancel()
			return ctx.Err()
		},
	}
	h := newHarness(t, store, 0, pub)

	posts, err := store.GetDuePosts(context.Background(), testNow)
	require.NoError(t, err)
	err = h.processor.ProcessAccount(ctx, "acc-1", posts)
	assert.ErrorIs(t, err, context.Canceled)

	post := store.post("p1")
	assert.Equal(t, models.StatusScheduled, post.Status)
	assert.Equal(t, testNow.Add(-time.Minute), post.ScheduledDate)
	assert.Empty(t, post.PublishError)
	assert.Zero(t, pub.publishCalls.Load())
	assert.Empty(t, store.accountEvents())
	assert.Zero(t, h.cache.Size())
	assert.Zero(t, h.stats.Snapshot().NetworkErrors)
}

func TestProcessAccountCanceledDuringPublish(t *testing.T) {
	store := newMemStore()
	store.addAccount(healthyAccount("acc-1", models.Twitter))
	store.addPost(duePost("p1", "acc-1", models.Twitter, 2*time.Minute))
	store.addPost(duePost("p2", "acc-1", models.Twitter, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{
		platform: models.Twitter,
		publishFunc: func(ctx context.Context, _ *models.Post, _ *models.Account) models.PublishResult {
			cancel()
			return models.PublishResult{Platform: models.Twitter, Err: ctx.Err(), Message: ctx.Err().Error()}
		},
	}
	h := newHarness(t, store, 0, pub)

	posts, err := store.GetDuePosts(context.Background(), testNow)
	require.NoError(t, err)
	err = h.processor.ProcessAccount(ctx, "acc-1", posts)
	assert.ErrorIs(t, err, context.Canceled)

	assert.EqualValues(t, 1, pub.publishCalls.Load())
	for _, id := range []string{"p1", "p2"} {
		post := store.post(id)
		assert.Equal(t, models.StatusScheduled, post.Status, id)
		assert.Empty(t, post.PublishError, id)
	}
	assert.Empty(t, store.accountEvents())
	snap := h.stats.Snapshot()
	assert.Zero(t, snap.PostsPostponed)
	assert.Zero(t, snap.UnknownErrors)
}
