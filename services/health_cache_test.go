package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SocialPublisher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(check HealthCheckFunc) (*HealthCache, *testClock) {
	clock := &testClock{now: testNow}
	cache := NewHealthCache(check, HealthCacheConfig{})
	cache.now = clock.Now
	return cache, clock
}

func TestHealthCacheHealthyTTL(t *testing.T) {
	var calls atomic.Int32
	cache, clock := newTestCache(func(context.Context, *models.Account) error {
		calls.Add(1)
		return nil
	})
	account := healthyAccount("acc-1", models.Twitter)
	ctx := context.Background()

	first := cache.Get(ctx, account)
	assert.True(t, first.Healthy)
	assert.False(t, first.Cached)

	clock.Advance(4 * time.Minute)
	second := cache.Get(ctx, account)
	assert.True(t, second.Cached)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(2 * time.Minute)
	third := cache.Get(ctx, account)
	assert.False(t, third.Cached)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHealthCacheErrorTTL(t *testing.T) {
	var calls atomic.Int32
	cache, clock := newTestCache(func(context.Context, *models.Account) error {
		calls.Add(1)
		return errors.New("Error validating access token: session has expired")
	})
	account := healthyAccount("acc-1", models.Facebook)
	ctx := context.Background()

	status := cache.Get(ctx, account)
	assert.False(t, status.Healthy)
	assert.Equal(t, models.ErrorAuthentication, status.Category)
	assert.Contains(t, status.Message, "session has expired")

	clock.Advance(30 * time.Second)
	assert.True(t, cache.Get(ctx, account).Cached)

	clock.Advance(31 * time.Second)
	assert.False(t, cache.Get(ctx, account).Cached)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHealthCacheInvalidate(t *testing.T) {
	var calls atomic.Int32
	cache, _ := newTestCache(func(context.Context, *models.Account) error {
		calls.Add(1)
		return nil
	})
	account := healthyAccount("acc-1", models.Instagram)
	ctx := context.Background()

	cache.Get(ctx, account)
	require.Equal(t, 1, cache.Size())

	cache.Invalidate(account)
	assert.Equal(t, 0, cache.Size())

	cache.Get(ctx, account)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHealthCacheKeysByAccountAndPlatform(t *testing.T) {
	cache, _ := newTestCache(func(context.Context, *models.Account) error { return nil })
	ctx := context.Background()

	cache.Get(ctx, healthyAccount("acc-1", models.Facebook))
	cache.Get(ctx, healthyAccount("acc-1", models.Instagram))
	cache.Get(ctx, healthyAccount("acc-2", models.Facebook))
	assert.Equal(t, 3, cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestHealthCacheSizeDropsExpired(t *testing.T) {
	cache, clock := newTestCache(func(_ context.Context, a *models.Account) error {
		if a.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	})
	ctx := context.Background()

	cache.Get(ctx, healthyAccount("good", models.Twitter))
	cache.Get(ctx, healthyAccount("bad", models.Twitter))
	require.Equal(t, 2, cache.Size())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, cache.Size())
}

func TestHealthCacheRecoversPanic(t *testing.T) {
	cache, _ := newTestCache(func(context.Context, *models.Account) error {
		panic("nil pointer")
	})

	status := cache.Get(context.Background(), healthyAccount("acc-1", models.Twitter))
	assert.False(t, status.Healthy)
	assert.Equal(t, models.ErrorUnknown, status.Category)
	assert.Contains(t, status.Message, "nil pointer")
}

func TestHealthCacheBoundsCheckDuration(t *testing.T) {
	cache := NewHealthCache(func(ctx context.Context, _ *models.Account) error {
		<-ctx.Done()
		return ctx.Err()
	}, HealthCacheConfig{CheckTimeout: 20 * time.Millisecond})

	status := cache.Get(context.Background(), healthyAccount("acc-1", models.Twitter))
	assert.False(t, status.Healthy)
	assert.Equal(t, models.ErrorNetwork, status.Category)
}

func TestHealthCacheSkipsChecksAbandonedByCaller(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cache, _ := newTestCache(func(checkCtx context.Context, _ *models.Account) error {
		if calls.Add(1) == 1 {
			cancel()
			return checkCtx.Err()
		}
		return nil
	})
	account := healthyAccount("acc-1", models.Twitter)

	status := cache.Get(ctx, account)
	assert.False(t, status.Healthy)
	assert.NotEqual(t, models.ErrorNetwork, status.Category)
	assert.Zero(t, cache.Size())

	status = cache.Get(context.Background(), account)
	assert.True(t, status.Healthy)
	assert.False(t, status.Cached)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1, cache.Size())
}
