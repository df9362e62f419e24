package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SocialPublisher/classifier"
	"SocialPublisher/models"
	"SocialPublisher/utils"

	"golang.org/x/sync/singleflight"
)

// HealthCheckFunc performs the remote credential check for an account.
type HealthCheckFunc func(ctx context.Context, account *models.Account) error

type HealthCacheConfig struct {
	HealthyTTL time.Duration
	ErrorTTL   time.Duration
	// CheckTimeout bounds a single remote check.
	CheckTimeout time.Duration
}

type healthKey struct {
	accountID string
	platform  models.Platform
}

type healthEntry struct {
	status  models.HealthStatus
	expires time.Time
}

// HealthCache remembers connection checks per account. Healthy results live
// longer than failures so a broken account is re-probed sooner.
type HealthCache struct {
	cfg   HealthCacheConfig
	check HealthCheckFunc
	now   func() time.Time

	mu      sync.Mutex
	entries map[healthKey]healthEntry
	group   singleflight.Group
}

func NewHealthCache(check HealthCheckFunc, cfg HealthCacheConfig) *HealthCache {
	if cfg.HealthyTTL <= 0 {
		cfg.HealthyTTL = 5 * time.Minute
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 15 * time.Second
	}
	return &HealthCache{
		cfg:     cfg,
		check:   check,
		now:     time.Now,
		entries: make(map[healthKey]healthEntry),
	}
}

// Get returns the cached status of the account or runs a fresh check.
// Check failures are reported in the status, never as an error.
func (c *HealthCache) Get(ctx context.Context, account *models.Account) models.HealthStatus {
	key := healthKey{accountID: account.ID, platform: account.Platform}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		status := e.status
		status.Cached = true
		return status
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(account.ID+"|"+string(account.Platform), func() (any, error) {
		status := c.runCheck(ctx, account)
		if ctx.Err() != nil {
			// The caller gave up; the outcome says nothing about the account.
			return status, nil
		}

		ttl := c.cfg.HealthyTTL
		if !status.Healthy {
			ttl = c.cfg.ErrorTTL
		}
		c.mu.Lock()
		c.entries[key] = healthEntry{status: status, expires: status.CheckedAt.Add(ttl)}
		c.mu.Unlock()
		return status, nil
	})
	return v.(models.HealthStatus)
}

func (c *HealthCache) runCheck(ctx context.Context, account *models.Account) (status models.HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("health check panic account=%s platform=%s panic=%v", account.ID, account.Platform, r)
			status = models.HealthStatus{
				Healthy:   false,
				Message:   fmt.Sprintf("health check failed unexpectedly: %v", r),
				Category:  models.ErrorUnknown,
				CheckedAt: c.now(),
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	err := c.check(ctx, account)
	if err == nil {
		utils.Debugf("health check ok account=%s platform=%s", account.ID, account.Platform)
		return models.HealthStatus{Healthy: true, CheckedAt: c.now()}
	}

	category := classifier.Classify(err)
	utils.Warnf("health check failed account=%s platform=%s category=%s err=%v", account.ID, account.Platform, category, err)
	return models.HealthStatus{
		Healthy:   false,
		Message:   err.Error(),
		Category:  category,
		CheckedAt: c.now(),
	}
}

func (c *HealthCache) Invalidate(account *models.Account) {
	c.mu.Lock()
	delete(c.entries, healthKey{accountID: account.ID, platform: account.Platform})
	c.mu.Unlock()
}

// Size counts the entries that have not expired yet.
func (c *HealthCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Before(e.expires) {
			n++
			continue
		}
		delete(c.entries, k)
	}
	return n
}

func (c *HealthCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[healthKey]healthEntry)
	c.mu.Unlock()
}
