package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SocialPublisher/database"
	"SocialPublisher/models"
	"SocialPublisher/publishers"

	"github.com/prometheus/client_golang/prometheus"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store with the same conditional transitions as
// the Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	posts    map[string]*models.Post
	accounts map[string]*models.Account

	getAccountErr map[string]error
	dueCalls      atomic.Int32
	accountLog    []string
	usage         []string
}

func newMemStore() *memStore {
	return &memStore{
		posts:         make(map[string]*models.Post),
		accounts:      make(map[string]*models.Account),
		getAccountErr: make(map[string]error),
	}
}

func (s *memStore) addAccount(a *models.Account) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return a
}

func (s *memStore) addPost(p *models.Post) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = models.StatusScheduled
	}
	s.posts[p.ID] = p
	return p
}

func (s *memStore) post(id string) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *memStore) account(id string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[id]
}

func (s *memStore) accountEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accountLog...)
}

func (s *memStore) GetDuePosts(_ context.Context, now time.Time) ([]*models.Post, error) {
	s.dueCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Post
	for _, p := range s.posts {
		a, ok := s.accounts[p.AccountID]
		if p.Status != models.StatusScheduled || p.ScheduledDate.After(now) || (ok && !a.Connected) {
			continue
		}
		cp := *p
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledDate.Equal(due[j].ScheduledDate) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledDate.Before(due[j].ScheduledDate)
	})
	return due, nil
}

func (s *memStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, database.ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getAccountErr[id]; err != nil {
		return nil, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) scheduled(id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok || p.Status != models.StatusScheduled {
		return nil, database.ErrPostNotScheduled
	}
	return p, nil
}

func (s *memStore) MarkPostPublished(_ context.Context, id, externalID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.scheduled(id)
	if err != nil {
		return err
	}
	p.Status = models.StatusPublished
	p.ExternalPostID = externalID
	p.PublishedAt = &publishedAt
	p.PublishError = ""
	return nil
}

func (s *memStore) MarkPostFailed(_ context.Context, id, reason string, failedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.scheduled(id)
	if err != nil {
		return err
	}
	p.Status = models.StatusFailed
	p.PublishError = reason
	p.FailedAt = &failedAt
	return nil
}

func (s *memStore) PostponePost(_ context.Context, id string, until time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.scheduled(id)
	if err != nil {
		return err
	}
	p.ScheduledDate = until
	p.PublishError = reason
	return nil
}

func (s *memStore) RetryPost(_ context.Context, id string, scheduledAt time.Time) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, database.ErrPostNotFound
	}
	if p.Status != models.StatusFailed {
		return nil, database.ErrPostNotFailed
	}
	p.Status = models.StatusScheduled
	p.ScheduledDate = scheduledAt
	p.PublishError = ""
	p.FailedAt = nil
	p.RetryCount++
	cp := *p
	return &cp, nil
}

func (s *memStore) updateAccount(id, event string, fn func(a *models.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return database.ErrAccountNotFound
	}
	fn(a)
	s.accountLog = append(s.accountLog, event+":"+id)
	return nil
}

func (s *memStore) MarkAccountNeedsReconnection(_ context.Context, id, reason string) error {
	return s.updateAccount(id, "needs_reconnection", func(a *models.Account) {
		a.ConnectionHealthy = false
		a.SyncStatus = models.SyncNeedsReconnection
		a.SyncError = reason
	})
}

func (s *memStore) DisconnectAccount(_ context.Context, id, reason string) error {
	return s.updateAccount(id, "disconnect", func(a *models.Account) {
		a.Connected = false
		a.ConnectionHealthy = false
		a.SyncStatus = models.SyncFailed
		a.SyncError = reason
	})
}

func (s *memStore) MarkAccountUnhealthy(_ context.Context, id, reason string) error {
	return s.updateAccount(id, "unhealthy", func(a *models.Account) {
		a.ConnectionHealthy = false
		a.SyncStatus = models.SyncError
		a.SyncError = reason
	})
}

func (s *memStore) MarkAccountHealthy(_ context.Context, id string, at time.Time) error {
	return s.updateAccount(id, "healthy", func(a *models.Account) {
		a.ConnectionHealthy = true
		a.SyncStatus = models.SyncSuccess
		a.SyncError = ""
		a.LastSyncedAt = &at
	})
}

func (s *memStore) report(match func(p *models.Post) bool) []models.ReportEntry {
	var out []models.ReportEntry
	for _, p := range s.posts {
		if !match(p) {
			continue
		}
		e := models.ReportEntry{
			PostID:         p.ID,
			Platform:       p.Platform,
			Content:        p.Content,
			ScheduledDate:  p.ScheduledDate,
			PublishedAt:    p.PublishedAt,
			ExternalPostID: p.ExternalPostID,
			FailedAt:       p.FailedAt,
			Reason:         p.PublishError,
		}
		if a, ok := s.accounts[p.AccountID]; ok {
			e.AccountName = a.DisplayName
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out
}

func (s *memStore) GetPublishedPosts(_ context.Context, since time.Time) ([]models.ReportEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report(func(p *models.Post) bool {
		return p.Status == models.StatusPublished && p.PublishedAt != nil && !p.PublishedAt.Before(since)
	}), nil
}

func (s *memStore) GetFailedPosts(_ context.Context, since time.Time) ([]models.ReportEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report(func(p *models.Post) bool {
		return p.Status == models.StatusFailed && p.FailedAt != nil && !p.FailedAt.Before(since)
	}), nil
}

func (s *memStore) GetUpcomingPosts(_ context.Context, now time.Time, limit int) ([]models.ReportEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.report(func(p *models.Post) bool {
		return p.Status == models.StatusScheduled && p.ScheduledDate.After(now)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) HasHealthyConnectedAccount(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Connected && a.ConnectionHealthy {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) RecordPublish(_ context.Context, userID string, platform models.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, userID+":"+string(platform))
	return nil
}

// fakePublisher answers with whatever its function fields return.
type fakePublisher struct {
	platform     models.Platform
	checkFunc    func(account *models.Account) error
	validateFunc func(ctx context.Context, account *models.Account) error
	publishFunc  func(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult

	validateCalls atomic.Int32
	publishCalls  atomic.Int32
}

func (f *fakePublisher) Platform() models.Platform { return f.platform }

func (f *fakePublisher) CheckCredentials(account *models.Account) error {
	if f.checkFunc != nil {
		return f.checkFunc(account)
	}
	return nil
}

func (f *fakePublisher) ValidateCredentials(ctx context.Context, account *models.Account) error {
	f.validateCalls.Add(1)
	if f.validateFunc != nil {
		return f.validateFunc(ctx, account)
	}
	return nil
}

func (f *fakePublisher) Publish(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult {
	f.publishCalls.Add(1)
	if f.publishFunc != nil {
		return f.publishFunc(ctx, post, account)
	}
	return models.PublishResult{
		Platform:    f.platform,
		Success:     true,
		PostID:      "ext-" + post.ID,
		PublishedAt: testNow,
	}
}

func failedResult(platform models.Platform, category models.ErrorCategory, message string) models.PublishResult {
	return models.PublishResult{Platform: platform, Message: message, ErrorCategory: category}
}

type harness struct {
	store     *memStore
	cache     *HealthCache
	stats     *Stats
	processor *BatchProcessor
	scheduler *Scheduler
}

func newHarness(t *testing.T, store *memStore, grace int, pubs ...publishers.PlatformPublisher) *harness {
	t.Helper()
	svc := NewPublisherService(publishers.NewRegistry(pubs...), time.Minute)
	cache := NewHealthCache(svc.ValidateAccount, HealthCacheConfig{})
	cache.now = func() time.Time { return testNow }
	stats := NewStats(prometheus.NewRegistry())

	processor := NewBatchProcessor(store, svc, cache, stats, BatchProcessorConfig{
		Policy:       NewPolicy(0, 0),
		UnknownGrace: grace,
		Usage:        store,
	})
	processor.now = func() time.Time { return testNow }

	scheduler := NewScheduler(store, processor, cache, stats, SchedulerConfig{Interval: time.Hour, Workers: 2})
	scheduler.now = func() time.Time { return testNow }
	t.Cleanup(scheduler.Stop)

	return &harness{store: store, cache: cache, stats: stats, processor: processor, scheduler: scheduler}
}

func healthyAccount(id string, platform models.Platform) *models.Account {
	return &models.Account{
		ID:                id,
		UserID:            "user-1",
		Platform:          platform,
		DisplayName:       "Account " + id,
		Connected:         true,
		ConnectionHealthy: true,
		SyncStatus:        models.SyncSuccess,
	}
}

func duePost(id, accountID string, platform models.Platform, offset time.Duration) *models.Post {
	return &models.Post{
		ID:            id,
		UserID:        "user-1",
		AccountID:     accountID,
		Platform:      platform,
		Content:       "content of " + id,
		ScheduledDate: testNow.Add(-offset),
		Status:        models.StatusScheduled,
	}
}
