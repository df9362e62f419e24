package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SocialPublisher/models"
	"SocialPublisher/utils"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

var ErrAlreadyRunning = errors.New("scheduler pass already running")

type SchedulerConfig struct {
	Interval time.Duration
	// Workers bounds how many accounts are processed at the same time.
	Workers int
}

// PassSummary describes one completed scheduler pass.
type PassSummary struct {
	PassID   string        `json:"pass_id"`
	DuePosts int           `json:"due_posts"`
	Accounts int           `json:"accounts"`
	Duration time.Duration `json:"duration"`
}

type Scheduler struct {
	cron      *cron.Cron
	store     Store
	processor *BatchProcessor
	cache     *HealthCache
	stats     *Stats
	cfg       SchedulerConfig
	now       func() time.Time

	mu      sync.Mutex
	entryID cron.EntryID
	active  bool

	isRunning   atomic.Bool
	initialized atomic.Bool
}

func NewScheduler(store Store, processor *BatchProcessor, cache *HealthCache, stats *Stats, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scheduler{
		cron:      cron.New(),
		store:     store,
		processor: processor,
		cache:     cache,
		stats:     stats,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start registers the periodic pass. Starting a started scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	id, err := s.cron.AddFunc("@every "+s.cfg.Interval.String(), s.tick)
	if err != nil {
		return fmt.Errorf("scheduling publish loop: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.active = true
	s.initialized.Store(true)

	utils.Infof("scheduler started interval=%s workers=%d", s.cfg.Interval, s.cfg.Workers)
	return nil
}

// Stop prevents further ticks. A pass already in flight runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.cron.Remove(s.entryID)
	s.cron.Stop()
	s.active = false

	utils.Infof("scheduler stopped")
}

// Shutdown stops the loop and waits for a running pass, or for ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.isRunning.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TriggerOnce runs a pass synchronously, outside the regular cadence.
func (s *Scheduler) TriggerOnce(ctx context.Context) (*PassSummary, error) {
	return s.runPass(ctx)
}

func (s *Scheduler) tick() {
	if _, err := s.runPass(context.Background()); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			utils.Debugf("previous pass still running, skipping tick")
			return
		}
		utils.Errorf("scheduler pass failed: %v", err)
	}
}

func (s *Scheduler) runPass(ctx context.Context) (summary *PassSummary, err error) {
	if !s.isRunning.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.isRunning.Store(false)
	s.initialized.Store(true)

	passID := uuid.New().String()
	log := utils.WithFields(utils.Fields{"pass": passID})
	start := s.now()
	s.stats.RecordRun(start)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scheduler pass panicked: %v", r)
			err = fmt.Errorf("scheduler pass panicked: %v", r)
		}
	}()

	posts, err := s.store.GetDuePosts(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("loading due posts: %w", err)
	}

	order, byAccount := groupByAccount(posts)
	summary = &PassSummary{PassID: passID, DuePosts: len(posts), Accounts: len(order)}
	if len(posts) == 0 {
		log.Debugf("no due posts")
		summary.Duration = s.now().Sub(start)
		return summary, nil
	}
	log.Infof("processing due posts posts=%d accounts=%d", len(posts), len(order))

	sem := semaphore.NewWeighted(int64(s.cfg.Workers))
	var wg sync.WaitGroup

	for _, accountID := range order {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warnf("pass interrupted before account=%s: %v", accountID, err)
			break
		}
		wg.Add(1)
		go func(accountID string, batch []*models.Post) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("account batch panicked account=%s panic=%v", accountID, r)
				}
			}()

			if err := s.processor.ProcessAccount(ctx, accountID, batch); err != nil {
				log.Errorf("account batch failed account=%s err=%v", accountID, err)
			}
		}(accountID, byAccount[accountID])
	}
	wg.Wait()

	summary.Duration = s.now().Sub(start)
	log.Infof("pass finished duration=%s", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// groupByAccount keeps the due-date order of posts inside each account and
// the order in which accounts first appear.
func groupByAccount(posts []*models.Post) ([]string, map[string][]*models.Post) {
	var order []string
	byAccount := make(map[string][]*models.Post)
	for _, p := range posts {
		if _, seen := byAccount[p.AccountID]; !seen {
			order = append(order, p.AccountID)
		}
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}
	return order, byAccount
}

func (s *Scheduler) GetStats() models.StatsSnapshot {
	snap := s.stats.Snapshot()
	snap.IsRunning = s.isRunning.Load()
	snap.IsActive = s.IsActive()
	snap.IsInitialized = s.initialized.Load()
	snap.CacheSize = s.cache.Size()
	return snap
}

// ResetStats zeroes the counters; cache and loop state are untouched.
func (s *Scheduler) ResetStats() {
	s.stats.Reset()
	utils.Infof("scheduler stats reset")
}

// RetryPost puts a failed post back on the schedule, due immediately.
func (s *Scheduler) RetryPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.store.RetryPost(ctx, postID, s.now())
	if err != nil {
		return nil, err
	}
	utils.Infof("post rescheduled for retry post=%s retry_count=%d", post.ID, post.RetryCount)
	return post, nil
}

// AutoManage runs the loop only while at least one account can publish.
func (s *Scheduler) AutoManage(ctx context.Context) (bool, error) {
	ok, err := s.store.HasHealthyConnectedAccount(ctx)
	if err != nil {
		return s.IsActive(), fmt.Errorf("checking connected accounts: %w", err)
	}
	if ok {
		return true, s.Start()
	}
	s.Stop()
	return false, nil
}
