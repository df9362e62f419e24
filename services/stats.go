package services

import (
	"fmt"
	"sync"
	"time"

	"SocialPublisher/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the scheduler counters. The snapshot counters can be reset
// from the admin API; the Prometheus counters stay monotonic.
type Stats struct {
	mu       sync.Mutex
	counters models.StatsSnapshot
	lastRun  *time.Time

	runs      prometheus.Counter
	processed prometheus.Counter
	published prometheus.Counter
	failed    prometheus.Counter
	postponed prometheus.Counter
	errors    *prometheus.CounterVec
}

func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "social_scheduler_runs_total",
			Help: "Scheduler passes started",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "social_scheduler_posts_processed_total",
			Help: "Due posts handled by the scheduler",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "social_scheduler_posts_published_total",
			Help: "Posts published successfully",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "social_scheduler_posts_failed_total",
			Help: "Posts marked as permanently failed",
		}),
		postponed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "social_scheduler_posts_postponed_total",
			Help: "Posts pushed back after a transient failure",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_scheduler_errors_total",
			Help: "Publish and health check failures by category",
		}, []string{"category"}),
	}

	if reg != nil {
		reg.MustRegister(s.runs, s.processed, s.published, s.failed, s.postponed, s.errors)
	}
	return s
}

func (s *Stats) RecordRun(at time.Time) {
	s.mu.Lock()
	s.counters.TotalRuns++
	s.lastRun = &at
	s.mu.Unlock()
	s.runs.Inc()
}

func (s *Stats) RecordPublished() {
	s.mu.Lock()
	s.counters.PostsProcessed++
	s.counters.PostsPublished++
	s.mu.Unlock()
	s.processed.Inc()
	s.published.Inc()
}

func (s *Stats) RecordFailed(category models.ErrorCategory) {
	s.mu.Lock()
	s.counters.PostsProcessed++
	s.counters.PostsFailed++
	s.countCategory(category)
	s.mu.Unlock()
	s.processed.Inc()
	s.failed.Inc()
	s.errors.WithLabelValues(string(category)).Inc()
}

// RecordPostponed counts the error category but not a failure.
func (s *Stats) RecordPostponed(category models.ErrorCategory) {
	s.mu.Lock()
	s.counters.PostsProcessed++
	s.counters.PostsPostponed++
	s.countCategory(category)
	s.mu.Unlock()
	s.processed.Inc()
	s.postponed.Inc()
	s.errors.WithLabelValues(string(category)).Inc()
}

// countCategory must be called with mu held.
func (s *Stats) countCategory(category models.ErrorCategory) {
	switch category {
	case models.ErrorRateLimit:
		s.counters.RateLimitErrors++
	case models.ErrorAuthentication:
		s.counters.AuthenticationErrors++
	case models.ErrorPermissions:
		s.counters.PermissionErrors++
	case models.ErrorNetwork:
		s.counters.NetworkErrors++
	case models.ErrorDuplicateContent:
		s.counters.DuplicateContentErrors++
	case models.ErrorContentPolicy:
		s.counters.ContentPolicyErrors++
	default:
		s.counters.UnknownErrors++
	}
}

// Snapshot returns the counters, last run time and success rate. Loop
// state and cache size are filled in by the scheduler.
func (s *Stats) Snapshot() models.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.counters
	if s.lastRun != nil {
		t := *s.lastRun
		snap.LastRunTime = &t
	}
	snap.SuccessRate = successRate(snap.PostsPublished, snap.PostsProcessed)
	return snap
}

// Reset zeroes the counters. The last run time is loop state and survives.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.counters = models.StatsSnapshot{}
	s.mu.Unlock()
}

func successRate(published, processed int64) string {
	if processed == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(published)*100/float64(processed))
}
