package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"SocialPublisher/models"
)

const (
	defaultReportHours  = 24
	upcomingReportLimit = 10
	reportContentRunes  = 100
)

// GetPublishingReport lists what was published and what failed in the last
// hours, plus the next posts in line. Non-positive hours mean 24.
func (s *Scheduler) GetPublishingReport(ctx context.Context, hours int) (*models.PublishingReport, error) {
	if hours <= 0 {
		hours = defaultReportHours
	}
	now := s.now()
	since := now.Add(-time.Duration(hours) * time.Hour)

	published, err := s.store.GetPublishedPosts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading published posts: %w", err)
	}
	failed, err := s.store.GetFailedPosts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading failed posts: %w", err)
	}
	upcoming, err := s.store.GetUpcomingPosts(ctx, now, upcomingReportLimit)
	if err != nil {
		return nil, fmt.Errorf("loading upcoming posts: %w", err)
	}

	for i := range failed {
		failed[i].Content = truncateRunes(failed[i].Content, reportContentRunes)
	}

	return &models.PublishingReport{
		WindowHours: hours,
		Since:       since,
		GeneratedAt: now,
		Published:   nonNil(published),
		Failed:      nonNil(failed),
		Upcoming:    nonNil(upcoming),
	}, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

func nonNil(entries []models.ReportEntry) []models.ReportEntry {
	if entries == nil {
		return []models.ReportEntry{}
	}
	return entries
}
