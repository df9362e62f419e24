package database

import (
	"context"
	"database/sql"
	"time"

	"SocialPublisher/models"
)

const reportColumns = `p.id, p.platform, a.display_name, p.content, p.scheduled_date,
			  p.published_at, p.external_post_id, p.failed_at, p.publish_error`

func (d *Database) GetPublishedPosts(ctx context.Context, since time.Time) ([]models.ReportEntry, error) {
	query := `SELECT ` + reportColumns + `
			  FROM posts p JOIN accounts a ON a.id = p.account_id
			  WHERE p.status = $1 AND p.published_at >= $2
			  ORDER BY p.published_at DESC`
	return d.queryReport(ctx, query, models.StatusPublished, since)
}

func (d *Database) GetFailedPosts(ctx context.Context, since time.Time) ([]models.ReportEntry, error) {
	query := `SELECT ` + reportColumns + `
			  FROM posts p JOIN accounts a ON a.id = p.account_id
			  WHERE p.status = $1 AND p.failed_at >= $2
			  ORDER BY p.failed_at DESC`
	return d.queryReport(ctx, query, models.StatusFailed, since)
}

func (d *Database) GetUpcomingPosts(ctx context.Context, now time.Time, limit int) ([]models.ReportEntry, error) {
	query := `SELECT ` + reportColumns + `
			  FROM posts p JOIN accounts a ON a.id = p.account_id
			  WHERE p.status = $1 AND p.scheduled_date > $2
			  ORDER BY p.scheduled_date ASC
			  LIMIT $3`
	return d.queryReport(ctx, query, models.StatusScheduled, now, limit)
}

func (d *Database) queryReport(ctx context.Context, query string, args ...any) ([]models.ReportEntry, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.ReportEntry{}
	for rows.Next() {
		var e models.ReportEntry
		var externalID, reason sql.NullString
		if err := rows.Scan(&e.PostID, &e.Platform, &e.AccountName, &e.Content, &e.ScheduledDate,
			&e.PublishedAt, &externalID, &e.FailedAt, &reason); err != nil {
			return nil, err
		}
		e.ExternalPostID = externalID.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
