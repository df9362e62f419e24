package database

import (
	"context"

	"SocialPublisher/models"
)

// RecordPublish counts one published post against the user's daily usage.
func (d *Database) RecordPublish(ctx context.Context, userID string, platform models.Platform) error {
	query := `INSERT INTO usage_counters (user_id, platform, period, posts_published)
			  VALUES ($1, $2, $3, 1)
			  ON CONFLICT (user_id, platform, period)
			  DO UPDATE SET posts_published = usage_counters.posts_published + 1`
	_, err := d.DB.ExecContext(ctx, query, userID, platform, d.now().UTC().Format("2006-01-02"))
	return err
}

