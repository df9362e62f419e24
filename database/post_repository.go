package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"SocialPublisher/models"

	"github.com/lib/pq"
)

const postColumns = `p.id, p.user_id, p.account_id, p.platform, p.content, p.media_ids, p.status, p.scheduled_date,
			  p.external_post_id, p.published_at, p.publish_error, p.failed_at, p.retry_count, p.created_at, p.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type postRow struct {
	post     *models.Post
	mediaIDs []string
}

func scanPost(row scanner) (*postRow, error) {
	post := &models.Post{}
	var mediaIDs []string
	var externalID, publishError sql.NullString

	err := row.Scan(&post.ID, &post.UserID, &post.AccountID, &post.Platform, &post.Content,
		pq.Array(&mediaIDs), &post.Status, &post.ScheduledDate, &externalID, &post.PublishedAt,
		&publishError, &post.FailedAt, &post.RetryCount, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.ExternalPostID = externalID.String
	post.PublishError = publishError.String
	return &postRow{post: post, mediaIDs: mediaIDs}, nil
}

func (d *Database) CreatePost(ctx context.Context, post *models.Post, mediaIDs []string) error {
	query := `INSERT INTO posts (id, user_id, account_id, platform, content, media_ids, status, scheduled_date,
			  retry_count, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := d.DB.ExecContext(ctx, query, post.ID, post.UserID, post.AccountID, post.Platform, post.Content,
		pq.Array(mediaIDs), post.Status, post.ScheduledDate, post.RetryCount, post.CreatedAt, post.UpdatedAt)
	return err
}

// GetDuePosts returns scheduled posts whose date has passed and whose
// account is still connected, oldest first, with media attached.
func (d *Database) GetDuePosts(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
			  FROM posts p JOIN accounts a ON a.id = p.account_id
			  WHERE p.status = $1 AND p.scheduled_date <= $2 AND a.connected = true
			  ORDER BY p.scheduled_date ASC`

	rows, err := d.DB.QueryContext(ctx, query, models.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*postRow
	for rows.Next() {
		pr, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.attachMedia(ctx, due); err != nil {
		return nil, err
	}

	posts := make([]*models.Post, len(due))
	for i, pr := range due {
		posts[i] = pr.post
	}
	return posts, nil
}

func (d *Database) GetPost(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.id = $1`

	pr, err := scanPost(d.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := d.attachMedia(ctx, []*postRow{pr}); err != nil {
		return nil, err
	}
	return pr.post, nil
}

// attachMedia loads all referenced media in one query and fills each post
// in the order its ids were stored.
func (d *Database) attachMedia(ctx context.Context, rows []*postRow) error {
	var ids []string
	for _, pr := range rows {
		ids = append(ids, pr.mediaIDs...)
	}
	if len(ids) == 0 {
		return nil
	}

	media, err := d.GetMediaByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*Media, len(media))
	for _, m := range media {
		byID[m.ID] = m
	}

	for _, pr := range rows {
		for _, id := range pr.mediaIDs {
			if m, ok := byID[id]; ok {
				pr.post.Media = append(pr.post.Media, m.Ref())
			}
		}
	}
	return nil
}

func (d *Database) MarkPostPublished(ctx context.Context, id, externalID string, publishedAt time.Time) error {
	query := `UPDATE posts SET status = $1, external_post_id = $2, published_at = $3, publish_error = NULL,
			  updated_at = $4 WHERE id = $5 AND status = $6`
	return d.execTransition(ctx, query, models.StatusPublished, externalID, publishedAt, d.now(), id,
		models.StatusScheduled)
}

func (d *Database) MarkPostFailed(ctx context.Context, id, reason string, failedAt time.Time) error {
	query := `UPDATE posts SET status = $1, publish_error = $2, failed_at = $3, updated_at = $4
			  WHERE id = $5 AND status = $6`
	return d.execTransition(ctx, query, models.StatusFailed, reason, failedAt, d.now(), id,
		models.StatusScheduled)
}

// PostponePost moves the due date of a still scheduled post.
func (d *Database) PostponePost(ctx context.Context, id string, until time.Time, reason string) error {
	query := `UPDATE posts SET scheduled_date = $1, publish_error = $2, updated_at = $3
			  WHERE id = $4 AND status = $5`
	return d.execTransition(ctx, query, until, reason, d.now(), id, models.StatusScheduled)
}

// RetryPost puts a failed post back to scheduled at scheduledAt and bumps
// its retry counter.
func (d *Database) RetryPost(ctx context.Context, id string, scheduledAt time.Time) (*models.Post, error) {
	query := `UPDATE posts p SET status = $1, scheduled_date = $2, publish_error = NULL, failed_at = NULL,
			  retry_count = p.retry_count + 1, updated_at = $3
			  WHERE p.id = $4 AND p.status = $5
			  RETURNING ` + postColumns

	pr, err := scanPost(d.DB.QueryRowContext(ctx, query, models.StatusScheduled, scheduledAt, d.now(), id,
		models.StatusFailed))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := d.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrPostNotFound
		}
		return nil, ErrPostNotFailed
	}
	if err != nil {
		return nil, err
	}

	if err := d.attachMedia(ctx, []*postRow{pr}); err != nil {
		return nil, err
	}
	return pr.post, nil
}

func (d *Database) execTransition(ctx context.Context, query string, args ...any) error {
	res, err := d.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPostNotScheduled
	}
	return nil
}
