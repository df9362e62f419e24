package database

import (
	"context"
	"database/sql"

	"SocialPublisher/models"

	"github.com/lib/pq"
)

type Media struct {
	ID         string
	UserID     string
	URL        string
	Type       models.MediaType
	MimeType   string
	ExternalID string
}

func (m *Media) Ref() models.MediaRef {
	return models.MediaRef{URL: m.URL, Type: m.Type, MimeType: m.MimeType, ExternalID: m.ExternalID}
}

func (d *Database) CreateMedia(ctx context.Context, media *Media) error {
	query := `INSERT INTO media (id, user_id, url, type, mime_type, external_id)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := d.DB.ExecContext(ctx, query, media.ID, media.UserID, media.URL, media.Type,
		media.MimeType, nullString(media.ExternalID))
	return err
}

// GetMediaByIDs returns the rows in the order of ids. Unknown ids are skipped.
func (d *Database) GetMediaByIDs(ctx context.Context, ids []string) ([]*Media, error) {
	if len(ids) == 0 {
		return []*Media{}, nil
	}

	query := `SELECT id, user_id, url, type, mime_type, external_id
			  FROM media WHERE id = ANY($1) ORDER BY array_position($1, id)`

	rows, err := d.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mediaList := []*Media{}
	for rows.Next() {
		media := &Media{}
		var externalID sql.NullString
		if err := rows.Scan(&media.ID, &media.UserID, &media.URL, &media.Type,
			&media.MimeType, &externalID); err != nil {
			return nil, err
		}
		media.ExternalID = externalID.String
		mediaList = append(mediaList, media)
	}

	return mediaList, rows.Err()
}

// SetMediaExternalID records the platform-side id of an uploaded asset.
func (d *Database) SetMediaExternalID(ctx context.Context, id, externalID string) error {
	query := `UPDATE media SET external_id = $1 WHERE id = $2`
	_, err := d.DB.ExecContext(ctx, query, externalID, id)
	return err
}
