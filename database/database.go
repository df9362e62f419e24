package database

import (
	"database/sql"
	"errors"
	"time"

	"SocialPublisher/utils"

	_ "github.com/lib/pq"
)

var (
	ErrPostNotFound     = errors.New("post not found")
	ErrPostNotFailed    = errors.New("post is not in failed state")
	ErrPostNotScheduled = errors.New("post is no longer scheduled")
	ErrAccountNotFound  = errors.New("account not found")
)

type Database struct {
	DB     *sql.DB
	cipher *utils.TokenCipher
	now    func() time.Time
}

func NewDatabase(connStr string, cipher *utils.TokenCipher) (*Database, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	database := New(db, cipher)
	if err := database.createTables(); err != nil {
		return nil, err
	}

	return database, nil
}

// New wraps an open connection without touching the schema.
func New(db *sql.DB, cipher *utils.TokenCipher) *Database {
	return &Database{DB: db, cipher: cipher, now: time.Now}
}

func (d *Database) Close() error {
	return d.DB.Close()
}

func (d *Database) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			platform VARCHAR(50) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			credentials TEXT NOT NULL DEFAULT '',
			connected BOOLEAN NOT NULL DEFAULT true,
			connection_healthy BOOLEAN NOT NULL DEFAULT true,
			sync_status VARCHAR(50) NOT NULL DEFAULT 'pending',
			sync_error TEXT,
			last_synced_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS media (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			url VARCHAR(1000) NOT NULL DEFAULT '',
			type VARCHAR(50) NOT NULL DEFAULT '',
			mime_type VARCHAR(100) NOT NULL DEFAULT '',
			external_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			account_id VARCHAR(255) NOT NULL,
			platform VARCHAR(50) NOT NULL,
			content TEXT NOT NULL,
			media_ids TEXT[],
			status VARCHAR(50) NOT NULL,
			scheduled_date TIMESTAMP NOT NULL,
			external_post_id VARCHAR(255),
			published_at TIMESTAMP,
			publish_error TEXT,
			failed_at TIMESTAMP,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_status_scheduled ON posts (status, scheduled_date)`,
		`CREATE TABLE IF NOT EXISTS usage_counters (
			user_id VARCHAR(255) NOT NULL,
			platform VARCHAR(50) NOT NULL,
			period DATE NOT NULL,
			posts_published INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, platform, period)
		)`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
