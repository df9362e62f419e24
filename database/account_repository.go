package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SocialPublisher/models"
)

const accountColumns = `id, user_id, platform, display_name, credentials, connected, connection_healthy,
			  sync_status, sync_error, last_synced_at, created_at, updated_at`

// SaveAccount inserts or replaces an account, encrypting its credentials.
func (d *Database) SaveAccount(ctx context.Context, account *models.Account) error {
	creds, err := d.sealCredentials(account.Credentials)
	if err != nil {
		return err
	}

	query := `INSERT INTO accounts (id, user_id, platform, display_name, credentials, connected, connection_healthy,
			  sync_status, sync_error, last_synced_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  ON CONFLICT (id)
			  DO UPDATE SET display_name = $4, credentials = $5, connected = $6, connection_healthy = $7,
			  sync_status = $8, sync_error = $9, last_synced_at = $10, updated_at = $12`

	_, err = d.DB.ExecContext(ctx, query, account.ID, account.UserID, account.Platform, account.DisplayName, creds,
		account.Connected, account.ConnectionHealthy, account.SyncStatus, nullString(account.SyncError),
		account.LastSyncedAt, account.CreatedAt, account.UpdatedAt)
	return err
}

func (d *Database) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account := &models.Account{}
	var sealed string
	var syncError sql.NullString

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	err := d.DB.QueryRowContext(ctx, query, id).Scan(&account.ID, &account.UserID, &account.Platform,
		&account.DisplayName, &sealed, &account.Connected, &account.ConnectionHealthy, &account.SyncStatus,
		&syncError, &account.LastSyncedAt, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	account.SyncError = syncError.String
	creds, err := d.openCredentials(sealed)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	account.Credentials = creds
	return account, nil
}

// MarkAccountNeedsReconnection keeps the account connected so the user
// can act on it, but flags it as unusable.
func (d *Database) MarkAccountNeedsReconnection(ctx context.Context, id, reason string) error {
	query := `UPDATE accounts SET connection_healthy = false, sync_status = $1, sync_error = $2, updated_at = $3
			  WHERE id = $4`
	return d.execAccount(ctx, query, models.SyncNeedsReconnection, reason, d.now(), id)
}

func (d *Database) DisconnectAccount(ctx context.Context, id, reason string) error {
	query := `UPDATE accounts SET connected = false, connection_healthy = false, sync_status = $1, sync_error = $2,
			  updated_at = $3 WHERE id = $4`
	return d.execAccount(ctx, query, models.SyncFailed, reason, d.now(), id)
}

func (d *Database) MarkAccountUnhealthy(ctx context.Context, id, reason string) error {
	query := `UPDATE accounts SET connection_healthy = false, sync_status = $1, sync_error = $2, updated_at = $3
			  WHERE id = $4`
	return d.execAccount(ctx, query, models.SyncError, reason, d.now(), id)
}

func (d *Database) MarkAccountHealthy(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET connection_healthy = true, sync_status = $1, sync_error = NULL,
			  last_synced_at = $2, updated_at = $3 WHERE id = $4`
	return d.execAccount(ctx, query, models.SyncSuccess, at, d.now(), id)
}

func (d *Database) HasHealthyConnectedAccount(ctx context.Context) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE connected = true AND connection_healthy = true)`
	err := d.DB.QueryRowContext(ctx, query).Scan(&exists)
	return exists, err
}

func (d *Database) execAccount(ctx context.Context, query string, args ...any) error {
	res, err := d.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (d *Database) sealCredentials(c models.Credentials) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return d.cipher.Encrypt(string(raw))
}

func (d *Database) openCredentials(sealed string) (models.Credentials, error) {
	var c models.Credentials
	if sealed == "" {
		return c, nil
	}
	plain, err := d.cipher.Decrypt(sealed)
	if err != nil {
		return c, fmt.Errorf("decrypting credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(plain), &c); err != nil {
		return c, fmt.Errorf("decoding credentials: %w", err)
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
