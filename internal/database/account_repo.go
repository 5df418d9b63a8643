package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// UpsertAccount inserts a platform account or, when the (user, platform,
// identifier) triple is already connected, refreshes its credential
// fields. An empty refresh token never clobbers a stored one: some
// providers issue the refresh token only on the first code exchange.
func (db *DB) UpsertAccount(ctx context.Context, account *models.PlatformAccount) error {
	query := `
		INSERT INTO platform_accounts (user_id, platform_type, account_identifier, access_token, refresh_token, token_expires_at, external_account_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, platform_type, account_identifier) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN platform_accounts.refresh_token ELSE excluded.refresh_token END,
			token_expires_at = excluded.token_expires_at,
			external_account_id = excluded.external_account_id,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		account.UserID,
		account.PlatformType,
		account.AccountIdentifier,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.ExternalAccountID,
		false,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	stored, err := db.GetAccount(ctx, account.UserID, account.PlatformType, account.AccountIdentifier)
	if err != nil {
		return err
	}
	*account = *stored
	return nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.PlatformAccount, error) {
	var account models.PlatformAccount
	query := `SELECT * FROM platform_accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccount returns the account for a (user, platform, identifier) triple
func (db *DB) GetAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) (*models.PlatformAccount, error) {
	var account models.PlatformAccount
	query := `SELECT * FROM platform_accounts WHERE user_id = ? AND platform_type = ? AND account_identifier = ?`
	err := db.GetContext(ctx, &account, query, userID, platform, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountsByUser returns all connected accounts for a user
func (db *DB) GetAccountsByUser(ctx context.Context, userID int64) ([]*models.PlatformAccount, error) {
	var accounts []*models.PlatformAccount
	query := `SELECT * FROM platform_accounts WHERE user_id = ? ORDER BY created_at DESC`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountsByPlatform returns a user's accounts on one platform
func (db *DB) GetAccountsByPlatform(ctx context.Context, userID int64, platform models.Platform) ([]*models.PlatformAccount, error) {
	var accounts []*models.PlatformAccount
	query := `SELECT * FROM platform_accounts WHERE user_id = ? AND platform_type = ? ORDER BY created_at DESC`
	err := db.SelectContext(ctx, &accounts, query, userID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// GetActiveAccount returns the active account for a (user, platform) pair
func (db *DB) GetActiveAccount(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformAccount, error) {
	var account models.PlatformAccount
	query := `SELECT * FROM platform_accounts WHERE user_id = ? AND platform_type = ? AND is_active`
	err := db.GetContext(ctx, &account, query, userID, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active account: %w", err)
	}
	return &account, nil
}

// UpdateAccountTokens persists a refreshed credential
func (db *DB) UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE platform_accounts
		SET access_token = ?,
		    refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
		    token_expires_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, accessToken, refreshToken, refreshToken, expiresAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	return nil
}

// SetActiveAccount makes the named account the single active one for
// its (user, platform) pair. Runs in a transaction so the partial
// unique index never observes two active rows.
func (db *DB) SetActiveAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE platform_accounts SET is_active = false, updated_at = ? WHERE user_id = ? AND platform_type = ? AND is_active`,
		now, userID, platform,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate accounts: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE platform_accounts SET is_active = true, updated_at = ? WHERE user_id = ? AND platform_type = ? AND account_identifier = ?`,
		now, userID, platform, identifier,
	)
	if err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteAccount disconnects a platform account
func (db *DB) DeleteAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	query := `DELETE FROM platform_accounts WHERE user_id = ? AND platform_type = ? AND account_identifier = ?`
	result, err := db.ExecContext(ctx, query, userID, platform, identifier)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
