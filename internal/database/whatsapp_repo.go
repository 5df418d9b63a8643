package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// UpsertWhatsAppConnection connects a WhatsApp Business number for a
// user, disconnecting any previously connected number so exactly one
// connection stays active.
func (db *DB) UpsertWhatsAppConnection(ctx context.Context, conn *models.WhatsAppConnection) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE whatsapp_connections SET is_connected = false, updated_at = ? WHERE user_id = ? AND is_connected`,
		now, conn.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to disconnect previous connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO whatsapp_connections (user_id, phone_number_id, phone_number, access_token, business_name, is_connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, true, ?, ?)
		ON CONFLICT(user_id, phone_number) DO UPDATE SET
			phone_number_id = excluded.phone_number_id,
			access_token = excluded.access_token,
			business_name = excluded.business_name,
			is_connected = true,
			updated_at = excluded.updated_at`,
		conn.UserID, conn.PhoneNumberID, conn.PhoneNumber, conn.AccessToken, conn.BusinessName, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert whatsapp connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	stored, err := db.GetConnectedWhatsApp(ctx, conn.UserID)
	if err != nil {
		return err
	}
	*conn = *stored
	return nil
}

// GetConnectedWhatsApp returns the user's connected WhatsApp number
func (db *DB) GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error) {
	var conn models.WhatsAppConnection
	query := `SELECT * FROM whatsapp_connections WHERE user_id = ? AND is_connected`
	err := db.GetContext(ctx, &conn, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get whatsapp connection: %w", err)
	}
	return &conn, nil
}

// GetWhatsAppByPhoneNumberID resolves the connection a webhook delivery
// is routed to.
func (db *DB) GetWhatsAppByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppConnection, error) {
	var conn models.WhatsAppConnection
	query := `SELECT * FROM whatsapp_connections WHERE phone_number_id = ? AND is_connected`
	err := db.GetContext(ctx, &conn, query, phoneNumberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get whatsapp connection: %w", err)
	}
	return &conn, nil
}

// DisconnectWhatsApp disconnects the user's connected number
func (db *DB) DisconnectWhatsApp(ctx context.Context, userID int64) error {
	query := `UPDATE whatsapp_connections SET is_connected = false, updated_at = ? WHERE user_id = ? AND is_connected`
	result, err := db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to disconnect whatsapp: %w", err)
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
