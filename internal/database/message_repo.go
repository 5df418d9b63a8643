package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// CreateMessage inserts a message, silently skipping rows whose
// (user, external id, account identifier) key is already stored.
// Messages without an external id always insert: the unique index
// treats NULLs as distinct, so unresolved ids never collide.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT OR IGNORE INTO messages (user_id, platform_type, external_message_id, account_identifier, subject, snippet, body_text, body_html, from_name, from_addr, to_addr, received_at, is_read, has_attachments, is_new, is_auto_replied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		msg.UserID,
		msg.PlatformType,
		msg.ExternalMessageID,
		msg.AccountIdentifier,
		msg.Subject,
		msg.Snippet,
		msg.Body,
		msg.HTMLBody,
		msg.FromName,
		msg.FromAddr,
		msg.ToAddr,
		msg.ReceivedAt,
		msg.IsRead,
		msg.HasAttachments,
		msg.IsNew,
		msg.IsAutoReplied,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// CreateMessageWithAttachments inserts a message and its attachment
// rows in one transaction. A duplicate message inserts nothing.
func (db *DB) CreateMessageWithAttachments(ctx context.Context, msg *models.Message, attachments []*models.MessageAttachment) error {
	if len(attachments) == 0 {
		return db.CreateMessage(ctx, msg)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (user_id, platform_type, external_message_id, account_identifier, subject, snippet, body_text, body_html, from_name, from_addr, to_addr, received_at, is_read, has_attachments, is_new, is_auto_replied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.UserID, msg.PlatformType, msg.ExternalMessageID, msg.AccountIdentifier,
		msg.Subject, msg.Snippet, msg.Body, msg.HTMLBody,
		msg.FromName, msg.FromAddr, msg.ToAddr, msg.ReceivedAt,
		msg.IsRead, true, msg.IsNew, msg.IsAutoReplied, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, att := range attachments {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_attachments (message_id, attachment_id, file_name, content_type, size, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, att.AttachmentID, att.FileName, att.ContentType, att.Size, att.Content, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		if attID, err := res.LastInsertId(); err == nil {
			att.ID = attID
		}
		att.MessageID = id
		att.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	msg.ID = id
	msg.HasAttachments = true
	msg.CreatedAt = now
	return nil
}

// ListMessages returns a user's stored messages, newest first,
// optionally filtered by platform and read state.
func (db *DB) ListMessages(ctx context.Context, userID int64, platform *models.Platform, unread *bool, limit int) ([]*models.Message, error) {
	query := `SELECT * FROM messages WHERE user_id = ?`
	args := []interface{}{userID}
	if platform != nil {
		query += ` AND platform_type = ?`
		args = append(args, *platform)
	}
	if unread != nil {
		query += ` AND is_read = ?`
		args = append(args, !*unread)
	}
	query += ` ORDER BY received_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var messages []*models.Message
	err := db.SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// GetMessageByExternal returns a message by its dedup key, with
// attachment metadata loaded.
func (db *DB) GetMessageByExternal(ctx context.Context, userID int64, externalID, accountIdentifier string) (*models.Message, error) {
	var msg models.Message
	query := `SELECT * FROM messages WHERE user_id = ? AND external_message_id = ? AND account_identifier = ?`
	err := db.GetContext(ctx, &msg, query, userID, externalID, accountIdentifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	attachments, err := db.GetAttachmentsForMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	msg.Attachments = attachments
	return &msg, nil
}

// ExistingExternalIDs returns the set of external ids already stored
// for one connected account, used by the append-only merge.
func (db *DB) ExistingExternalIDs(ctx context.Context, userID int64, platform models.Platform, accountIdentifier string) (map[string]struct{}, error) {
	var ids []string
	query := `
		SELECT external_message_id FROM messages
		WHERE user_id = ? AND platform_type = ? AND account_identifier = ? AND external_message_id IS NOT NULL
	`
	err := db.SelectContext(ctx, &ids, query, userID, platform, accountIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to list external ids: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// HasExternalID reports whether a message with this external id exists
// for the platform. Webhook payloads are always for one provider, so
// platform plus id is a sufficient dedup check there.
func (db *DB) HasExternalID(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	var n int
	query := `SELECT COUNT(1) FROM messages WHERE platform_type = ? AND external_message_id = ?`
	err := db.GetContext(ctx, &n, query, platform, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to check external id: %w", err)
	}
	return n > 0, nil
}

// MarkMessageRead marks a message as read
func (db *DB) MarkMessageRead(ctx context.Context, id int64) error {
	query := `UPDATE messages SET is_read = true WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark message as read: %w", err)
	}
	return nil
}

// MarkAutoReplied flips a message out of the auto-reply candidate set
// after a successful reply.
func (db *DB) MarkAutoReplied(ctx context.Context, id int64) error {
	query := `UPDATE messages SET is_auto_replied = true, is_new = false WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark message as auto-replied: %w", err)
	}
	return nil
}

// MarkSkipped drops a message from the candidate set without recording
// a reply (unsupported platform).
func (db *DB) MarkSkipped(ctx context.Context, id int64) error {
	query := `UPDATE messages SET is_new = false WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark message as skipped: %w", err)
	}
	return nil
}

// ListAutoReplyCandidates returns inbound messages awaiting an
// auto-reply. Locally sent messages are excluded to guard against
// reply loops.
func (db *DB) ListAutoReplyCandidates(ctx context.Context) ([]*models.Message, error) {
	var messages []*models.Message
	query := `
		SELECT * FROM messages
		WHERE is_new AND NOT is_auto_replied AND from_name != ?
		ORDER BY received_at ASC
	`
	err := db.SelectContext(ctx, &messages, query, models.SentByUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-reply candidates: %w", err)
	}
	return messages, nil
}

// GetAttachment returns one attachment row of a message
func (db *DB) GetAttachment(ctx context.Context, messageID int64, attachmentID string) (*models.MessageAttachment, error) {
	var att models.MessageAttachment
	query := `SELECT * FROM message_attachments WHERE message_id = ? AND attachment_id = ?`
	err := db.GetContext(ctx, &att, query, messageID, attachmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}

// GetAttachmentsForMessage returns all attachment rows of a message
func (db *DB) GetAttachmentsForMessage(ctx context.Context, messageID int64) ([]*models.MessageAttachment, error) {
	var attachments []*models.MessageAttachment
	query := `SELECT * FROM message_attachments WHERE message_id = ? ORDER BY id`
	err := db.SelectContext(ctx, &attachments, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return attachments, nil
}
