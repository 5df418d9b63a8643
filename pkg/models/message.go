package models

import "time"

// SentByUser is the sender label recorded on locally sent messages.
// The auto-reply worker never replies to messages carrying it.
const SentByUser = "You"

// Message is the unified message record across all platforms.
//
// The dedup identity is (external message id, account identifier), not
// the external id alone: the same provider id could collide across two
// connected accounts of one platform. A nil ExternalMessageID (a sent
// message with no provider-confirmed id yet) never participates in
// dedup.
type Message struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"userId"`
	PlatformType      Platform  `db:"platform_type" json:"platformType"`
	ExternalMessageID *string   `db:"external_message_id" json:"externalMessageId"`
	AccountIdentifier string    `db:"account_identifier" json:"accountIdentifier"` // which connected account received/sent it
	Subject           string    `db:"subject" json:"subject"`
	Snippet           string    `db:"snippet" json:"snippet"`
	Body              string    `db:"body_text" json:"body"`
	HTMLBody          string    `db:"body_html" json:"htmlBody,omitempty"`
	FromName          string    `db:"from_name" json:"fromName"`
	FromAddr          string    `db:"from_addr" json:"fromAddr"`
	ToAddr            string    `db:"to_addr" json:"toAddr"`
	ReceivedAt        time.Time `db:"received_at" json:"receivedAt"`
	IsRead            bool      `db:"is_read" json:"isRead"`
	HasAttachments    bool      `db:"has_attachments" json:"hasAttachments"`
	IsNew             bool      `db:"is_new" json:"isNew"`
	IsAutoReplied     bool      `db:"is_auto_replied" json:"isAutoReplied"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`

	Attachments []*MessageAttachment `db:"-" json:"attachments,omitempty"`
}

// MessageAttachment belongs to exactly one message. Content is stored
// inline only below the configured small-object threshold; above it,
// Content is nil and the bytes are fetched on demand from the provider.
type MessageAttachment struct {
	ID           int64     `db:"id" json:"id"`
	MessageID    int64     `db:"message_id" json:"messageId"`
	AttachmentID string    `db:"attachment_id" json:"attachmentId"` // provider-assigned id
	FileName     string    `db:"file_name" json:"fileName"`
	ContentType  string    `db:"content_type" json:"contentType"`
	Size         int64     `db:"size" json:"size"`
	Content      []byte    `db:"content" json:"-"` // raw bytes are served by the attachment endpoint, never inline
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
