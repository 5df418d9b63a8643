package provider

import (
	"context"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// Credential is the provider-facing view of a connected account. Both
// PlatformAccount and WhatsAppConnection rows flatten into it.
type Credential struct {
	UserID            int64
	AccountIdentifier string
	ExternalAccountID string // provider-side account/routing id (phone-number-id for WhatsApp)
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
}

// RawMessage is a provider message normalized to the common shape.
// Each adapter owns its own pagination, MIME decoding and id scheme.
type RawMessage struct {
	ExternalID  string
	Subject     string
	Snippet     string
	Body        string
	HTMLBody    string
	FromName    string
	FromAddr    string
	ToAddr      string
	ReceivedAt  time.Time
	Attachments []RawAttachment
}

// RawAttachment describes one attachment of a fetched message. Content
// is populated only when the adapter chose to download it inline.
type RawAttachment struct {
	ID          string
	FileName    string
	ContentType string
	Size        int64
	Content     []byte
}

// Envelope is an outbound message
type Envelope struct {
	To          string
	Subject     string
	Body        string
	Attachments []OutgoingAttachment
}

// OutgoingAttachment is one attachment of an outbound message
type OutgoingAttachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Adapter is implemented once per platform. Operations that a platform
// cannot perform return ErrUnsupported; a credential the platform no
// longer accepts yields ErrReauthRequired.
type Adapter interface {
	Platform() models.Platform

	// AuthorizationURL returns the provider consent URL for connecting
	// a new account; state round-trips through the OAuth redirect.
	AuthorizationURL(state string) (string, error)

	// ExchangeCode trades an authorization code for a credential.
	ExchangeCode(ctx context.Context, code string) (*Credential, error)

	// Refresh exchanges the refresh token for a fresh access token.
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)

	// FetchRecent returns the most recent messages for the account.
	FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error)

	// Send dispatches a message and returns the provider-assigned id,
	// which may be empty when the provider does not confirm one.
	Send(ctx context.Context, cred *Credential, env *Envelope) (string, error)

	// FetchAttachment downloads one attachment's bytes on demand.
	FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error)
}

// AccountCredential flattens a stored platform account
func AccountCredential(a *models.PlatformAccount) *Credential {
	return &Credential{
		UserID:            a.UserID,
		AccountIdentifier: a.AccountIdentifier,
		ExternalAccountID: a.ExternalAccountID,
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		ExpiresAt:         a.TokenExpiresAt,
	}
}

// ConnectionCredential flattens a stored WhatsApp connection
func ConnectionCredential(c *models.WhatsAppConnection) *Credential {
	return &Credential{
		UserID:            c.UserID,
		AccountIdentifier: c.PhoneNumber,
		ExternalAccountID: c.PhoneNumberID,
		AccessToken:       c.AccessToken,
	}
}
