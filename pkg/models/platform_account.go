package models

import "time"

// PlatformAccount is one OAuth-connected identity on a platform.
// At most one account per (user, platform) is active at a time; the
// active account is the one used for outbound sends when the caller
// does not name an account explicitly.
type PlatformAccount struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"userId"`
	PlatformType      Platform   `db:"platform_type" json:"platformType"`
	AccountIdentifier string     `db:"account_identifier" json:"accountIdentifier"` // email for Gmail/Outlook, profile id for LinkedIn, handle for Twitter
	AccessToken       string     `db:"access_token" json:"-"`
	RefreshToken      string     `db:"refresh_token" json:"-"`                           // empty when the provider does not issue one
	TokenExpiresAt    *time.Time `db:"token_expires_at" json:"tokenExpiresAt,omitempty"` // nil for non-expiring credentials
	ExternalAccountID string     `db:"external_account_id" json:"externalAccountId"`
	IsActive          bool       `db:"is_active" json:"isActive"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}
