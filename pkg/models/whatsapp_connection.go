package models

import "time"

// WhatsAppConnection is a WhatsApp Business account keyed by phone
// number. There is no authorization-code flow: the credential is
// supplied directly when the user connects. At most one connection
// per user is connected at a time.
type WhatsAppConnection struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"userId"`
	PhoneNumberID string    `db:"phone_number_id" json:"phoneNumberId"` // provider routing id, resolves webhook deliveries
	PhoneNumber   string    `db:"phone_number" json:"phoneNumber"`
	AccessToken   string    `db:"access_token" json:"-"`
	BusinessName  string    `db:"business_name" json:"businessName"`
	IsConnected   bool      `db:"is_connected" json:"isConnected"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
