package models

import "time"

// User is the identity anchor; deleting a user cascades all owned
// accounts, connections, messages and cursors.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	UserName     string    `db:"user_name" json:"userName"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
