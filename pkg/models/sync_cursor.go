package models

import "time"

// SyncCursor records when a (user, platform) pair was last refreshed
// from its provider. Absence means "never synced" and forces a refresh.
type SyncCursor struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	PlatformType Platform  `db:"platform_type"`
	LastSyncTime time.Time `db:"last_sync_time"`
}
