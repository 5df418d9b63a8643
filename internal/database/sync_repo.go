package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// GetSyncCursors returns the last sync time per platform for a user.
// Platforms missing from the map have never been synced.
func (db *DB) GetSyncCursors(ctx context.Context, userID int64) (map[models.Platform]time.Time, error) {
	var cursors []*models.SyncCursor
	query := `SELECT * FROM sync_cursors WHERE user_id = ?`
	err := db.SelectContext(ctx, &cursors, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursors: %w", err)
	}

	times := make(map[models.Platform]time.Time, len(cursors))
	for _, c := range cursors {
		times[c.PlatformType] = c.LastSyncTime
	}
	return times, nil
}

// TouchSyncCursor advances the cursor for a (user, platform) pair to now
func (db *DB) TouchSyncCursor(ctx context.Context, userID int64, platform models.Platform) error {
	query := `
		INSERT INTO sync_cursors (user_id, platform_type, last_sync_time)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, platform_type) DO UPDATE SET last_sync_time = excluded.last_sync_time
	`
	_, err := db.ExecContext(ctx, query, userID, platform, time.Now())
	if err != nil {
		return fmt.Errorf("failed to touch sync cursor: %w", err)
	}
	return nil
}
