package database

import (
	"context"
	"testing"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

func TestSyncCursors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	user := testUser(t, db)

	cursors, err := db.GetSyncCursors(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetSyncCursors: %v", err)
	}
	if len(cursors) != 0 {
		t.Errorf("never-synced user has %d cursors", len(cursors))
	}

	if err := db.TouchSyncCursor(ctx, user.ID, models.PlatformGmail); err != nil {
		t.Fatalf("TouchSyncCursor: %v", err)
	}
	cursors, err = db.GetSyncCursors(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetSyncCursors: %v", err)
	}
	first, ok := cursors[models.PlatformGmail]
	if !ok {
		t.Fatal("gmail cursor missing after touch")
	}

	time.Sleep(10 * time.Millisecond)
	if err := db.TouchSyncCursor(ctx, user.ID, models.PlatformGmail); err != nil {
		t.Fatalf("second TouchSyncCursor: %v", err)
	}
	cursors, err = db.GetSyncCursors(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetSyncCursors: %v", err)
	}
	if len(cursors) != 1 {
		t.Errorf("repeated touch created %d cursors, want 1", len(cursors))
	}
	if !cursors[models.PlatformGmail].After(first) {
		t.Error("cursor did not advance on the second touch")
	}
}
