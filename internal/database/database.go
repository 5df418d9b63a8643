package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// busyTimeout is how long a writer waits on a locked database before
// failing. Webhook ingestion and the auto-reply worker write
// concurrently with request handlers, so this stays generous.
const busyTimeout = 5 * time.Second

// DB is the message store. Repositories for users, accounts,
// connections, messages and sync cursors hang off it as methods.
type DB struct {
	*sqlx.DB
}

// DSN builds the sqlite connection string for a database file. WAL
// keeps the consolidated-inbox readers unblocked while syncs write;
// foreign keys back the user-cascade deletes the schema relies on.
func DSN(path string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		path, busyTimeout.Milliseconds())
}

// New opens the database file at path, creating its directory when
// missing.
func New(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{db}, nil
}

// Migrate applies the schema. Every statement is idempotent, so it
// runs unconditionally on start.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
