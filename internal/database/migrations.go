package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    user_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS platform_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    platform_type TEXT NOT NULL,
    account_identifier TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    token_expires_at DATETIME,
    external_account_id TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, platform_type, account_identifier)
);

CREATE TABLE IF NOT EXISTS whatsapp_connections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    phone_number_id TEXT NOT NULL,
    phone_number TEXT NOT NULL,
    access_token TEXT NOT NULL,
    business_name TEXT NOT NULL DEFAULT '',
    is_connected BOOLEAN NOT NULL DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, phone_number)
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    platform_type TEXT NOT NULL,
    external_message_id TEXT,
    account_identifier TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    snippet TEXT NOT NULL DEFAULT '',
    body_text TEXT NOT NULL DEFAULT '',
    body_html TEXT NOT NULL DEFAULT '',
    from_name TEXT NOT NULL DEFAULT '',
    from_addr TEXT NOT NULL DEFAULT '',
    to_addr TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT false,
    has_attachments BOOLEAN NOT NULL DEFAULT false,
    is_new BOOLEAN NOT NULL DEFAULT false,
    is_auto_replied BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, external_message_id, account_identifier)
);

CREATE TABLE IF NOT EXISTS message_attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    attachment_id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    content BLOB,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(message_id, attachment_id)
);

CREATE TABLE IF NOT EXISTS sync_cursors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    platform_type TEXT NOT NULL,
    last_sync_time DATETIME NOT NULL,
    UNIQUE(user_id, platform_type)
);

-- Second line of defense for the single-active invariants; the service
-- layer switches accounts inside a transaction.
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_single_active
    ON platform_accounts(user_id, platform_type) WHERE is_active;
CREATE UNIQUE INDEX IF NOT EXISTS idx_whatsapp_single_connected
    ON whatsapp_connections(user_id) WHERE is_connected;

CREATE INDEX IF NOT EXISTS idx_accounts_user ON platform_accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_user_platform ON messages(user_id, platform_type);
CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(user_id, received_at);
CREATE INDEX IF NOT EXISTS idx_messages_new ON messages(is_new) WHERE is_new;
CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(message_id);
`
