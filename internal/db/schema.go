package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    username TEXT,
    nickname TEXT DEFAULT '',
    age INTEGER DEFAULT 0,
    bio TEXT DEFAULT '',
    interests TEXT DEFAULT '[]',
    photo_file_id TEXT DEFAULT '',
    is_blocked BOOLEAN DEFAULT FALSE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS daily_matches (
    user_id INTEGER NOT NULL REFERENCES users(id),
    match_date TEXT NOT NULL,
    partner_id INTEGER NOT NULL REFERENCES users(id),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, match_date)
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    sender_id INTEGER NOT NULL,
    receiver_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversation_puzzles (
    conversation_id TEXT PRIMARY KEY,
    revealed_pieces TEXT NOT NULL DEFAULT '[]',
    last_message_sender TEXT NOT NULL DEFAULT '',
    last_daily_bonus_date TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS user_chat_state (
    user_id INTEGER PRIMARY KEY,
    current_state TEXT NOT NULL DEFAULT '',
    last_puzzle_message_id INTEGER DEFAULT 0,
    last_notice_message_id INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

var migrations = []string{
	`ALTER TABLE users ADD COLUMN bio TEXT DEFAULT ''`,
	`ALTER TABLE users ADD COLUMN photo_file_id TEXT DEFAULT ''`,
	`ALTER TABLE users ADD COLUMN nickname TEXT DEFAULT ''`,
	`ALTER TABLE users ADD COLUMN age INTEGER DEFAULT 0`,
	`ALTER TABLE users ADD COLUMN interests TEXT DEFAULT '[]'`,
}

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return err
	}

	// Each column already exists on fresh databases, so errors are expected.
	for _, m := range migrations {
		db.Exec(m)
	}

	return nil
}
