package secondary

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	file_url TEXT,
	file_type TEXT,
	file_name TEXT,
	file_size INTEGER,
	duration_sec INTEGER,
	correlation_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_pair
	ON chat_messages(sender_id, recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chat_messages_recipient_unread
	ON chat_messages(recipient_id, is_read);
CREATE INDEX IF NOT EXISTS idx_chat_messages_updated
	ON chat_messages(updated_at);

CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	full_name TEXT,
	avatar_url TEXT
);
`
