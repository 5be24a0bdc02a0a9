package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id                 TEXT PRIMARY KEY,
	key_hash           TEXT NOT NULL,
	type               TEXT NOT NULL CHECK(type IN ('one_to_one', 'group', 'list')),
	participants       TEXT NOT NULL DEFAULT '[]',
	display_name       TEXT NOT NULL DEFAULT '',
	snippet            TEXT NOT NULL DEFAULT '',
	last_message_date  DATETIME,
	pinned             INTEGER NOT NULL DEFAULT 0 CHECK(pinned IN (0, 1)),
	muted              INTEGER NOT NULL DEFAULT 0 CHECK(muted IN (0, 1)),
	unread_count       INTEGER NOT NULL DEFAULT 0,
	has_inbox_messages INTEGER NOT NULL DEFAULT 0 CHECK(has_inbox_messages IN (0, 1)),
	message_count      INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Deliberately not UNIQUE: the serializer upholds one record per key
-- for new writes, and the merger repairs historical duplicates.
CREATE INDEX IF NOT EXISTS idx_conversations_key_hash ON conversations(key_hash);
CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_date);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	conversation_id   TEXT NOT NULL REFERENCES conversations(id),
	thread_id         TEXT NOT NULL DEFAULT '',
	internal_date     DATETIME NOT NULL,
	subject           TEXT NOT NULL DEFAULT '',
	from_address      TEXT NOT NULL DEFAULT '',
	to_addresses      TEXT NOT NULL DEFAULT '[]',
	cc_addresses      TEXT NOT NULL DEFAULT '[]',
	bcc_addresses     TEXT NOT NULL DEFAULT '[]',
	in_reply_to       TEXT NOT NULL DEFAULT '',
	references_list   TEXT NOT NULL DEFAULT '[]',
	message_id_header TEXT NOT NULL DEFAULT '',
	list_id           TEXT NOT NULL DEFAULT '',
	is_from_me        INTEGER NOT NULL DEFAULT 0 CHECK(is_from_me IN (0, 1)),
	html_body         TEXT NOT NULL DEFAULT '',
	plain_text_body   TEXT NOT NULL DEFAULT '',
	label_ids         TEXT NOT NULL DEFAULT '[]',
	is_unread         INTEGER NOT NULL DEFAULT 0 CHECK(is_unread IN (0, 1)),
	is_newsletter     INTEGER NOT NULL DEFAULT 0 CHECK(is_newsletter IN (0, 1)),
	has_attachments   INTEGER NOT NULL DEFAULT 0 CHECK(has_attachments IN (0, 1)),
	attachment_refs   TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_internal_date ON messages(internal_date);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);

CREATE TABLE IF NOT EXISTS labels (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_state (
	id                 INTEGER PRIMARY KEY CHECK(id = 1),
	account_email      TEXT NOT NULL DEFAULT '',
	aliases            TEXT NOT NULL DEFAULT '[]',
	history_checkpoint TEXT NOT NULL DEFAULT '',
	install_timestamp  DATETIME,
	last_full_sync     DATETIME
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages(conversation_id, is_unread);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
