package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mailloom/mailloom/internal/model"
)

const snippetLength = 120

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertLabels inserts or replaces the mirrored label set.
func (s *SQLiteStore) UpsertLabels(ctx context.Context, labels []model.Label) error {
	if len(labels) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		"INSERT OR REPLACE INTO labels (id, name, type) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing label upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.ExecContext(ctx, l.ID, l.Name, l.Type); err != nil {
			return fmt.Errorf("upserting label %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

// GetLabels retrieves all mirrored labels ordered by name.
func (s *SQLiteStore) GetLabels(ctx context.Context) ([]model.Label, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT id, name, type FROM labels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []model.Label
	for rows.Next() {
		var l model.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Type); err != nil {
			return nil, fmt.Errorf("scanning label row: %w", err)
		}
		labels = append(labels, l)
	}

	return labels, rows.Err()
}

// BatchInsertMessages writes messages in chunks of cfg.Size, each chunk
// in its own transaction. With TrumpOnConflict the incoming row replaces
// any stored row with the same ID; otherwise the stored row is kept.
func (s *SQLiteStore) BatchInsertMessages(
	ctx context.Context,
	msgs []InsertMessage,
	cfg BatchConfig,
) error {
	conflictClause := "ON CONFLICT(id) DO NOTHING"
	if cfg.TrumpOnConflict {
		conflictClause = `ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			thread_id = excluded.thread_id,
			internal_date = excluded.internal_date,
			subject = excluded.subject,
			from_address = excluded.from_address,
			to_addresses = excluded.to_addresses,
			cc_addresses = excluded.cc_addresses,
			bcc_addresses = excluded.bcc_addresses,
			in_reply_to = excluded.in_reply_to,
			references_list = excluded.references_list,
			message_id_header = excluded.message_id_header,
			list_id = excluded.list_id,
			is_from_me = excluded.is_from_me,
			html_body = excluded.html_body,
			plain_text_body = excluded.plain_text_body,
			label_ids = excluded.label_ids,
			is_unread = excluded.is_unread,
			is_newsletter = excluded.is_newsletter,
			has_attachments = excluded.has_attachments,
			attachment_refs = excluded.attachment_refs`
	}

	query := `
		INSERT INTO messages (
			id, conversation_id, thread_id, internal_date,
			subject, from_address, to_addresses, cc_addresses, bcc_addresses,
			in_reply_to, references_list, message_id_header, list_id,
			is_from_me, html_body, plain_text_body,
			label_ids, is_unread, is_newsletter,
			has_attachments, attachment_refs
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?
		) ` + conflictClause

	size := chunkSize(cfg)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		if err := s.insertMessageChunk(ctx, query, msgs[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) insertMessageChunk(
	ctx context.Context,
	query string,
	chunk []InsertMessage,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for _, im := range chunk {
		m := im.Message
		h := m.Headers

		toJSON, err := marshalStrings(h.To)
		if err != nil {
			return fmt.Errorf("marshaling to_addresses for message %s: %w", m.ID, err)
		}
		ccJSON, err := marshalStrings(h.Cc)
		if err != nil {
			return fmt.Errorf("marshaling cc_addresses for message %s: %w", m.ID, err)
		}
		bccJSON, err := marshalStrings(h.Bcc)
		if err != nil {
			return fmt.Errorf("marshaling bcc_addresses for message %s: %w", m.ID, err)
		}
		refsJSON, err := marshalStrings(h.References)
		if err != nil {
			return fmt.Errorf("marshaling references for message %s: %w", m.ID, err)
		}
		labelsJSON, err := marshalStrings(m.LabelIDs)
		if err != nil {
			return fmt.Errorf("marshaling label_ids for message %s: %w", m.ID, err)
		}
		attachJSON, err := json.Marshal(m.AttachmentRefs)
		if err != nil {
			return fmt.Errorf("marshaling attachment_refs for message %s: %w", m.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			m.ID, im.ConversationID, m.ThreadID, m.InternalDate.UTC(),
			h.Subject, h.From, toJSON, ccJSON, bccJSON,
			h.InReplyTo, refsJSON, h.MessageID, h.ListID,
			boolToInt(h.IsFromMe), m.HTMLBody, m.PlainTextBody,
			labelsJSON, boolToInt(m.IsUnread), boolToInt(m.IsNewsletter),
			boolToInt(m.HasAttachments), string(attachJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// BatchUpdateMessages applies label and read-state changes to stored
// messages in chunks of cfg.Size. Updates for unknown IDs are no-ops.
func (s *SQLiteStore) BatchUpdateMessages(
	ctx context.Context,
	updates []model.MessageUpdate,
	cfg BatchConfig,
) error {
	size := chunkSize(cfg)
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}

		err = func() error {
			defer tx.Rollback()

			stmt, err := tx.PreparexContext(ctx,
				"UPDATE messages SET label_ids = ?, is_unread = ? WHERE id = ?")
			if err != nil {
				return fmt.Errorf("preparing message update: %w", err)
			}
			defer stmt.Close()

			for _, u := range updates[start:end] {
				labelsJSON, err := marshalStrings(u.LabelIDs)
				if err != nil {
					return fmt.Errorf("marshaling label_ids for message %s: %w", u.ID, err)
				}
				if _, err := stmt.ExecContext(ctx, labelsJSON, boolToInt(u.IsUnread), u.ID); err != nil {
					return fmt.Errorf("updating message %s: %w", u.ID, err)
				}
			}

			return tx.Commit()
		}()
		if err != nil {
			return err
		}
	}

	return nil
}

// BatchDeleteMessages removes stored messages by ID in chunks of cfg.Size.
// Unknown IDs are ignored.
func (s *SQLiteStore) BatchDeleteMessages(
	ctx context.Context,
	ids []string,
	cfg BatchConfig,
) error {
	size := chunkSize(cfg)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In("DELETE FROM messages WHERE id IN (?)", ids[start:end])
		if err != nil {
			return fmt.Errorf("building delete query: %w", err)
		}

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
	}

	return nil
}

// ExistingMessageIDs reports which of the provided IDs are already stored.
func (s *SQLiteStore) ExistingMessageIDs(
	ctx context.Context,
	ids []string,
) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	// Keep chunks well under SQLite's bound-parameter limit.
	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In("SELECT id FROM messages WHERE id IN (?)", ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("building existence query: %w", err)
		}

		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying existing message ids: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning message id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return existing, nil
}

// MessageIDsForConversationKey returns the IDs of all stored messages
// belonging to any conversation with the given key hash.
func (s *SQLiteStore) MessageIDsForConversationKey(
	ctx context.Context,
	keyHash string,
) ([]string, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT m.id FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.key_hash = ?
		ORDER BY m.internal_date`,
		keyHash,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages for key: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning message id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// MessagesForConversation returns a conversation's stored messages
// ordered oldest first.
func (s *SQLiteStore) MessagesForConversation(
	ctx context.Context,
	conversationID string,
) ([]model.NormalizedMessage, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, thread_id, internal_date,
			subject, from_address, to_addresses, cc_addresses, bcc_addresses,
			in_reply_to, references_list, message_id_header, list_id,
			is_from_me, html_body, plain_text_body,
			label_ids, is_unread, is_newsletter,
			has_attachments, attachment_refs
		FROM messages
		WHERE conversation_id = ?
		ORDER BY internal_date`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.NormalizedMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

const conversationColumns = `
	id, key_hash, type, participants, display_name, snippet,
	last_message_date, pinned, muted, unread_count,
	has_inbox_messages, message_count, created_at, updated_at`

// FindConversationByKey retrieves the conversation holding keyHash, or
// nil when none exists. If duplicates exist the oldest record wins,
// which keeps repeated lookups stable until the merger repairs them.
func (s *SQLiteStore) FindConversationByKey(
	ctx context.Context,
	keyHash string,
) (*model.Conversation, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT"+conversationColumns+`
		FROM conversations WHERE key_hash = ?
		ORDER BY created_at, id LIMIT 1`,
		keyHash,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation by key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	conv, err := scanConversation(rows)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByID retrieves a single conversation by its ID, or nil
// when none exists.
func (s *SQLiteStore) GetConversationByID(
	ctx context.Context,
	id string,
) (*model.Conversation, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT"+conversationColumns+" FROM conversations WHERE id = ?",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	conv, err := scanConversation(rows)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation inserts a new conversation record. If the
// conversation has no ID, a new UUID is generated.
func (s *SQLiteStore) CreateConversation(
	ctx context.Context,
	conv model.Conversation,
) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	participantsJSON, err := marshalStrings(conv.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, key_hash, type, participants, display_name, snippet,
			last_message_date, pinned, muted, unread_count,
			has_inbox_messages, message_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.KeyHash, string(conv.Type), participantsJSON,
		conv.DisplayName, conv.Snippet,
		nullableTime(conv.LastMessageDate),
		boolToInt(conv.Pinned), boolToInt(conv.Muted), conv.UnreadCount,
		boolToInt(conv.HasInboxMessages), conv.MessageCount,
		conv.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("creating conversation %s: %w", conv.ID, err)
	}

	return nil
}

// UpdateConversation replaces the stored fields of an existing
// conversation record.
func (s *SQLiteStore) UpdateConversation(
	ctx context.Context,
	conv model.Conversation,
) error {
	participantsJSON, err := marshalStrings(conv.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET
			key_hash = ?, type = ?, participants = ?, display_name = ?,
			snippet = ?, last_message_date = ?, pinned = ?, muted = ?,
			unread_count = ?, has_inbox_messages = ?, message_count = ?,
			updated_at = ?
		WHERE id = ?`,
		conv.KeyHash, string(conv.Type), participantsJSON, conv.DisplayName,
		conv.Snippet, nullableTime(conv.LastMessageDate),
		boolToInt(conv.Pinned), boolToInt(conv.Muted),
		conv.UnreadCount, boolToInt(conv.HasInboxMessages), conv.MessageCount,
		time.Now().UTC(), conv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", conv.ID, err)
	}

	return nil
}

// ListConversations retrieves conversations ordered for display: pinned
// first, then by last message date descending.
func (s *SQLiteStore) ListConversations(
	ctx context.Context,
	limit int,
) ([]model.Conversation, error) {
	query := "SELECT" + conversationColumns + `
		FROM conversations
		ORDER BY pinned DESC, last_message_date DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// DuplicateConversationGroups returns, for every key hash held by more
// than one conversation record, the full set of records sharing it.
func (s *SQLiteStore) DuplicateConversationGroups(
	ctx context.Context,
) ([][]model.Conversation, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT"+conversationColumns+`
		FROM conversations
		WHERE key_hash IN (
			SELECT key_hash FROM conversations
			GROUP BY key_hash HAVING COUNT(*) > 1
		)
		ORDER BY key_hash, created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate conversations: %w", err)
	}
	defer rows.Close()

	var groups [][]model.Conversation
	var current []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		if len(current) > 0 && current[0].KeyHash != conv.KeyHash {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, conv)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups, rows.Err()
}

// ApplyConversationMerge reassigns the loser's messages to the winner,
// writes the winner's merged fields, and deletes the loser, all in one
// transaction.
func (s *SQLiteStore) ApplyConversationMerge(
	ctx context.Context,
	winner model.Conversation,
	loserID string,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET conversation_id = ? WHERE conversation_id = ?",
		winner.ID, loserID,
	); err != nil {
		return fmt.Errorf("reassigning messages from %s: %w", loserID, err)
	}

	participantsJSON, err := marshalStrings(winner.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET
			display_name = ?, snippet = ?, last_message_date = ?,
			pinned = ?, muted = ?, unread_count = ?,
			has_inbox_messages = ?, message_count = ?,
			participants = ?, updated_at = ?
		WHERE id = ?`,
		winner.DisplayName, winner.Snippet, nullableTime(winner.LastMessageDate),
		boolToInt(winner.Pinned), boolToInt(winner.Muted), winner.UnreadCount,
		boolToInt(winner.HasInboxMessages), winner.MessageCount,
		participantsJSON, time.Now().UTC(), winner.ID,
	); err != nil {
		return fmt.Errorf("updating merge winner %s: %w", winner.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ?", loserID,
	); err != nil {
		return fmt.Errorf("deleting merge loser %s: %w", loserID, err)
	}

	return tx.Commit()
}

// RecomputeConversationRollups refreshes every conversation's derived
// fields from its owned messages. The update is a pure aggregate over
// stored rows, so running it repeatedly converges to the same values.
func (s *SQLiteStore) RecomputeConversationRollups(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE conversations SET
			message_count = (
				SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = conversations.id
			),
			unread_count = (
				SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = conversations.id AND m.is_unread = 1
			),
			last_message_date = (
				SELECT MAX(m.internal_date) FROM messages m
				WHERE m.conversation_id = conversations.id
			),
			has_inbox_messages = EXISTS (
				SELECT 1 FROM messages m
				WHERE m.conversation_id = conversations.id
				AND m.label_ids LIKE '%%"INBOX"%%'
			),
			snippet = COALESCE((
				SELECT CASE
					WHEN m.plain_text_body != '' THEN substr(m.plain_text_body, 1, %d)
					ELSE m.subject
				END
				FROM messages m
				WHERE m.conversation_id = conversations.id
				ORDER BY m.internal_date DESC, m.id LIMIT 1
			), snippet),
			updated_at = CURRENT_TIMESTAMP`,
		snippetLength,
	))
	if err != nil {
		return fmt.Errorf("recomputing conversation rollups: %w", err)
	}

	return nil
}

// LoadSyncState retrieves the persisted sync cursor state, or nil when
// no sync has ever been recorded.
func (s *SQLiteStore) LoadSyncState(ctx context.Context) (*SyncState, error) {
	var (
		state       SyncState
		aliasesJSON string
		installTS   sql.NullTime
		lastFull    sql.NullTime
	)

	err := s.db.QueryRowxContext(ctx, `
		SELECT account_email, aliases, history_checkpoint,
			install_timestamp, last_full_sync
		FROM sync_state WHERE id = 1`,
	).Scan(
		&state.AccountEmail, &aliasesJSON, &state.HistoryCheckpoint,
		&installTS, &lastFull,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}

	if aliasesJSON != "" {
		if err := json.Unmarshal([]byte(aliasesJSON), &state.Aliases); err != nil {
			return nil, fmt.Errorf("unmarshaling aliases: %w", err)
		}
	}
	if installTS.Valid {
		state.InstallTimestamp = installTS.Time
	}
	if lastFull.Valid {
		state.LastFullSync = lastFull.Time
	}

	return &state, nil
}

// SaveSyncState writes the singleton sync cursor row.
func (s *SQLiteStore) SaveSyncState(ctx context.Context, state SyncState) error {
	aliasesJSON, err := marshalStrings(state.Aliases)
	if err != nil {
		return fmt.Errorf("marshaling aliases: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_state (
			id, account_email, aliases, history_checkpoint,
			install_timestamp, last_full_sync
		) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_email = excluded.account_email,
			aliases = excluded.aliases,
			history_checkpoint = excluded.history_checkpoint,
			install_timestamp = excluded.install_timestamp,
			last_full_sync = excluded.last_full_sync`,
		state.AccountEmail, aliasesJSON, state.HistoryCheckpoint,
		nullableTime(state.InstallTimestamp), nullableTime(state.LastFullSync),
	)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}

	return nil
}

// scanConversation scans a conversation row from a sqlx.Rows result set.
func scanConversation(rows *sqlx.Rows) (model.Conversation, error) {
	var (
		conv             model.Conversation
		convType         string
		participantsJSON string
		lastMessageDate  sql.NullTime
		pinned           int
		muted            int
		hasInbox         int
	)

	err := rows.Scan(
		&conv.ID, &conv.KeyHash, &convType, &participantsJSON,
		&conv.DisplayName, &conv.Snippet,
		&lastMessageDate, &pinned, &muted, &conv.UnreadCount,
		&hasInbox, &conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("scanning conversation row: %w", err)
	}

	conv.Type = model.ConversationType(convType)
	conv.Pinned = pinned != 0
	conv.Muted = muted != 0
	conv.HasInboxMessages = hasInbox != 0
	if lastMessageDate.Valid {
		conv.LastMessageDate = lastMessageDate.Time
	}

	if participantsJSON != "" {
		if err := json.Unmarshal([]byte(participantsJSON), &conv.Participants); err != nil {
			return model.Conversation{}, fmt.Errorf("unmarshaling participants: %w", err)
		}
	}

	return conv, nil
}

func scanMessage(rows *sqlx.Rows) (model.NormalizedMessage, error) {
	var (
		msg        model.NormalizedMessage
		toJSON     string
		ccJSON     string
		bccJSON    string
		refsJSON   string
		labelsJSON string
		attachJSON string
		isFromMe   int
		isUnread   int
		newsletter int
		hasAttach  int
	)

	err := rows.Scan(
		&msg.ID, &msg.ThreadID, &msg.InternalDate,
		&msg.Headers.Subject, &msg.Headers.From, &toJSON, &ccJSON, &bccJSON,
		&msg.Headers.InReplyTo, &refsJSON, &msg.Headers.MessageID, &msg.Headers.ListID,
		&isFromMe, &msg.HTMLBody, &msg.PlainTextBody,
		&labelsJSON, &isUnread, &newsletter,
		&hasAttach, &attachJSON,
	)
	if err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("scanning message row: %w", err)
	}

	msg.Headers.IsFromMe = isFromMe != 0
	msg.IsUnread = isUnread != 0
	msg.IsNewsletter = newsletter != 0
	msg.HasAttachments = hasAttach != 0

	if err := unmarshalStrings(toJSON, &msg.Headers.To); err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("unmarshaling to_addresses for message %s: %w", msg.ID, err)
	}
	if err := unmarshalStrings(ccJSON, &msg.Headers.Cc); err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("unmarshaling cc_addresses for message %s: %w", msg.ID, err)
	}
	if err := unmarshalStrings(bccJSON, &msg.Headers.Bcc); err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("unmarshaling bcc_addresses for message %s: %w", msg.ID, err)
	}
	if err := unmarshalStrings(refsJSON, &msg.Headers.References); err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("unmarshaling references for message %s: %w", msg.ID, err)
	}
	if err := unmarshalStrings(labelsJSON, &msg.LabelIDs); err != nil {
		return model.NormalizedMessage{}, fmt.Errorf("unmarshaling label_ids for message %s: %w", msg.ID, err)
	}

	if attachJSON != "" {
		if err := json.Unmarshal([]byte(attachJSON), &msg.AttachmentRefs); err != nil {
			return model.NormalizedMessage{}, fmt.Errorf("unmarshaling attachment_refs for message %s: %w", msg.ID, err)
		}
	}

	return msg, nil
}

// unmarshalStrings decodes a JSON array column, treating the empty
// string as an empty array.
func unmarshalStrings(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// marshalStrings encodes a string slice as a JSON array, normalizing nil
// to the empty array so stored columns never hold SQL NULL or "null".
func marshalStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nullableTime converts a zero time to SQL NULL.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// chunkSize returns the configured batch size, falling back to the
// lightweight default when the config is zero-valued.
func chunkSize(cfg BatchConfig) int {
	if cfg.Size <= 0 {
		return BatchLightweight.Size
	}
	return cfg.Size
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
