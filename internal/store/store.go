package store

import (
	"context"
	"time"

	"github.com/mailloom/mailloom/internal/model"
)

// BatchConfig selects the batch size and conflict-merge policy for bulk
// message operations.
type BatchConfig struct {
	// Size is the number of rows written per transaction.
	Size int

	// TrumpOnConflict replaces existing rows on ID collision. Full sync
	// uses this so re-fetched messages win; incremental sync leaves
	// existing rows alone and applies targeted updates instead.
	TrumpOnConflict bool
}

// BatchHeavy is the full-sync configuration: large batches, re-fetched
// data trumps what is stored.
var BatchHeavy = BatchConfig{Size: 200, TrumpOnConflict: true}

// BatchLightweight is the incremental-sync configuration: small batches,
// low-overhead inserts that never clobber existing rows.
var BatchLightweight = BatchConfig{Size: 50, TrumpOnConflict: false}

// InsertMessage pairs a normalized message with the conversation it was
// resolved to.
type InsertMessage struct {
	Message        model.NormalizedMessage
	ConversationID string
}

// SyncState is the persisted cursor state of the sync engine.
type SyncState struct {
	AccountEmail      string
	Aliases           []string
	HistoryCheckpoint string
	InstallTimestamp  time.Time
	LastFullSync      time.Time
}

// Store defines the local persistence interface for conversations,
// messages, labels, and sync state.
type Store interface {
	// === Labels ===

	UpsertLabels(ctx context.Context, labels []model.Label) error
	GetLabels(ctx context.Context) ([]model.Label, error)

	// === Messages (batch operations) ===

	BatchInsertMessages(ctx context.Context, msgs []InsertMessage, cfg BatchConfig) error
	BatchUpdateMessages(ctx context.Context, updates []model.MessageUpdate, cfg BatchConfig) error
	BatchDeleteMessages(ctx context.Context, ids []string, cfg BatchConfig) error
	ExistingMessageIDs(ctx context.Context, ids []string) (map[string]bool, error)
	MessageIDsForConversationKey(ctx context.Context, keyHash string) ([]string, error)

	// MessagesForConversation returns a conversation's stored messages
	// ordered oldest first.
	MessagesForConversation(ctx context.Context, conversationID string) ([]model.NormalizedMessage, error)

	// === Conversations ===

	FindConversationByKey(ctx context.Context, keyHash string) (*model.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv model.Conversation) error
	UpdateConversation(ctx context.Context, conv model.Conversation) error
	ListConversations(ctx context.Context, limit int) ([]model.Conversation, error)

	// DuplicateConversationGroups returns, for every key hash held by
	// more than one conversation record, the full set of records
	// sharing it.
	DuplicateConversationGroups(ctx context.Context) ([][]model.Conversation, error)

	// ApplyConversationMerge reassigns the loser's messages to the
	// winner, writes the winner's merged fields, and deletes the loser,
	// all in one transaction.
	ApplyConversationMerge(ctx context.Context, winner model.Conversation, loserID string) error

	// RecomputeConversationRollups refreshes every conversation's
	// derived fields (message count, unread count, last message date,
	// snippet, inbox flag) from its owned messages. The
	// computation is a pure aggregate, so it is idempotent with respect
	// to message arrival order.
	RecomputeConversationRollups(ctx context.Context) error

	// === Sync state ===

	LoadSyncState(ctx context.Context) (*SyncState, error)
	SaveSyncState(ctx context.Context, state SyncState) error

	Close() error
}
