package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind identifies what a sync operation should do.
type OperationKind string

const (
	// OpInitial is a full mailbox sync.
	OpInitial OperationKind = "initial"

	// OpIncremental applies history deltas since the stored checkpoint,
	// falling back to a full sync when no checkpoint exists.
	OpIncremental OperationKind = "incremental"

	// OpConversationSync re-fetches the messages of one conversation.
	OpConversationSync OperationKind = "conversation"

	// OpMessageSync re-fetches a single remote message.
	OpMessageSync OperationKind = "message"
)

// Priority orders sync operations in the queue. Higher values are
// served first; within one priority, insertion order is preserved.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityUtility
	PriorityUserInitiated
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityUserInitiated:
		return "user-initiated"
	case PriorityBackground:
		return "background"
	case PriorityUtility:
		return "utility"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// SyncOperation is one queued unit of sync work. Immutable once created.
type SyncOperation struct {
	ID       string
	Kind     OperationKind
	Priority Priority

	// ConversationKey is set for OpConversationSync operations.
	ConversationKey string

	// MessageID is set for OpMessageSync operations.
	MessageID string

	CreatedAt time.Time
}

// NewSyncOperation creates an operation with a fresh ID and timestamp.
func NewSyncOperation(kind OperationKind, priority Priority) SyncOperation {
	return SyncOperation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}
