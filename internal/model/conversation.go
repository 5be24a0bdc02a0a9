package model

import "time"

// ConversationType classifies how a conversation's identity was derived.
type ConversationType string

const (
	// ConversationOneToOne is a conversation with at most one
	// participant besides the local account.
	ConversationOneToOne ConversationType = "one_to_one"

	// ConversationGroup is a conversation with two or more
	// participants besides the local account.
	ConversationGroup ConversationType = "group"

	// ConversationList is mailing-list traffic, keyed by List-Id
	// regardless of participants.
	ConversationList ConversationType = "list"
)

// Conversation is a chat-style grouping of messages sharing one
// conversation key. At any quiescent point at most one record exists per
// KeyHash; the serializer enforces this for new writes and the merger
// repairs historical violations.
type Conversation struct {
	ID      string
	KeyHash string
	Type    ConversationType

	// Participants holds the canonical addresses of everyone in the
	// conversation besides the local account. Empty for lists.
	Participants []string

	DisplayName      string
	Snippet          string
	LastMessageDate  time.Time
	Pinned           bool
	Muted            bool
	UnreadCount      int
	HasInboxMessages bool
	MessageCount     int

	CreatedAt time.Time
	UpdatedAt time.Time
}
