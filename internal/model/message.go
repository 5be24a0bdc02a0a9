package model

import "time"

// NormalizedHeaders holds the parsed header fields of a message that the
// rest of the system cares about. Address fields contain bare address
// strings as extracted from the raw header values; canonicalization is
// applied later by the identity and grouping layers.
type NormalizedHeaders struct {
	Subject string
	From    string
	To      []string
	Cc      []string

	// Bcc is parsed for completeness but deliberately excluded from
	// conversation identity: a blind-copied recipient must not fork
	// the conversation.
	Bcc []string

	InReplyTo  string
	References []string
	MessageID  string

	ListID          string
	ListUnsubscribe string
	Precedence      string

	// IsFromMe reports whether the message was sent by the local
	// account (any of its aliases).
	IsFromMe bool
}

// AttachmentRef points at an attachment held by the remote mailbox.
// Attachment content is never transferred by this layer.
type AttachmentRef struct {
	ID       string
	Filename string
	MIMEType string
	Size     int64
}

// NormalizedMessage is the canonical local form of one remote message.
// It is produced once by the normalization step and never mutated.
type NormalizedMessage struct {
	ID           string
	ThreadID     string
	InternalDate time.Time
	Headers      NormalizedHeaders

	HTMLBody      string
	PlainTextBody string

	LabelIDs       []string
	IsUnread       bool
	IsNewsletter   bool
	HasAttachments bool
	AttachmentRefs []AttachmentRef
}

// Snippet returns a short plain-text preview of the message body,
// suitable for conversation rollups.
func (m NormalizedMessage) Snippet(maxLen int) string {
	body := m.PlainTextBody
	if body == "" {
		body = m.Headers.Subject
	}
	runes := []rune(body)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return body
}

// Label is a remote mailbox label mirrored locally.
type Label struct {
	ID   string
	Name string
	Type string
}

// MessageUpdate describes an in-place change to a stored message,
// produced by incremental sync history records.
type MessageUpdate struct {
	ID       string
	LabelIDs []string
	IsUnread bool
}
