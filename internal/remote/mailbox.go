// Package remote defines the narrow mailbox surface the sync engine
// consumes, plus the error taxonomy and rate limiting shared by its
// implementations.
package remote

import (
	"context"
	"time"

	"github.com/mailloom/mailloom/internal/model"
)

// Profile describes the remote account.
type Profile struct {
	EmailAddress string

	// HistoryID is the account's current change cursor, empty when the
	// backend does not support history.
	HistoryID string

	MessagesTotal int64
}

// Header is one raw message header as delivered by the backend.
type Header struct {
	Name  string
	Value string
}

// RawMessage is a fetched message before normalization. Headers keep
// their original names and values; the normalization step owns all
// interpretation.
type RawMessage struct {
	ID           string
	ThreadID     string
	InternalDate time.Time
	Headers      []Header

	HTMLBody      string
	PlainTextBody string
	Snippet       string

	LabelIDs    []string
	Attachments []model.AttachmentRef
}

// HeaderValue returns the first header with the given name,
// case-insensitively, or the empty string.
func (m RawMessage) HeaderValue(name string) string {
	for _, h := range m.Headers {
		if equalFoldASCII(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ListPage is one page of message IDs from a full listing.
type ListPage struct {
	IDs           []string
	NextPageToken string
}

// UpdatedMessage reports the post-change label set of a message touched
// by a history record.
type UpdatedMessage struct {
	ID       string
	LabelIDs []string
}

// HistoryPage is one page of incremental changes since a checkpoint.
type HistoryPage struct {
	AddedIDs      []string
	Updated       []UpdatedMessage
	RemovedIDs    []string
	NextPageToken string

	// LatestCheckpoint is the cursor to persist once the page stream
	// has been fully consumed.
	LatestCheckpoint string
}

// Mailbox is the capability surface a remote mail backend must provide.
// Implementations return errors from this package's taxonomy so the
// engine can distinguish transient faults from terminal ones.
type Mailbox interface {
	// Profile returns the account identity and current change cursor.
	Profile(ctx context.Context) (Profile, error)

	// Aliases returns every address the account can send as, including
	// the primary address.
	Aliases(ctx context.Context) ([]string, error)

	// ListLabels returns the account's full label set.
	ListLabels(ctx context.Context) ([]model.Label, error)

	// ListMessageIDs pages through message IDs, newest first. A
	// non-zero since restricts the listing to messages received at or
	// after that instant.
	ListMessageIDs(ctx context.Context, pageToken string, maxResults int64, since time.Time) (ListPage, error)

	// GetMessage fetches one full message.
	GetMessage(ctx context.Context, id string) (RawMessage, error)

	// ListHistory pages through changes recorded after the given
	// checkpoint. Backends without history support return an error of
	// KindHistoryExpired for every call, which steers the engine to a
	// full sync.
	ListHistory(ctx context.Context, startCheckpoint, pageToken string) (HistoryPage, error)

	// SupportsHistory reports whether ListHistory can ever succeed.
	SupportsHistory() bool
}
