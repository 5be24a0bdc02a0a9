package store

import (
	"context"
	"testing"
	"time"

	"github.com/mailloom/mailloom/internal/model"
)

// Conflict policy needs to observe a raw column, which the Store
// interface deliberately does not expose, so this test lives inside
// the package.
func TestBatchInsertConflictPolicy(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.CreateConversation(ctx, model.Conversation{
		ID:      "conv-1",
		KeyHash: "key-1",
		Type:    model.ConversationOneToOne,
	}); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	msg := func(subject string) InsertMessage {
		return InsertMessage{
			ConversationID: "conv-1",
			Message: model.NormalizedMessage{
				ID:           "msg-1",
				InternalDate: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
				Headers:      model.NormalizedHeaders{Subject: subject},
			},
		}
	}

	subjectOf := func() string {
		t.Helper()
		var subject string
		if err := s.db.Get(&subject, "SELECT subject FROM messages WHERE id = 'msg-1'"); err != nil {
			t.Fatalf("reading subject: %v", err)
		}
		return subject
	}

	if err := s.BatchInsertMessages(ctx, []InsertMessage{msg("original")}, BatchLightweight); err != nil {
		t.Fatalf("inserting original: %v", err)
	}

	// Lightweight inserts never clobber an existing row.
	if err := s.BatchInsertMessages(ctx, []InsertMessage{msg("refetched")}, BatchLightweight); err != nil {
		t.Fatalf("lightweight re-insert: %v", err)
	}
	if got := subjectOf(); got != "original" {
		t.Errorf("after lightweight re-insert subject = %q, want %q", got, "original")
	}

	// Heavy inserts replace the stored row with re-fetched data.
	if err := s.BatchInsertMessages(ctx, []InsertMessage{msg("refetched")}, BatchHeavy); err != nil {
		t.Fatalf("heavy re-insert: %v", err)
	}
	if got := subjectOf(); got != "refetched" {
		t.Errorf("after heavy re-insert subject = %q, want %q", got, "refetched")
	}
}
