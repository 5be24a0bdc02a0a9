package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailloom/mailloom/internal/conversation"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
	"github.com/mailloom/mailloom/tests/testutil"
)

func TestSelectWinner(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		group []model.Conversation
		want  string
	}{
		{
			name: "more messages wins",
			group: []model.Conversation{
				{ID: "a", MessageCount: 2, LastMessageDate: base.Add(time.Hour)},
				{ID: "b", MessageCount: 5, LastMessageDate: base},
			},
			want: "b",
		},
		{
			name: "tie broken by newer last message",
			group: []model.Conversation{
				{ID: "a", MessageCount: 3, LastMessageDate: base},
				{ID: "b", MessageCount: 3, LastMessageDate: base.Add(time.Hour)},
			},
			want: "b",
		},
		{
			name: "full tie broken by id",
			group: []model.Conversation{
				{ID: "b", MessageCount: 1, LastMessageDate: base},
				{ID: "a", MessageCount: 1, LastMessageDate: base},
			},
			want: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conversation.SelectWinner(tt.group)
			if got.ID != tt.want {
				t.Errorf("SelectWinner = %s, want %s", got.ID, tt.want)
			}
		})
	}
}

func TestMergeFields(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	group := []model.Conversation{
		{ID: "w", MessageCount: 5, UnreadCount: 2, Pinned: true, LastMessageDate: base, Snippet: "older"},
		{ID: "l", MessageCount: 3, UnreadCount: 1, Muted: true, HasInboxMessages: true,
			LastMessageDate: base.Add(time.Hour), Snippet: "newer"},
	}

	merged := conversation.MergeFields(group[0], group)

	if !merged.Pinned {
		t.Error("Pinned not preserved from winner")
	}
	if !merged.Muted {
		t.Error("Muted not preserved from loser")
	}
	if !merged.HasInboxMessages {
		t.Error("HasInboxMessages not preserved from loser")
	}
	if merged.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", merged.UnreadCount)
	}
	if merged.MessageCount != 8 {
		t.Errorf("MessageCount = %d, want 8", merged.MessageCount)
	}
	if merged.Snippet != "newer" {
		t.Errorf("Snippet = %q, want snippet of freshest record", merged.Snippet)
	}
	if !merged.LastMessageDate.Equal(base.Add(time.Hour)) {
		t.Errorf("LastMessageDate = %v, want %v", merged.LastMessageDate, base.Add(time.Hour))
	}
}

func TestMergerRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	m := conversation.NewMerger(s, zerolog.Nop())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	winner := model.Conversation{
		ID: "conv-win", KeyHash: "key-dup", Type: model.ConversationOneToOne,
		Pinned: true, MessageCount: 2, LastMessageDate: base.Add(time.Hour),
	}
	loser := model.Conversation{
		ID: "conv-lose", KeyHash: "key-dup", Type: model.ConversationOneToOne,
		Muted: true, MessageCount: 1, LastMessageDate: base,
	}
	solo := model.Conversation{
		ID: "conv-solo", KeyHash: "key-solo", Type: model.ConversationList,
	}
	testutil.SeedConversations(t, s, winner, loser, solo)

	msg := func(id, convID string, date time.Time) store.InsertMessage {
		return store.InsertMessage{
			ConversationID: convID,
			Message: model.NormalizedMessage{
				ID:           id,
				InternalDate: date,
				Headers:      model.NormalizedHeaders{Subject: id},
				LabelIDs:     []string{"INBOX"},
				IsUnread:     true,
			},
		}
	}
	if err := s.BatchInsertMessages(ctx, []store.InsertMessage{
		msg("msg-w1", "conv-win", base.Add(30*time.Minute)),
		msg("msg-w2", "conv-win", base.Add(time.Hour)),
		msg("msg-l1", "conv-lose", base),
	}, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	merged, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("running merger: %v", err)
	}
	if merged != 1 {
		t.Errorf("merged = %d, want 1", merged)
	}

	survivor, err := s.FindConversationByKey(ctx, "key-dup")
	if err != nil {
		t.Fatalf("finding survivor: %v", err)
	}
	if survivor == nil {
		t.Fatal("no conversation left for key-dup")
	}
	if survivor.ID != "conv-win" {
		t.Errorf("survivor = %s, want conv-win", survivor.ID)
	}
	if !survivor.Pinned || !survivor.Muted {
		t.Errorf("user flags lost in merge: pinned=%v muted=%v", survivor.Pinned, survivor.Muted)
	}
	if survivor.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", survivor.MessageCount)
	}
	if survivor.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", survivor.UnreadCount)
	}

	// A second pass finds nothing to merge and changes nothing.
	merged, err = m.Run(ctx)
	if err != nil {
		t.Fatalf("second merger run: %v", err)
	}
	if merged != 0 {
		t.Errorf("second run merged %d, want 0", merged)
	}

	again, err := s.FindConversationByKey(ctx, "key-dup")
	if err != nil {
		t.Fatalf("finding survivor again: %v", err)
	}
	if again.ID != survivor.ID || again.MessageCount != survivor.MessageCount {
		t.Errorf("second run changed survivor: %+v vs %+v", again, survivor)
	}
}
