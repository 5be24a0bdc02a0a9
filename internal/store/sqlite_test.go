package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
	"github.com/mailloom/mailloom/tests/testutil"
)

func testConversation(id, keyHash string) model.Conversation {
	return model.Conversation{
		ID:           id,
		KeyHash:      keyHash,
		Type:         model.ConversationOneToOne,
		Participants: []string{"alice@example.com"},
		DisplayName:  "Alice",
	}
}

func testMessage(id, convID string, date time.Time) store.InsertMessage {
	return store.InsertMessage{
		ConversationID: convID,
		Message: model.NormalizedMessage{
			ID:           id,
			ThreadID:     "thread-1",
			InternalDate: date,
			Headers: model.NormalizedHeaders{
				Subject: "hello",
				From:    "alice@example.com",
				To:      []string{"me@example.com"},
			},
			PlainTextBody: "body of " + id,
			LabelIDs:      []string{"INBOX"},
			IsUnread:      true,
		},
	}
}

func TestBatchInsertAndRollups(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-1", "key-1")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []store.InsertMessage{
		testMessage("msg-1", "conv-1", base),
		testMessage("msg-2", "conv-1", base.Add(time.Hour)),
		testMessage("msg-3", "conv-1", base.Add(2*time.Hour)),
	}
	if err := s.BatchInsertMessages(ctx, msgs, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	if err := s.RecomputeConversationRollups(ctx); err != nil {
		t.Fatalf("recomputing rollups: %v", err)
	}

	got, err := s.GetConversationByID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("getting conversation: %v", err)
	}
	if got == nil {
		t.Fatal("conversation not found after rollup")
	}

	if got.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", got.MessageCount)
	}
	if got.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", got.UnreadCount)
	}
	if !got.HasInboxMessages {
		t.Error("HasInboxMessages = false, want true")
	}
	if !got.LastMessageDate.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("LastMessageDate = %v, want %v", got.LastMessageDate, base.Add(2*time.Hour))
	}
	if got.Snippet != "body of msg-3" {
		t.Errorf("Snippet = %q, want %q", got.Snippet, "body of msg-3")
	}
}

func TestRollupsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, testConversation("conv-1", "key-1")); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []store.InsertMessage{
		testMessage("msg-1", "conv-1", base),
		testMessage("msg-2", "conv-1", base.Add(time.Hour)),
	}
	if err := s.BatchInsertMessages(ctx, msgs, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	var snapshots []model.Conversation
	for i := 0; i < 3; i++ {
		if err := s.RecomputeConversationRollups(ctx); err != nil {
			t.Fatalf("recomputing rollups (pass %d): %v", i, err)
		}
		got, err := s.GetConversationByID(ctx, "conv-1")
		if err != nil {
			t.Fatalf("getting conversation: %v", err)
		}
		snapshots = append(snapshots, *got)
	}

	first := snapshots[0]
	for i, snap := range snapshots[1:] {
		if snap.MessageCount != first.MessageCount ||
			snap.UnreadCount != first.UnreadCount ||
			snap.Snippet != first.Snippet ||
			!snap.LastMessageDate.Equal(first.LastMessageDate) {
			t.Errorf("rollup pass %d diverged: %+v vs %+v", i+2, snap, first)
		}
	}
}

func TestBatchUpdateAndDelete(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, testConversation("conv-1", "key-1")); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []store.InsertMessage{
		testMessage("msg-1", "conv-1", base),
		testMessage("msg-2", "conv-1", base.Add(time.Hour)),
	}
	if err := s.BatchInsertMessages(ctx, msgs, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	updates := []model.MessageUpdate{
		{ID: "msg-1", LabelIDs: []string{"ARCHIVE"}, IsUnread: false},
		{ID: "msg-missing", LabelIDs: []string{"INBOX"}, IsUnread: true},
	}
	if err := s.BatchUpdateMessages(ctx, updates, store.BatchLightweight); err != nil {
		t.Fatalf("updating messages: %v", err)
	}

	if err := s.RecomputeConversationRollups(ctx); err != nil {
		t.Fatalf("recomputing rollups: %v", err)
	}
	got, err := s.GetConversationByID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("getting conversation: %v", err)
	}
	if got.UnreadCount != 1 {
		t.Errorf("UnreadCount after update = %d, want 1", got.UnreadCount)
	}

	if err := s.BatchDeleteMessages(ctx, []string{"msg-1", "msg-missing"}, store.BatchLightweight); err != nil {
		t.Fatalf("deleting messages: %v", err)
	}
	existing, err := s.ExistingMessageIDs(ctx, []string{"msg-1", "msg-2"})
	if err != nil {
		t.Fatalf("checking existing ids: %v", err)
	}
	if existing["msg-1"] {
		t.Error("msg-1 still exists after delete")
	}
	if !existing["msg-2"] {
		t.Error("msg-2 missing after unrelated delete")
	}
}

func TestExistingMessageIDs(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, testConversation("conv-1", "key-1")); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.BatchInsertMessages(ctx, []store.InsertMessage{
		testMessage("msg-1", "conv-1", base),
	}, store.BatchHeavy); err != nil {
		t.Fatalf("inserting message: %v", err)
	}

	existing, err := s.ExistingMessageIDs(ctx, []string{"msg-1", "msg-2"})
	if err != nil {
		t.Fatalf("checking existing ids: %v", err)
	}
	if !existing["msg-1"] || existing["msg-2"] {
		t.Errorf("existing = %v, want msg-1 only", existing)
	}

	empty, err := s.ExistingMessageIDs(ctx, nil)
	if err != nil {
		t.Fatalf("checking empty id list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty query returned %v", empty)
	}
}

func TestFindConversationByKeyPrefersOldest(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	older := testConversation("conv-old", "key-dup")
	older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testConversation("conv-new", "key-dup")
	newer.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := s.CreateConversation(ctx, older); err != nil {
		t.Fatalf("creating older: %v", err)
	}
	if err := s.CreateConversation(ctx, newer); err != nil {
		t.Fatalf("creating newer: %v", err)
	}

	got, err := s.FindConversationByKey(ctx, "key-dup")
	if err != nil {
		t.Fatalf("finding by key: %v", err)
	}
	if got == nil || got.ID != "conv-old" {
		t.Errorf("FindConversationByKey = %+v, want conv-old", got)
	}

	missing, err := s.FindConversationByKey(ctx, "no-such-key")
	if err != nil {
		t.Fatalf("finding missing key: %v", err)
	}
	if missing != nil {
		t.Errorf("missing key returned %+v", missing)
	}
}

func TestDuplicateGroupsAndMerge(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	winner := testConversation("conv-win", "key-dup")
	loser := testConversation("conv-lose", "key-dup")
	unique := testConversation("conv-solo", "key-solo")
	for _, c := range []model.Conversation{winner, loser, unique} {
		if err := s.CreateConversation(ctx, c); err != nil {
			t.Fatalf("creating conversation %s: %v", c.ID, err)
		}
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.BatchInsertMessages(ctx, []store.InsertMessage{
		testMessage("msg-w1", "conv-win", base),
		testMessage("msg-w2", "conv-win", base.Add(time.Hour)),
		testMessage("msg-l1", "conv-lose", base.Add(2*time.Hour)),
	}, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	groups, err := s.DuplicateConversationGroups(ctx)
	if err != nil {
		t.Fatalf("listing duplicate groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d duplicate groups, want 1", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Fatalf("duplicate group has %d members, want 2", len(groups[0]))
	}
	for _, c := range groups[0] {
		if c.KeyHash != "key-dup" {
			t.Errorf("group member %s has key %q", c.ID, c.KeyHash)
		}
	}

	merged := winner
	merged.MessageCount = 3
	merged.UnreadCount = 3
	merged.LastMessageDate = base.Add(2 * time.Hour)
	if err := s.ApplyConversationMerge(ctx, merged, "conv-lose"); err != nil {
		t.Fatalf("applying merge: %v", err)
	}

	gone, err := s.GetConversationByID(ctx, "conv-lose")
	if err != nil {
		t.Fatalf("getting loser: %v", err)
	}
	if gone != nil {
		t.Error("loser conversation still exists after merge")
	}

	ids, err := s.MessageIDsForConversationKey(ctx, "key-dup")
	if err != nil {
		t.Fatalf("listing messages for key: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("got %d messages for key after merge, want 3", len(ids))
	}

	groups, err = s.DuplicateConversationGroups(ctx)
	if err != nil {
		t.Fatalf("listing duplicate groups after merge: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("got %d duplicate groups after merge, want 0", len(groups))
	}
}

func TestListConversationsOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	recent := testConversation("conv-recent", "key-a")
	recent.LastMessageDate = base.Add(2 * time.Hour)
	old := testConversation("conv-old", "key-b")
	old.LastMessageDate = base
	pinnedOld := testConversation("conv-pinned", "key-c")
	pinnedOld.LastMessageDate = base.Add(-time.Hour)
	pinnedOld.Pinned = true

	for _, c := range []model.Conversation{recent, old, pinnedOld} {
		if err := s.CreateConversation(ctx, c); err != nil {
			t.Fatalf("creating conversation %s: %v", c.ID, err)
		}
	}

	convs, err := s.ListConversations(ctx, 0)
	if err != nil {
		t.Fatalf("listing conversations: %v", err)
	}

	wantOrder := []string{"conv-pinned", "conv-recent", "conv-old"}
	if len(convs) != len(wantOrder) {
		t.Fatalf("got %d conversations, want %d", len(convs), len(wantOrder))
	}
	for i, want := range wantOrder {
		if convs[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, convs[i].ID, want)
		}
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	state, err := s.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("loading initial state: %v", err)
	}
	if state != nil {
		t.Fatalf("fresh store returned state %+v", state)
	}

	want := store.SyncState{
		AccountEmail:      "me@example.com",
		Aliases:           []string{"me@example.com", "me+alt@example.com"},
		HistoryCheckpoint: "12345",
		InstallTimestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastFullSync:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveSyncState(ctx, want); err != nil {
		t.Fatalf("saving state: %v", err)
	}

	got, err := s.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	if got == nil {
		t.Fatal("state missing after save")
	}
	if got.AccountEmail != want.AccountEmail ||
		got.HistoryCheckpoint != want.HistoryCheckpoint ||
		!got.InstallTimestamp.Equal(want.InstallTimestamp) ||
		!got.LastFullSync.Equal(want.LastFullSync) {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
	if len(got.Aliases) != 2 {
		t.Errorf("aliases = %v, want 2 entries", got.Aliases)
	}

	// Saving again updates the singleton row in place.
	want.HistoryCheckpoint = "67890"
	if err := s.SaveSyncState(ctx, want); err != nil {
		t.Fatalf("re-saving state: %v", err)
	}
	got, err = s.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("re-loading state: %v", err)
	}
	if got.HistoryCheckpoint != "67890" {
		t.Errorf("checkpoint after re-save = %q, want %q", got.HistoryCheckpoint, "67890")
	}
}

func TestLabelsRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	labels := []model.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_7", Name: "receipts", Type: "user"},
	}
	if err := s.UpsertLabels(ctx, labels); err != nil {
		t.Fatalf("upserting labels: %v", err)
	}

	renamed := []model.Label{{ID: "Label_7", Name: "invoices", Type: "user"}}
	if err := s.UpsertLabels(ctx, renamed); err != nil {
		t.Fatalf("re-upserting label: %v", err)
	}

	got, err := s.GetLabels(ctx)
	if err != nil {
		t.Fatalf("getting labels: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d labels, want 2", len(got))
	}
	// Ordered by name: INBOX, invoices.
	if got[1].Name != "invoices" {
		t.Errorf("renamed label = %q, want %q", got[1].Name, "invoices")
	}
}

func TestMessagesForConversation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, testConversation("conv-1", "key-1")); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	if err := s.CreateConversation(ctx, testConversation("conv-2", "key-2")); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []store.InsertMessage{
		testMessage("msg-2", "conv-1", base.Add(time.Hour)),
		testMessage("msg-1", "conv-1", base),
		testMessage("msg-3", "conv-2", base),
	}
	if err := s.BatchInsertMessages(ctx, msgs, store.BatchHeavy); err != nil {
		t.Fatalf("inserting messages: %v", err)
	}

	got, err := s.MessagesForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("loading messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != "msg-1" || got[1].ID != "msg-2" {
		t.Errorf("order = %s, %s; want oldest first", got[0].ID, got[1].ID)
	}

	first := got[0]
	if first.Headers.From != "alice@example.com" {
		t.Errorf("From = %q", first.Headers.From)
	}
	if len(first.Headers.To) != 1 || first.Headers.To[0] != "me@example.com" {
		t.Errorf("To = %v", first.Headers.To)
	}
	if len(first.LabelIDs) != 1 || first.LabelIDs[0] != "INBOX" {
		t.Errorf("LabelIDs = %v", first.LabelIDs)
	}
	if !first.IsUnread {
		t.Error("IsUnread = false, want true")
	}
	if first.PlainTextBody != "body of msg-1" {
		t.Errorf("PlainTextBody = %q", first.PlainTextBody)
	}
	if !first.InternalDate.Equal(base) {
		t.Errorf("InternalDate = %v, want %v", first.InternalDate, base)
	}
}
