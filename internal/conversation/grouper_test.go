package conversation

import (
	"testing"

	"github.com/mailloom/mailloom/internal/identity"
	"github.com/mailloom/mailloom/internal/model"
)

var testAliases = identity.NewAliasSet("me@gmail.com", "me@work.example.com")

func TestGroupOrderIndependence(t *testing.T) {
	a := model.NormalizedHeaders{
		From: "Alice <alice@example.com>",
		To:   []string{"me@gmail.com", "bob@example.com"},
		Cc:   []string{"carol@example.com"},
	}
	b := model.NormalizedHeaders{
		From: "carol@example.com",
		To:   []string{"Bob <bob@example.com>", "alice@example.com"},
		Cc:   []string{"M.E+filter@gmail.com"},
	}

	ka := Group(a, testAliases)
	kb := Group(b, testAliases)

	if ka.KeyHash != kb.KeyHash {
		t.Errorf("expected identical keys for same participant set, got %s vs %s",
			ka.KeyHash, kb.KeyHash)
	}
	if ka.Type != model.ConversationGroup {
		t.Errorf("expected group type, got %s", ka.Type)
	}
}

func TestGroupBccExcluded(t *testing.T) {
	base := model.NormalizedHeaders{
		From: "alice@example.com",
		To:   []string{"me@gmail.com"},
	}
	withBcc := base
	withBcc.Bcc = []string{"hidden@example.com"}

	if Group(base, testAliases).KeyHash != Group(withBcc, testAliases).KeyHash {
		t.Error("a Bcc-only address must not change the conversation key")
	}
}

func TestGroupOneToOne(t *testing.T) {
	h := model.NormalizedHeaders{
		From: "alice@example.com",
		To:   []string{"me@gmail.com"},
	}

	id := Group(h, testAliases)
	if id.Type != model.ConversationOneToOne {
		t.Errorf("expected one-to-one, got %s", id.Type)
	}
	if len(id.Participants) != 1 || id.Participants[0] != "alice@example.com" {
		t.Errorf("unexpected participants: %v", id.Participants)
	}
}

func TestGroupSelfConversation(t *testing.T) {
	// A note-to-self has zero remaining participants but still needs a
	// stable key.
	h := model.NormalizedHeaders{
		From: "me@gmail.com",
		To:   []string{"me@work.example.com"},
	}

	id := Group(h, testAliases)
	if id.Type != model.ConversationOneToOne {
		t.Errorf("expected one-to-one, got %s", id.Type)
	}
	if len(id.Participants) != 0 {
		t.Errorf("expected no participants, got %v", id.Participants)
	}
	if id.KeyHash == "" {
		t.Error("expected a key hash for the empty participant set")
	}
}

func TestGroupListPrecedence(t *testing.T) {
	h := model.NormalizedHeaders{
		From:   "announcements@lists.example.com",
		To:     []string{"me@gmail.com", "everyone@lists.example.com"},
		ListID: "Dev Announcements <dev-announce.lists.example.com>",
	}

	id := Group(h, testAliases)
	if id.Type != model.ConversationList {
		t.Fatalf("expected list type, got %s", id.Type)
	}
	if len(id.Participants) != 0 {
		t.Errorf("list conversations carry no participants, got %v", id.Participants)
	}

	// The same list token with entirely different participants keys the
	// same conversation.
	other := model.NormalizedHeaders{
		From:   "someone-else@lists.example.com",
		ListID: "<dev-announce.lists.example.com>",
	}
	if Group(other, testAliases).KeyHash != id.KeyHash {
		t.Error("list key must depend only on the list token")
	}
}

func TestGroupDeduplicatesRepeatedAddresses(t *testing.T) {
	a := model.NormalizedHeaders{
		From: "alice@example.com",
		To:   []string{"alice@example.com", "Alice <ALICE@example.com>"},
	}

	id := Group(a, testAliases)
	if id.Type != model.ConversationOneToOne {
		t.Errorf("repeated addresses must collapse to one participant, got %s", id.Type)
	}
}
