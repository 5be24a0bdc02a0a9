// Package testutil holds shared fixtures for tests that need a real
// store: conversations, messages, and labels land in an in-memory
// SQLite database with the production schema.
package testutil

import (
	"context"
	"testing"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedConversations inserts the given conversation records, failing the
// test on the first error.
func SeedConversations(t *testing.T, s store.Store, convs ...model.Conversation) {
	t.Helper()

	ctx := context.Background()
	for _, c := range convs {
		if err := s.CreateConversation(ctx, c); err != nil {
			t.Fatalf("seeding conversation %s: %v", c.ID, err)
		}
	}
}
