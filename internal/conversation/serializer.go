package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
)

// Serializer resolves conversation identities to stored conversation
// records. All find-or-create traffic passes through one mutex, so
// concurrent resolutions of the same key can never race into creating
// two records: after the first caller creates the record, every later
// caller finds it.
type Serializer struct {
	store store.Store
	mu    sync.Mutex
}

// NewSerializer returns a Serializer backed by the given store.
func NewSerializer(s store.Store) *Serializer {
	return &Serializer{store: s}
}

// Resolve returns the conversation record for ident, creating it when
// none exists yet.
func (s *Serializer) Resolve(ctx context.Context, ident Identity) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.FindConversationByKey(ctx, ident.KeyHash)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("finding conversation by key: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	conv := model.Conversation{
		ID:           uuid.New().String(),
		KeyHash:      ident.KeyHash,
		Type:         ident.Type,
		Participants: ident.Participants,
		DisplayName:  ident.DisplayName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return model.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}

	return conv, nil
}
