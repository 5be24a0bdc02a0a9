package conversation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
)

// Merger repairs duplicate conversation records: historical data can
// hold several records for one key, and the merger collapses each such
// group into a single surviving record. Running it on already-clean
// data is a no-op.
type Merger struct {
	store store.Store
	log   zerolog.Logger
}

// NewMerger returns a Merger backed by the given store.
func NewMerger(s store.Store, log zerolog.Logger) *Merger {
	return &Merger{store: s, log: log.With().Str("component", "merger").Logger()}
}

// Run collapses every duplicate conversation group in the store and
// returns the number of records merged away.
func (m *Merger) Run(ctx context.Context) (int, error) {
	groups, err := m.store.DuplicateConversationGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing duplicate conversations: %w", err)
	}

	merged := 0
	for _, group := range groups {
		n, err := m.mergeGroup(ctx, group)
		if err != nil {
			return merged, err
		}
		merged += n
	}

	if merged > 0 {
		if err := m.store.RecomputeConversationRollups(ctx); err != nil {
			return merged, fmt.Errorf("recomputing rollups after merge: %w", err)
		}
		m.log.Info().Int("merged", merged).Msg("collapsed duplicate conversations")
	}

	return merged, nil
}

func (m *Merger) mergeGroup(ctx context.Context, group []model.Conversation) (int, error) {
	if len(group) < 2 {
		return 0, nil
	}

	winner := SelectWinner(group)
	merged := MergeFields(winner, group)

	count := 0
	for _, conv := range group {
		if conv.ID == winner.ID {
			continue
		}
		if err := m.store.ApplyConversationMerge(ctx, merged, conv.ID); err != nil {
			return count, fmt.Errorf("merging conversation %s into %s: %w", conv.ID, winner.ID, err)
		}
		m.log.Debug().
			Str("winner", winner.ID).
			Str("loser", conv.ID).
			Str("key", conv.KeyHash).
			Msg("merged duplicate conversation")
		count++
	}

	return count, nil
}

// SelectWinner picks the surviving record of a duplicate group: the one
// with the most messages, ties broken by the newer last message date,
// remaining ties by record ID for determinism.
func SelectWinner(group []model.Conversation) model.Conversation {
	winner := group[0]
	for _, c := range group[1:] {
		switch {
		case c.MessageCount > winner.MessageCount:
			winner = c
		case c.MessageCount == winner.MessageCount &&
			c.LastMessageDate.After(winner.LastMessageDate):
			winner = c
		case c.MessageCount == winner.MessageCount &&
			c.LastMessageDate.Equal(winner.LastMessageDate) &&
			c.ID < winner.ID:
			winner = c
		}
	}
	return winner
}

// MergeFields computes the surviving record's state from the whole
// duplicate group. User intent is never lost: pinned, muted, and inbox
// presence survive if any record carried them. Counts are summed and
// the freshest snippet wins. Merging a group of one returns the record
// unchanged, which makes repeated passes idempotent.
func MergeFields(winner model.Conversation, group []model.Conversation) model.Conversation {
	merged := winner
	merged.UnreadCount = 0
	merged.MessageCount = 0

	for _, c := range group {
		merged.Pinned = merged.Pinned || c.Pinned
		merged.Muted = merged.Muted || c.Muted
		merged.HasInboxMessages = merged.HasInboxMessages || c.HasInboxMessages
		merged.UnreadCount += c.UnreadCount
		merged.MessageCount += c.MessageCount

		if c.LastMessageDate.After(merged.LastMessageDate) {
			merged.LastMessageDate = c.LastMessageDate
			merged.Snippet = c.Snippet
		}
	}

	return merged
}
