// Package sync orchestrates full and incremental mailbox
// synchronization: one consumer loop drains a priority queue of
// operations, fetches remote data with bounded parallelism, and
// persists normalized messages through the conversation layer.
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailloom/mailloom/internal/auth"
	"github.com/mailloom/mailloom/internal/conversation"
	"github.com/mailloom/mailloom/internal/identity"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/remote"
	"github.com/mailloom/mailloom/internal/store"
)

// TokenProvider supplies a live access token before network phases.
// OAuth backends plug the refresh coordinator in here; password
// backends leave it nil.
type TokenProvider interface {
	GetToken(ctx context.Context) (*auth.TokenRecord, error)
}

// Config tunes the engine.
type Config struct {
	// FetchConcurrency caps concurrent in-flight message fetches.
	FetchConcurrency int

	// PageSize is the maximum number of IDs requested per listing page.
	PageSize int64

	// PollInterval is how often a background incremental sync is
	// enqueued while the engine runs. Zero disables the ticker.
	PollInterval time.Duration

	// InstallBuffer widens the full-sync cutoff below the install
	// timestamp, so messages that arrived moments before install are
	// still picked up.
	InstallBuffer time.Duration
}

func (c Config) withDefaults() Config {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 5
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.InstallBuffer <= 0 {
		c.InstallBuffer = 24 * time.Hour
	}
	return c
}

// Engine is the single consumer of the operation queue. Only one
// operation executes at a time, so sync phases never race each other;
// parallelism lives inside a phase, bounded by FetchConcurrency.
type Engine struct {
	store      store.Store
	mailbox    remote.Mailbox
	tokens     TokenProvider
	serializer *conversation.Serializer
	merger     *conversation.Merger
	queue      *OperationQueue
	status     *statusPublisher
	log        zerolog.Logger
	cfg        Config
}

// NewEngine assembles an engine over the given store and mailbox.
// tokens may be nil for backends that authenticate per connection.
func NewEngine(
	st store.Store,
	mailbox remote.Mailbox,
	tokens TokenProvider,
	log zerolog.Logger,
	cfg Config,
) *Engine {
	log = log.With().Str("component", "engine").Logger()
	return &Engine{
		store:      st,
		mailbox:    mailbox,
		tokens:     tokens,
		serializer: conversation.NewSerializer(st),
		merger:     conversation.NewMerger(st, log),
		queue:      NewOperationQueue(),
		status:     newStatusPublisher(),
		log:        log,
		cfg:        cfg.withDefaults(),
	}
}

// EnqueueFullSync queues a full mailbox sync.
func (e *Engine) EnqueueFullSync(p model.Priority) {
	e.enqueue(model.NewSyncOperation(model.OpInitial, p))
}

// EnqueueIncrementalSync queues an incremental sync.
func (e *Engine) EnqueueIncrementalSync(p model.Priority) {
	e.enqueue(model.NewSyncOperation(model.OpIncremental, p))
}

// EnqueueConversationSync queues a re-fetch of one conversation's
// messages.
func (e *Engine) EnqueueConversationSync(keyHash string, p model.Priority) {
	op := model.NewSyncOperation(model.OpConversationSync, p)
	op.ConversationKey = keyHash
	e.enqueue(op)
}

// EnqueueMessageSync queues a re-fetch of a single message.
func (e *Engine) EnqueueMessageSync(messageID string, p model.Priority) {
	op := model.NewSyncOperation(model.OpMessageSync, p)
	op.MessageID = messageID
	e.enqueue(op)
}

func (e *Engine) enqueue(op model.SyncOperation) {
	e.queue.Enqueue(op)
	e.status.update(func(s *Status) {
		s.PendingOps = e.queue.Len()
	})
}

// ClearQueue drops all pending operations.
func (e *Engine) ClearQueue() {
	e.queue.Clear()
	e.status.update(func(s *Status) {
		s.PendingOps = 0
	})
}

// StatusSnapshot returns the engine's current observable state.
func (e *Engine) StatusSnapshot() Status {
	return e.status.Current()
}

// SubscribeStatus registers a listener for status snapshots. The
// returned cancel function releases the subscription.
func (e *Engine) SubscribeStatus() (<-chan Status, func()) {
	return e.status.Subscribe()
}

// Run drives the consumer loop until ctx is canceled. Operation
// failures are recovered into the status surface; only context
// cancellation ends the loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.PollInterval > 0 {
		go e.pollLoop(ctx)
	}

	for {
		op, err := e.queue.DequeueWait(ctx)
		if err != nil {
			return err
		}
		e.execute(ctx, op)
	}
}

// pollLoop enqueues a background incremental sync on every tick.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EnqueueIncrementalSync(model.PriorityBackground)
		}
	}
}

// execute runs one operation to completion, recording failures in the
// status surface instead of propagating them.
func (e *Engine) execute(ctx context.Context, op model.SyncOperation) {
	e.status.update(func(s *Status) {
		s.Syncing = true
		s.Progress = 0
		s.LastError = ""
		s.PendingOps = e.queue.Len()
		s.StatusLine = fmt.Sprintf("%s sync starting", op.Kind)
	})

	started := time.Now()
	log := e.log.With().
		Str("op", op.ID).
		Str("kind", string(op.Kind)).
		Str("priority", op.Priority.String()).
		Logger()
	log.Info().Msg("executing sync operation")

	var err error
	switch op.Kind {
	case model.OpInitial:
		err = e.fullSync(ctx)
	case model.OpIncremental:
		err = e.incrementalSync(ctx)
	case model.OpConversationSync:
		err = e.conversationSync(ctx, op.ConversationKey)
	case model.OpMessageSync:
		err = e.messageSync(ctx, op.MessageID)
	default:
		err = fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("sync operation failed")
		e.status.update(func(s *Status) {
			s.Syncing = false
			s.LastError = err.Error()
			s.StatusLine = fmt.Sprintf("%s sync failed: %v", op.Kind, err)
			s.PendingOps = e.queue.Len()
		})
		return
	}

	log.Info().Dur("elapsed", time.Since(started)).Msg("sync operation complete")
	e.status.update(func(s *Status) {
		s.Syncing = false
		s.Progress = 1
		s.LastSyncTime = time.Now()
		s.StatusLine = fmt.Sprintf("%s sync complete", op.Kind)
		s.PendingOps = e.queue.Len()
	})
}

func (e *Engine) setPhase(phase string, progress float64) {
	e.status.update(func(s *Status) {
		s.Phase = phase
		s.Progress = progress
		s.StatusLine = phase
	})
}

// fullSync mirrors the whole mailbox: profile and aliases, labels, a
// paged ID listing bounded by the install cutoff, bounded-concurrency
// fetch, heavy batch insert, then rollups and checkpoint save.
func (e *Engine) fullSync(ctx context.Context) error {
	e.setPhase("authorizing", 0.05)
	if err := e.ensureToken(ctx); err != nil {
		return err
	}

	e.setPhase("fetching profile", 0.1)
	profile, err := e.mailbox.Profile(ctx)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}
	aliasList, err := e.mailbox.Aliases(ctx)
	if err != nil {
		return fmt.Errorf("fetching aliases: %w", err)
	}
	aliases := identity.NewAliasSet(append(aliasList, profile.EmailAddress)...)

	state, err := e.store.LoadSyncState(ctx)
	if err != nil {
		return fmt.Errorf("loading sync state: %w", err)
	}
	if state == nil {
		state = &store.SyncState{}
	}
	state.AccountEmail = profile.EmailAddress
	state.Aliases = canonicalAliases(aliases)
	if state.InstallTimestamp.IsZero() {
		state.InstallTimestamp = time.Now().UTC()
	}
	if err := e.store.SaveSyncState(ctx, *state); err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}

	e.setPhase("fetching labels", 0.15)
	labels, err := e.mailbox.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("fetching labels: %w", err)
	}
	if err := e.store.UpsertLabels(ctx, labels); err != nil {
		return fmt.Errorf("storing labels: %w", err)
	}

	e.setPhase("listing messages", 0.2)
	since := state.InstallTimestamp.Add(-e.cfg.InstallBuffer)
	var ids []string
	pageToken := ""
	for {
		page, err := e.mailbox.ListMessageIDs(ctx, pageToken, e.cfg.PageSize, since)
		if err != nil {
			return fmt.Errorf("listing messages: %w", err)
		}
		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	e.setPhase("fetching messages", 0.3)
	synced, skipped, err := e.fetchAndInsert(ctx, ids, aliases, store.BatchHeavy, 0.3, 0.85)
	if err != nil {
		return err
	}

	e.setPhase("updating conversations", 0.9)
	if err := e.finishSync(ctx); err != nil {
		return err
	}

	if e.mailbox.SupportsHistory() {
		state.HistoryCheckpoint = profile.HistoryID
	}
	state.LastFullSync = time.Now().UTC()
	if err := e.store.SaveSyncState(ctx, *state); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	e.status.update(func(s *Status) {
		s.SyncedMessages = synced
		s.SkippedMessages = skipped
	})
	e.log.Info().
		Int("synced", synced).
		Int("skipped", skipped).
		Str("checkpoint", state.HistoryCheckpoint).
		Msg("full sync finished")
	return nil
}

// incrementalSync applies history deltas recorded after the stored
// checkpoint. Without a usable checkpoint it falls back to a full sync.
func (e *Engine) incrementalSync(ctx context.Context) error {
	state, err := e.store.LoadSyncState(ctx)
	if err != nil {
		return fmt.Errorf("loading sync state: %w", err)
	}
	if state == nil || state.HistoryCheckpoint == "" || !e.mailbox.SupportsHistory() {
		e.log.Info().Msg("no usable history checkpoint, falling back to full sync")
		return e.fullSync(ctx)
	}

	e.setPhase("authorizing", 0.05)
	if err := e.ensureToken(ctx); err != nil {
		return err
	}

	e.setPhase("listing history", 0.1)
	var (
		addedIDs   []string
		updated    []remote.UpdatedMessage
		removedIDs []string
		checkpoint = state.HistoryCheckpoint
	)
	pageToken := ""
	for {
		page, err := e.mailbox.ListHistory(ctx, state.HistoryCheckpoint, pageToken)
		if err != nil {
			if remote.IsHistoryExpired(err) {
				e.log.Warn().Err(err).Msg("history checkpoint expired, falling back to full sync")
				return e.fullSync(ctx)
			}
			return fmt.Errorf("listing history: %w", err)
		}
		addedIDs = append(addedIDs, page.AddedIDs...)
		updated = append(updated, page.Updated...)
		removedIDs = append(removedIDs, page.RemovedIDs...)
		if page.LatestCheckpoint != "" {
			checkpoint = page.LatestCheckpoint
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	aliases := identity.NewAliasSet(state.Aliases...)

	// Skip additions already stored by an overlapping earlier pass.
	existing, err := e.store.ExistingMessageIDs(ctx, addedIDs)
	if err != nil {
		return fmt.Errorf("checking existing messages: %w", err)
	}
	newIDs := addedIDs[:0]
	for _, id := range addedIDs {
		if !existing[id] {
			newIDs = append(newIDs, id)
		}
	}

	e.setPhase("fetching new messages", 0.3)
	synced, skipped, err := e.fetchAndInsert(ctx, newIDs, aliases, store.BatchLightweight, 0.3, 0.7)
	if err != nil {
		return err
	}

	e.setPhase("applying updates", 0.75)
	if len(updated) > 0 {
		msgUpdates := make([]model.MessageUpdate, 0, len(updated))
		for _, u := range updated {
			msgUpdates = append(msgUpdates, model.MessageUpdate{
				ID:       u.ID,
				LabelIDs: u.LabelIDs,
				IsUnread: hasLabel(u.LabelIDs, "UNREAD"),
			})
		}
		if err := e.store.BatchUpdateMessages(ctx, msgUpdates, store.BatchLightweight); err != nil {
			return fmt.Errorf("applying message updates: %w", err)
		}
	}
	if len(removedIDs) > 0 {
		if err := e.store.BatchDeleteMessages(ctx, removedIDs, store.BatchLightweight); err != nil {
			return fmt.Errorf("deleting removed messages: %w", err)
		}
	}

	e.setPhase("updating conversations", 0.9)
	if err := e.finishSync(ctx); err != nil {
		return err
	}

	state.HistoryCheckpoint = checkpoint
	if err := e.store.SaveSyncState(ctx, *state); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	e.status.update(func(s *Status) {
		s.SyncedMessages = synced
		s.SkippedMessages = skipped
	})
	e.log.Info().
		Int("added", synced).
		Int("updated", len(updated)).
		Int("removed", len(removedIDs)).
		Int("skipped", skipped).
		Str("checkpoint", checkpoint).
		Msg("incremental sync finished")
	return nil
}

// conversationSync re-fetches every stored message of one conversation.
func (e *Engine) conversationSync(ctx context.Context, keyHash string) error {
	if keyHash == "" {
		return fmt.Errorf("conversation sync without a key")
	}

	if err := e.ensureToken(ctx); err != nil {
		return err
	}

	ids, err := e.store.MessageIDsForConversationKey(ctx, keyHash)
	if err != nil {
		return fmt.Errorf("listing conversation messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	aliases, err := e.storedAliases(ctx)
	if err != nil {
		return err
	}

	e.setPhase("refreshing conversation", 0.3)
	// Refresh semantics: the re-fetched rows must replace what is
	// stored, so this path uses the trumping conflict policy.
	_, _, err = e.fetchAndInsert(ctx, ids, aliases, store.BatchHeavy, 0.3, 0.9)
	if err != nil {
		return err
	}

	return e.finishSync(ctx)
}

// messageSync re-fetches a single remote message.
func (e *Engine) messageSync(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message sync without an id")
	}

	if err := e.ensureToken(ctx); err != nil {
		return err
	}

	aliases, err := e.storedAliases(ctx)
	if err != nil {
		return err
	}

	raw, err := e.mailbox.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("fetching message %s: %w", messageID, err)
	}

	insert, err := e.resolveMessage(ctx, raw, aliases)
	if err != nil {
		return err
	}
	// Same refresh semantics as conversationSync: replace the stored row.
	if err := e.store.BatchInsertMessages(ctx, []store.InsertMessage{insert}, store.BatchHeavy); err != nil {
		return fmt.Errorf("storing message %s: %w", messageID, err)
	}

	return e.finishSync(ctx)
}

// refreshErrorReporter is implemented by token providers that track
// their most recent refresh outcome (the OAuth coordinator).
type refreshErrorReporter interface {
	LastError() error
}

// ensureToken pulls a live token through the refresh coordinator when
// one is wired, mirroring the refresh outcome into the status surface.
func (e *Engine) ensureToken(ctx context.Context) error {
	if e.tokens == nil {
		return nil
	}
	if _, err := e.tokens.GetToken(ctx); err != nil {
		refreshErr := err
		if reporter, ok := e.tokens.(refreshErrorReporter); ok {
			if last := reporter.LastError(); last != nil {
				refreshErr = last
			}
		}
		e.status.update(func(s *Status) { s.LastRefreshError = refreshErr.Error() })
		return fmt.Errorf("acquiring token: %w", err)
	}
	e.status.update(func(s *Status) { s.LastRefreshError = "" })
	return nil
}

// storedAliases rebuilds the alias set from persisted sync state.
func (e *Engine) storedAliases(ctx context.Context) (identity.AliasSet, error) {
	state, err := e.store.LoadSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}
	if state == nil {
		return identity.NewAliasSet(), nil
	}
	return identity.NewAliasSet(state.Aliases...), nil
}

// fetchAndInsert fetches the given message IDs with bounded
// concurrency, resolves each to a conversation, and batch-inserts the
// results. A failed fetch is logged and skipped; it never aborts the
// pass. Returns how many messages were stored and how many skipped.
func (e *Engine) fetchAndInsert(
	ctx context.Context,
	ids []string,
	aliases identity.AliasSet,
	cfg store.BatchConfig,
	progressFrom, progressTo float64,
) (synced, skipped int, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}

	type fetchResult struct {
		raw remote.RawMessage
		err error
		id  string
	}

	semaphore := make(chan struct{}, e.cfg.FetchConcurrency)
	results := make(chan fetchResult, len(ids))

	for _, id := range ids {
		go func(id string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			raw, err := e.mailbox.GetMessage(ctx, id)
			results <- fetchResult{raw: raw, err: err, id: id}
		}(id)
	}

	inserts := make([]store.InsertMessage, 0, len(ids))
	for i := 0; i < len(ids); i++ {
		r := <-results
		if r.err != nil {
			skipped++
			e.log.Warn().Err(r.err).Str("message", r.id).Msg("skipping message fetch failure")
			continue
		}

		insert, resolveErr := e.resolveMessage(ctx, r.raw, aliases)
		if resolveErr != nil {
			return synced, skipped, resolveErr
		}
		inserts = append(inserts, insert)

		if i%20 == 0 {
			done := float64(i+1) / float64(len(ids))
			e.setPhase("fetching messages",
				progressFrom+(progressTo-progressFrom)*done)
		}
	}

	if err := e.store.BatchInsertMessages(ctx, inserts, cfg); err != nil {
		return 0, skipped, fmt.Errorf("batch inserting messages: %w", err)
	}

	return len(inserts), skipped, nil
}

// resolveMessage normalizes one raw message and resolves its
// conversation through the serializer.
func (e *Engine) resolveMessage(
	ctx context.Context,
	raw remote.RawMessage,
	aliases identity.AliasSet,
) (store.InsertMessage, error) {
	msg := Normalize(raw, aliases)
	ident := conversation.Group(msg.Headers, aliases)

	conv, err := e.serializer.Resolve(ctx, ident)
	if err != nil {
		return store.InsertMessage{}, fmt.Errorf("resolving conversation for %s: %w", msg.ID, err)
	}

	return store.InsertMessage{Message: msg, ConversationID: conv.ID}, nil
}

// finishSync is the shared tail of every operation: recompute rollups,
// then run the duplicate merger as a maintenance pass.
func (e *Engine) finishSync(ctx context.Context) error {
	if err := e.store.RecomputeConversationRollups(ctx); err != nil {
		return fmt.Errorf("recomputing rollups: %w", err)
	}
	if _, err := e.merger.Run(ctx); err != nil {
		return fmt.Errorf("merging duplicates: %w", err)
	}
	return nil
}

func canonicalAliases(aliases identity.AliasSet) []string {
	out := make([]string, 0, len(aliases))
	for a := range aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
