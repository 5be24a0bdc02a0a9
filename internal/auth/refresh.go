package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxRefreshAttempts bounds one refresh operation; terminal errors stop
// the loop early.
const maxRefreshAttempts = 3

// Refresher is the injected token refresh capability. Implementations
// exchange the stored refresh token for fresh token material and fail
// with a classified *RefreshError.
type Refresher interface {
	RefreshTokens(ctx context.Context, current TokenRecord) (TokenRecord, error)
}

// Coordinator guarantees at most one in-flight refresh per process.
// Concurrent callers of GetToken/Refresh during an active refresh all
// await the same pending operation and observe the same result: token
// endpoints typically invalidate concurrently issued refresh attempts,
// so redundant calls are not merely wasteful but harmful.
type Coordinator struct {
	store     *TokenStore
	refresher Refresher
	backoff   *Backoff
	log       zerolog.Logger

	mu       sync.Mutex
	inflight *refreshCall
	lastErr  error
}

// refreshCall is one shared refresh execution. The initiating caller
// runs the attempt loop; everyone else waits on done.
type refreshCall struct {
	done  chan struct{}
	token *TokenRecord
	err   error
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(store *TokenStore, refresher Refresher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		refresher: refresher,
		backoff:   NewBackoff(),
		log:       log.With().Str("component", "refresh").Logger(),
	}
}

// GetToken returns a live token, refreshing first when the stored one
// is missing or expiring soon.
func (c *Coordinator) GetToken(ctx context.Context) (*TokenRecord, error) {
	current, err := c.store.Current()
	if err != nil {
		return nil, fmt.Errorf("reading current token: %w", err)
	}
	if current != nil && !current.ExpiringSoon(time.Now()) {
		return current, nil
	}
	return c.Refresh(ctx)
}

// Refresh performs a single-flight refresh: if one is already running,
// the caller awaits its result; otherwise the caller becomes the owner
// and runs the attempt loop.
func (c *Coordinator) Refresh(ctx context.Context) (*TokenRecord, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for in-flight refresh: %w", ctx.Err())
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	call.token, call.err = c.runRefresh(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.lastErr = call.err
	c.mu.Unlock()

	close(call.done)
	return call.token, call.err
}

// LastError returns the most recent refresh outcome (nil on success),
// for the observability surface.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// runRefresh executes the attempt loop: up to maxRefreshAttempts tries,
// sleeping a backoff delay before every retry. Terminal errors surface
// immediately; the last retryable error surfaces after exhaustion.
func (c *Coordinator) runRefresh(ctx context.Context) (*TokenRecord, error) {
	current, err := c.store.Current()
	if err != nil {
		return nil, fmt.Errorf("reading token for refresh: %w", err)
	}
	if current == nil || current.RefreshToken == "" {
		return nil, NewRefreshError(KindNoToken, fmt.Errorf("no refresh token available"))
	}

	var lastErr error
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff.NextDelay()
			c.log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying token refresh after backoff")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("refresh backoff interrupted: %w", ctx.Err())
			}
		}

		fresh, err := c.refresher.RefreshTokens(ctx, *current)
		if err == nil {
			if err := c.store.Save(fresh); err != nil {
				return nil, fmt.Errorf("persisting refreshed token: %w", err)
			}
			c.backoff.Reset()
			c.log.Info().Time("expires_at", fresh.ExpiresAt).Msg("token refreshed")
			return &fresh, nil
		}

		lastErr = err
		if IsTerminalAuth(err) {
			c.log.Warn().Err(err).Msg("terminal refresh failure, re-authentication required")
			return nil, err
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("refresh attempt failed")
	}

	return nil, fmt.Errorf("refresh retries exhausted: %w", lastErr)
}
