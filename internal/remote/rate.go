package remote

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates outbound API calls so we respect backend rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket implements a simple fixed-rate token bucket limiter.
type TokenBucket struct {
	ticker   *time.Ticker
	tokens   chan struct{}
	quit     chan struct{}
	stopDone chan struct{}
}

// NewTokenBucket returns a limiter that releases rps tokens per second.
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	tb := &TokenBucket{
		ticker:   time.NewTicker(time.Second / time.Duration(rps)),
		tokens:   make(chan struct{}, rps),
		quit:     make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	// allow the first call to proceed immediately
	tb.tokens <- struct{}{}
	go tb.run()
	return tb
}

func (t *TokenBucket) run() {
	defer close(t.stopDone)
	for {
		select {
		case <-t.quit:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop stops the refill goroutine and waits for it to exit. Safe to
// call once; Wait after Stop blocks until the context ends.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.quit)
	<-t.stopDone
}

// NopLimiter never blocks. Used by backends that do their own pacing
// and by tests.
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context) error {
	return ctx.Err()
}

var (
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = NopLimiter{}
)
