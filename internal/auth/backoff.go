package auth

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff produces exponentially growing delays with jitter:
// min(base * factor^attempt, max), plus or minus jitterFraction.
// Safe for concurrent use.
type Backoff struct {
	base           time.Duration
	factor         float64
	max            time.Duration
	jitterFraction float64

	mu      sync.Mutex
	attempt int
}

// NewBackoff returns a backoff with the refresh defaults:
// base 1s, factor 2, max 60s, jitter ±10%.
func NewBackoff() *Backoff {
	return &Backoff{
		base:           time.Second,
		factor:         2,
		max:            60 * time.Second,
		jitterFraction: 0.1,
	}
}

// NextDelay returns the delay for the current attempt and advances the
// attempt counter.
func (b *Backoff) NextDelay() time.Duration {
	b.mu.Lock()
	attempt := b.attempt
	b.attempt++
	b.mu.Unlock()

	delay := float64(b.base)
	for i := 0; i < attempt; i++ {
		delay *= b.factor
		if delay >= float64(b.max) {
			delay = float64(b.max)
			break
		}
	}

	jitter := 1 + b.jitterFraction*(2*rand.Float64()-1)
	jittered := time.Duration(delay * jitter)
	if jittered > b.max {
		jittered = b.max
	}
	return jittered
}

// Reset zeroes the attempt counter after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
