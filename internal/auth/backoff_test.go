package auth

import (
	"testing"
	"time"
)

func TestBackoffNonDecreasingAndBounded(t *testing.T) {
	b := NewBackoff()

	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		d := b.NextDelay()
		if d > 60*time.Second {
			t.Fatalf("attempt %d: delay %v exceeds max", attempt, d)
		}
		// Jitter is ±10%, so consecutive attempts at doubled bases can
		// never invert ordering until both saturate at max.
		if attempt > 0 && attempt < 6 && d < prev {
			t.Fatalf("attempt %d: delay %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffFirstDelayNearBase(t *testing.T) {
	b := NewBackoff()
	d := b.NextDelay()
	if d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("first delay %v outside base±10%%", d)
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff()
	for i := 0; i < 5; i++ {
		b.NextDelay()
	}
	b.Reset()

	d := b.NextDelay()
	if d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("delay after reset %v outside base±10%%", d)
	}
}
