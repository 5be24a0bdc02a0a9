package sync

import (
	gosync "sync"
	"time"
)

// Status is a snapshot of the engine's externally visible state. The
// UI renders it directly; errors inside the engine surface here rather
// than stopping the consumer loop.
type Status struct {
	Syncing    bool
	Phase      string
	Progress   float64
	StatusLine string
	PendingOps int

	LastSyncTime    time.Time
	LastError       string
	SkippedMessages int
	SyncedMessages  int

	// LastRefreshError is the most recent token refresh failure, empty
	// once a token is acquired again. A terminal value means the user
	// must re-authenticate.
	LastRefreshError string
}

// statusPublisher holds the current Status and fans out snapshots to
// subscribers. Sends never block: a subscriber that falls behind misses
// intermediate snapshots and picks up again at the next one.
type statusPublisher struct {
	mu      gosync.Mutex
	current Status
	subs    map[int]chan Status
	nextID  int
}

func newStatusPublisher() *statusPublisher {
	return &statusPublisher{subs: make(map[int]chan Status)}
}

// Current returns the latest snapshot.
func (p *statusPublisher) Current() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe registers a new listener. The returned cancel function
// must be called to release the subscription.
func (p *statusPublisher) Subscribe() (<-chan Status, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++

	ch := make(chan Status, 8)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
}

// update applies fn to the current status and broadcasts the result.
// Sends happen under the mutex so a concurrent Subscribe cancel cannot
// close a channel mid-send; they stay non-blocking, so the lock is
// only held for the map walk.
func (p *statusPublisher) update(fn func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.current)
	snapshot := p.current
	for _, ch := range p.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
