package sync

import (
	"context"
	gosync "sync"

	"github.com/mailloom/mailloom/internal/model"
)

// OperationQueue orders pending sync operations by priority. Operations
// of equal priority run in the order they were enqueued; a higher
// priority operation always runs before every lower one, no matter when
// it arrived.
type OperationQueue struct {
	mu  gosync.Mutex
	ops []model.SyncOperation

	// wake is signaled on every enqueue so a blocked consumer can
	// recheck the queue.
	wake chan struct{}
}

// NewOperationQueue returns an empty queue.
func NewOperationQueue() *OperationQueue {
	return &OperationQueue{
		wake: make(chan struct{}, 1),
	}
}

// Enqueue inserts op before the first queued operation of strictly
// lower priority, keeping arrival order within each priority tier.
func (q *OperationQueue) Enqueue(op model.SyncOperation) {
	q.mu.Lock()

	pos := len(q.ops)
	for i, queued := range q.ops {
		if queued.Priority < op.Priority {
			pos = i
			break
		}
	}

	q.ops = append(q.ops, model.SyncOperation{})
	copy(q.ops[pos+1:], q.ops[pos:])
	q.ops[pos] = op

	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the highest priority operation, reporting
// false when the queue is empty.
func (q *OperationQueue) Dequeue() (model.SyncOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return model.SyncOperation{}, false
	}

	op := q.ops[0]
	q.ops = q.ops[1:]
	return op, true
}

// DequeueWait blocks until an operation is available or the context is
// canceled.
func (q *OperationQueue) DequeueWait(ctx context.Context) (model.SyncOperation, error) {
	for {
		if op, ok := q.Dequeue(); ok {
			return op, nil
		}
		select {
		case <-ctx.Done():
			return model.SyncOperation{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of queued operations.
func (q *OperationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Clear drops every queued operation.
func (q *OperationQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
}
