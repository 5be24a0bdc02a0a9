package sync

import (
	"context"
	"testing"
	"time"

	"github.com/mailloom/mailloom/internal/model"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewOperationQueue()

	q.Enqueue(model.NewSyncOperation(model.OpIncremental, model.PriorityUtility))
	q.Enqueue(model.NewSyncOperation(model.OpInitial, model.PriorityUserInitiated))
	q.Enqueue(model.NewSyncOperation(model.OpIncremental, model.PriorityBackground))

	wantPriorities := []model.Priority{
		model.PriorityUserInitiated,
		model.PriorityUtility,
		model.PriorityBackground,
	}
	for i, want := range wantPriorities {
		op, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue empty", i)
		}
		if op.Priority != want {
			t.Errorf("dequeue %d priority = %s, want %s", i, op.Priority, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueueFIFOWithinTier(t *testing.T) {
	q := NewOperationQueue()

	first := model.NewSyncOperation(model.OpIncremental, model.PriorityBackground)
	second := model.NewSyncOperation(model.OpIncremental, model.PriorityBackground)
	third := model.NewSyncOperation(model.OpIncremental, model.PriorityBackground)

	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)

	for i, want := range []string{first.ID, second.ID, third.ID} {
		op, _ := q.Dequeue()
		if op.ID != want {
			t.Errorf("dequeue %d = %s, want %s", i, op.ID, want)
		}
	}
}

func TestQueueHighPriorityJumpsQueue(t *testing.T) {
	q := NewOperationQueue()

	back1 := model.NewSyncOperation(model.OpIncremental, model.PriorityBackground)
	back2 := model.NewSyncOperation(model.OpIncremental, model.PriorityBackground)
	urgent := model.NewSyncOperation(model.OpInitial, model.PriorityUserInitiated)

	q.Enqueue(back1)
	q.Enqueue(back2)
	q.Enqueue(urgent)

	op, _ := q.Dequeue()
	if op.ID != urgent.ID {
		t.Errorf("first dequeue = %s, want the user-initiated op", op.ID)
	}
}

func TestQueueClearAndLen(t *testing.T) {
	q := NewOperationQueue()

	q.Enqueue(model.NewSyncOperation(model.OpInitial, model.PriorityBackground))
	q.Enqueue(model.NewSyncOperation(model.OpIncremental, model.PriorityBackground))
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", q.Len())
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue after Clear returned an operation")
	}
}

func TestDequeueWait(t *testing.T) {
	q := NewOperationQueue()

	// Canceled context unblocks an empty-queue wait.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.DequeueWait(ctx); err == nil {
		t.Error("DequeueWait on empty queue should fail when context ends")
	}

	// An enqueue wakes a blocked consumer.
	op := model.NewSyncOperation(model.OpInitial, model.PriorityUserInitiated)
	done := make(chan model.SyncOperation, 1)
	go func() {
		got, err := q.DequeueWait(context.Background())
		if err != nil {
			t.Errorf("DequeueWait: %v", err)
		}
		done <- got
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(op)

	select {
	case got := <-done:
		if got.ID != op.ID {
			t.Errorf("DequeueWait returned %s, want %s", got.ID, op.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("DequeueWait did not wake on enqueue")
	}
}
