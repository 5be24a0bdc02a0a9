package sync

import (
	gosync "sync"
	"testing"
)

func TestStatusPublisherCurrentAndSubscribe(t *testing.T) {
	p := newStatusPublisher()

	ch, cancel := p.Subscribe()
	defer cancel()

	p.update(func(s *Status) {
		s.Syncing = true
		s.Phase = "messages"
	})

	got := <-ch
	if !got.Syncing || got.Phase != "messages" {
		t.Errorf("snapshot = %+v, want syncing in messages phase", got)
	}
	if cur := p.Current(); cur.Phase != "messages" {
		t.Errorf("Current().Phase = %q, want %q", cur.Phase, "messages")
	}
}

func TestStatusPublisherConcurrentCancel(t *testing.T) {
	p := newStatusPublisher()

	var wg gosync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p.update(func(s *Status) { s.PendingOps = i })
		}
	}()

	// Subscribe and cancel in a tight loop while updates broadcast.
	// A send on a just-closed channel would panic here.
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_, cancel := p.Subscribe()
			cancel()
		}
	}()

	wg.Wait()
}

func TestStatusPublisherCancelIdempotent(t *testing.T) {
	p := newStatusPublisher()

	_, cancel := p.Subscribe()
	cancel()
	cancel()

	// Updates after the last subscriber left must not panic.
	p.update(func(s *Status) { s.Syncing = true })
}
