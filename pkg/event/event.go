// Package event carries memory-engine lifecycle notifications to the
// embedding application. The queue is explicit and caller-owned: the
// manager publishes into it and whoever constructed the engine consumes
// it. There are no ambient global listeners.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	ItemAdded          Type = "item_added"
	CompressionNeeded  Type = "compression_needed"
	SessionCleared     Type = "session_cleared"
	Consolidated       Type = "consolidated"
	SweepCompleted     Type = "sweep_completed"
	LongTermStored     Type = "long_term_stored"
	LongTermDeleted    Type = "long_term_deleted"
	RuntimeStateUpdate Type = "runtime_state_updated"
)

// Event is one notification. Payload values are small strings; anything
// heavy belongs in the stores, not on the queue.
type Event struct {
	Type      Type
	SessionID string
	At        time.Time
	Payload   map[string]string
}

const publishTimeout = 100 * time.Millisecond

// Queue is a bounded single-consumer event queue. Publishing never blocks
// the memory engine for longer than a short grace period; overflow is
// counted and dropped rather than stalling writes.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
	closed  bool
	mu      sync.RWMutex
}

// NewQueue creates a queue with the given buffer size (minimum 1).
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size)}
}

// Publish enqueues ev, dropping it (and counting the drop) if the
// consumer stays backed up past the grace period.
func (q *Queue) Publish(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case q.ch <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case q.ch <- ev:
		case <-timer.C:
			q.dropped.Add(1)
		}
	}
}

// Next blocks until an event is available or ctx is done. The second
// return is false once the queue is closed and drained or ctx expired.
func (q *Queue) Next(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-q.ch:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Events exposes the receive side directly for select-based consumers.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Close stops the queue. Publish becomes a no-op; pending events remain
// readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Dropped returns the number of events discarded under backpressure.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
