// Package queue provides the bounded FIFO between transport delivery and the pipeline loop.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/dokzlo13/streamlights/internal/events"
)

// DefaultCapacity is the queue size used when none is configured
const DefaultCapacity = 32

var (
	// ErrQueueFull is returned when an event is rejected because the buffer is full
	ErrQueueFull = errors.New("event queue full")
	// ErrQueueClosed is returned when enqueueing after Close
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, single-consumer FIFO of events.
// Enqueue never blocks; Dequeue blocks until an event arrives or the queue closes.
type Queue struct {
	items chan events.Event

	// mu guards closed so that no Enqueue can succeed once Close returns.
	// The items channel itself is never closed to avoid send-on-closed panics.
	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a queue with the given capacity (DefaultCapacity if <= 0)
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:   make(chan events.Event, capacity),
		closing: make(chan struct{}),
	}
}

// Enqueue adds an event without blocking.
func (q *Queue) Enqueue(ev events.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until an event is available.
// Returns false when the queue is closed or ctx is cancelled; events still
// buffered at that point are left for Drain.
func (q *Queue) Dequeue(ctx context.Context) (events.Event, bool) {
	// Closing wins over buffered items
	select {
	case <-q.closing:
		return events.Event{}, false
	default:
	}

	select {
	case <-q.closing:
		return events.Event{}, false
	case <-ctx.Done():
		return events.Event{}, false
	case ev := <-q.items:
		return ev, true
	}
}

// Close stops accepting new events and wakes a blocked Dequeue. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.closing)
	})
}

// Closed reports whether Close has been called
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Drain removes and returns all buffered events without blocking
func (q *Queue) Drain() []events.Event {
	var drained []events.Event
	for {
		select {
		case ev := <-q.items:
			drained = append(drained, ev)
		default:
			return drained
		}
	}
}

// Len returns the number of buffered events
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.items)
}
