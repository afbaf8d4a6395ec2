// Package session implements the per-call orchestration between the client
// socket and the model-service duplex stream: the ordered upstream event
// queue, the session state machine, the downstream demultiplexer, the tool
// dispatcher and the session manager with its inactivity sweeper.
package session

import (
	"context"
	"sync"

	"github.com/voicebridge/voice-gateway/internal/events"
)

// EventQueue is the strictly ordered FIFO of upstream protocol events for one
// session. Enqueue never blocks; Next suspends until an event arrives or the
// queue is closed. After Close, queued events are still drained in order
// before Next reports exhaustion.
type EventQueue struct {
	mu     sync.Mutex
	items  []events.Upstream
	signal chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewEventQueue creates an empty queue
func NewEventQueue() *EventQueue {
	return &EventQueue{
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Enqueue appends an event and wakes any waiter. Returns false if the queue
// is closed.
func (q *EventQueue) Enqueue(ev events.Upstream) bool {
	select {
	case <-q.closed:
		return false
	default:
	}

	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Next returns the next event in enqueue order. It blocks until an event is
// available; ok is false once the queue is closed and drained, or the context
// is done.
func (q *EventQueue) Next(ctx context.Context) (events.Upstream, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.closed:
			// Late enqueues may have raced the close; drain them.
			q.mu.Lock()
			if len(q.items) > 0 {
				ev := q.items[0]
				q.items = q.items[1:]
				q.mu.Unlock()
				return ev, true
			}
			q.mu.Unlock()
			return events.Upstream{}, false
		case <-ctx.Done():
			return events.Upstream{}, false
		}
	}
}

// Close releases all waiters. Idempotent.
func (q *EventQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

// Len returns the number of events waiting
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
