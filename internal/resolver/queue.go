package resolver

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by TrySubmit when the queue has no free slot.
var ErrQueueFull = errors.New("event queue full")

// Queue is the bounded hand-off between event ingestion and the resolver.
// Ingestion submits, the control loop drains at the start of every pass.
type Queue struct {
	events chan Event
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{events: make(chan Event, size)}
}

// Submit enqueues ev, blocking until there is room or ctx is done.
func (q *Queue) Submit(ctx context.Context, ev Event) error {
	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues ev without blocking.
func (q *Queue) TrySubmit(ev Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain removes and returns every queued event in arrival order.
func (q *Queue) Drain() []Event {
	var drained []Event
	for {
		select {
		case ev := <-q.events:
			drained = append(drained, ev)
		default:
			return drained
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}
