// Package msgqueue implements the unbounded, ordered queue used to hand
// received messages from a connection's read loop to its consumer.
package msgqueue

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Queue is an unbounded FIFO. Publishing never blocks.
// A Queue must be created with New.
type Queue[T any] struct {
	mu       sync.Mutex
	items    *queue.Queue
	detached bool
	done     bool
	err      error

	// notify holds a token whenever a waiting consumer may make progress.
	notify chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// Publish appends v to the queue.
// It reports false when v was discarded because the queue was
// terminated or its consumer detached.
func (q *Queue[T]) Publish(v T) bool {
	q.mu.Lock()
	if q.done || q.detached {
		q.mu.Unlock()
		return false
	}
	q.items.Add(v)
	q.mu.Unlock()

	q.signal()
	return true
}

// Next removes and returns the oldest value, waiting for one if the
// queue is empty. Once the queue is terminated and drained, Next
// returns the error passed to Close.
func (q *Queue[T]) Next(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			v := q.items.Remove().(T)
			more := q.items.Length() > 0 || q.done
			q.mu.Unlock()
			if more {
				// Another consumer may be waiting.
				q.signal()
			}
			return v, nil
		}
		if q.done {
			err := q.err
			q.mu.Unlock()
			q.signal()
			var zero T
			return zero, err
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close terminates the queue. Values already queued are still returned
// by Next, after which Next returns err. Only the first call has an effect.
func (q *Queue[T]) Close(err error) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.done = true
	q.err = err
	q.mu.Unlock()

	q.signal()
}

// Detach drops every queued value and discards all future ones.
// It models a consumer that stopped listening.
func (q *Queue[T]) Detach() {
	q.mu.Lock()
	q.detached = true
	q.items = queue.New()
	q.mu.Unlock()
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
