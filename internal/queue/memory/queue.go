// Package memory provides the bounded in-memory trigger queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adtechlab/newswire/internal/queue"
)

// ErrQueueFull is returned by TryEnqueue when the queue has no capacity.
var ErrQueueFull = errors.New("trigger queue full")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan queue.Trigger
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan queue.Trigger, capacity),
	}
}

// Enqueue pushes a trigger into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, trig queue.Trigger) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- trig:
		return nil
	}
}

// TryEnqueue pushes without blocking. Schedulers use it so a slow pipeline
// cannot back up cron ticks.
func (q *Queue) TryEnqueue(trig queue.Trigger) error {
	select {
	case q.ch <- trig:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next trigger, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (queue.Trigger, error) {
	select {
	case <-ctx.Done():
		return queue.Trigger{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case trig, ok := <-q.ch:
		if !ok {
			return queue.Trigger{}, errors.New("queue closed")
		}
		return trig, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
