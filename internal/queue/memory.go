package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("queue closed")

// MemoryQueue is a buffered channel with timer-based redelivery for delayed
// retries. Single-process only; the Redis queue covers everything else.
type MemoryQueue struct {
	ch     chan uuid.UUID
	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		ch:     make(chan uuid.UUID, capacity),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if delay > 0 {
		var t *time.Timer
		t = time.AfterFunc(delay, func() {
			q.mu.Lock()
			delete(q.timers, t)
			closed := q.closed
			q.mu.Unlock()
			if !closed {
				select {
				case q.ch <- ticketID:
				default:
					// queue full after the delay; the sweep will pick the
					// ticket up as stuck
				}
			}
		})
		q.timers[t] = struct{}{}
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case q.ch <- ticketID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	return nil
}
