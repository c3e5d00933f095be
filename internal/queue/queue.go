// Package queue carries ticket IDs from intake to the background worker. The
// ticket body lives in the ticket repository; the queue only moves IDs.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Queue interface {
	// Enqueue schedules a ticket for processing after delay (zero means now).
	// Returns quickly regardless of inventory or worker state.
	Enqueue(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error

	// Dequeue blocks until a ticket is due or ctx is done.
	Dequeue(ctx context.Context) (uuid.UUID, error)

	Close() error
}
