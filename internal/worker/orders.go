// Package worker runs the background side of intake: the ticket consumers
// that turn queued online orders into real orders, and the sweeper that frees
// reservations abandoned mid-pipeline.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/queue"
	"beverage-order-intake/internal/service"
)

// OrderWorker consumes ticket IDs and processes each through the intake
// pipeline with bounded concurrency and bounded retries.
type OrderWorker struct {
	queue       queue.Queue
	orders      service.OnlineOrderService
	policy      Policy
	concurrency int
	log         *logrus.Entry
}

func NewOrderWorker(q queue.Queue, orders service.OnlineOrderService, policy Policy, concurrency int, log *logrus.Entry) *OrderWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &OrderWorker{
		queue:       q,
		orders:      orders,
		policy:      policy,
		concurrency: concurrency,
		log:         log,
	}
}

// Run blocks until ctx is cancelled or the queue is closed.
func (w *OrderWorker) Run(ctx context.Context) {
	w.log.WithField("concurrency", w.concurrency).Info("order worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	w.log.Info("order worker stopped")
}

func (w *OrderWorker) consume(ctx context.Context) {
	for {
		ticketID, err := w.queue.Dequeue(ctx)
		if err != nil {
			return // queue closed or ctx done
		}
		w.handle(ctx, ticketID)
	}
}

// handle retries transient failures per the policy; rejections and successes
// are settled inside Process and end the loop immediately.
func (w *OrderWorker) handle(ctx context.Context, ticketID uuid.UUID) {
	for attempt := 1; ; attempt++ {
		if delay := w.policy.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		err := w.orders.Process(ctx, ticketID)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		w.log.WithError(err).WithFields(logrus.Fields{
			"ticket_id": ticketID,
			"attempt":   attempt,
		}).Warn("ticket processing failed")

		if w.policy.Exhausted(attempt) {
			if rejectErr := w.orders.Reject(ctx, ticketID, "order could not be processed, please resubmit"); rejectErr != nil {
				w.log.WithError(rejectErr).WithField("ticket_id", ticketID).
					Error("could not settle ticket after retries")
			}
			return
		}
	}
}
