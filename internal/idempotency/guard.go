// Package idempotency gates order-mutating requests on a client-supplied
// idempotency key. The atomic insert-if-absent on the record store is the
// concurrency gate: whoever inserts the IN_FLIGHT record owns the right to
// mutate inventory for that key.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
)

type State string

const (
	StateInFlight  State = "IN_FLIGHT"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Record is one key's lifecycle entry. Snapshot holds the JSON response
// payload once the key is COMPLETED.
type Record struct {
	Key       string
	State     State
	Snapshot  []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the record store. Its only mutation primitives are conditional:
// insert-if-absent and update-if-state-matches, never a blind overwrite.
type Store interface {
	// PutIfAbsent inserts rec when no live record exists for rec.Key and
	// returns inserted=true. Expired and FAILED records count as absent and
	// are replaced. Otherwise the existing record is returned.
	PutIfAbsent(ctx context.Context, rec Record) (existing *Record, inserted bool, err error)

	// Complete transitions the key from IN_FLIGHT to COMPLETED, storing the
	// snapshot. It fails when the record is missing or not IN_FLIGHT.
	Complete(ctx context.Context, key string, snapshot []byte) error

	// Fail marks the key retryable after a failed attempt. Missing records
	// are not an error.
	Fail(ctx context.Context, key string) error
}

type Outcome int

const (
	// Proceed: first sighting, caller owns the pipeline run and must call
	// Complete or Fail exactly once.
	Proceed Outcome = iota
	// RejectDuplicate: another request with the same key is still in flight.
	RejectDuplicate
	// ReplayResult: the key already completed; Snapshot carries the original
	// response.
	ReplayResult
)

type Decision struct {
	Outcome  Outcome
	Snapshot []byte
}

type Guard struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
	log   *logrus.Entry
}

func NewGuard(store Store, clk clock.Clock, ttl time.Duration, log *logrus.Entry) *Guard {
	return &Guard{store: store, clock: clk, ttl: ttl, log: log}
}

// scopedKey ties a client key to the authenticated principal and endpoint so
// two callers (or two endpoints) reusing the same token never collide.
func scopedKey(endpoint, principal, key string) string {
	return endpoint + "|" + principal + "|" + key
}

// Admit decides what the caller may do with this submission.
func (g *Guard) Admit(ctx context.Context, endpoint, principal, key string) (Decision, error) {
	if key == "" {
		return Decision{}, domain.ErrIdempotencyKeyRequired
	}

	now := g.clock.Now()
	rec := Record{
		Key:       scopedKey(endpoint, principal, key),
		State:     StateInFlight,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}

	existing, inserted, err := g.store.PutIfAbsent(ctx, rec)
	if err != nil {
		return Decision{}, fmt.Errorf("idempotency admit: %w", err)
	}
	if inserted {
		return Decision{Outcome: Proceed}, nil
	}

	switch existing.State {
	case StateCompleted:
		return Decision{Outcome: ReplayResult, Snapshot: existing.Snapshot}, nil
	default:
		g.log.WithFields(logrus.Fields{"key": key, "endpoint": endpoint}).
			Warn("duplicate submission while first request in flight")
		return Decision{Outcome: RejectDuplicate}, nil
	}
}

// Complete records the pipeline result so future duplicates replay it.
func (g *Guard) Complete(ctx context.Context, endpoint, principal, key string, snapshot []byte) error {
	return g.store.Complete(ctx, scopedKey(endpoint, principal, key), snapshot)
}

// Fail releases the key so a legitimate retry can run the pipeline again.
func (g *Guard) Fail(ctx context.Context, endpoint, principal, key string) error {
	return g.store.Fail(ctx, scopedKey(endpoint, principal, key))
}
