package idempotency

import (
	"context"
	"errors"
	"sync"

	"beverage-order-intake/internal/clock"
)

// ErrStateMismatch is returned when a Complete targets a record that is not
// IN_FLIGHT (missing, already completed, or already failed).
var ErrStateMismatch = errors.New("idempotency record not in expected state")

// MemoryStore keeps records in process. Suitable for single-node deployments,
// tests, and the simulator; multi-node deployments use the Redis store.
type MemoryStore struct {
	mu    sync.Mutex
	recs  map[string]Record
	clock clock.Clock
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record), clock: clk}
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if existing, ok := s.recs[rec.Key]; ok {
		live := existing.ExpiresAt.After(now) && existing.State != StateFailed
		if live {
			cp := existing
			return &cp, false, nil
		}
		// expired or failed records do not burn the key
	}
	s.recs[rec.Key] = rec
	return nil, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[key]
	if !ok || rec.State != StateInFlight {
		return ErrStateMismatch
	}
	rec.State = StateCompleted
	rec.Snapshot = snapshot
	s.recs[key] = rec
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[key]
	if !ok {
		return nil
	}
	if rec.State == StateInFlight {
		rec.State = StateFailed
		s.recs[key] = rec
	}
	return nil
}

// Sweep drops expired records. Correctness does not depend on it running;
// PutIfAbsent ignores expired records anyway.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, rec := range s.recs {
		if !rec.ExpiresAt.After(now) {
			delete(s.recs, key)
			removed++
		}
	}
	return removed
}
