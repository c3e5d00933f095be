// Package payment wraps the charge collaborator. Charges are keyed by the
// submission's idempotency key so a retried pipeline never double-charges.
package payment

import (
	"context"
	"sync"

	"beverage-order-intake/internal/domain"
)

type Gateway interface {
	// Charge captures amount (minor units) for the given idempotency key.
	// A repeat call with the same key returns the first outcome.
	Charge(ctx context.Context, amount int64, idempotencyKey string) error

	// CheckStatus reports whether a charge with this key went through.
	CheckStatus(ctx context.Context, idempotencyKey string) (bool, error)
}

// MockGateway approves everything unless a Decline hook says otherwise.
// It stands in for the acquirer during development and tests.
type MockGateway struct {
	mu      sync.RWMutex
	charges map[string]bool

	// Decline, when set, is consulted before approving a first-time charge.
	Decline func(amount int64, key string) bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{charges: make(map[string]bool)}
}

func (g *MockGateway) Charge(_ context.Context, amount int64, idempotencyKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if paid, seen := g.charges[idempotencyKey]; seen {
		if paid {
			return nil
		}
		return domain.ErrPaymentDeclined
	}

	if g.Decline != nil && g.Decline(amount, idempotencyKey) {
		g.charges[idempotencyKey] = false
		return domain.ErrPaymentDeclined
	}
	g.charges[idempotencyKey] = true
	return nil
}

func (g *MockGateway) CheckStatus(_ context.Context, idempotencyKey string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.charges[idempotencyKey], nil
}
