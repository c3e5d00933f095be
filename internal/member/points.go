// Package member fronts the loyalty service. Point balances live elsewhere;
// the pipeline only needs to convert and spend points at checkout.
package member

import (
	"context"
	"fmt"
	"sync"

	"beverage-order-intake/internal/domain"
)

// PointService converts and spends loyalty points. One point discounts one
// minor currency unit, capped at the order total.
type PointService interface {
	Use(ctx context.Context, memberID string, points int64) error

	// Refund returns points taken by Use when the checkout they paid for
	// did not go through.
	Refund(ctx context.Context, memberID string, points int64) error

	Balance(ctx context.Context, memberID string) (int64, error)
}

type MemoryPoints struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryPoints() *MemoryPoints {
	return &MemoryPoints{balances: make(map[string]int64)}
}

func (m *MemoryPoints) Credit(memberID string, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[memberID] += points
}

func (m *MemoryPoints) Use(_ context.Context, memberID string, points int64) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[memberID] < points {
		return fmt.Errorf("%w: member %s has %d", domain.ErrInsufficientPoints, memberID, m.balances[memberID])
	}
	m.balances[memberID] -= points
	return nil
}

func (m *MemoryPoints) Refund(_ context.Context, memberID string, points int64) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", domain.ErrValidation)
	}
	m.Credit(memberID, points)
	return nil
}

func (m *MemoryPoints) Balance(_ context.Context, memberID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[memberID], nil
}

// DiscountFor caps the spendable points at the amount still owed.
func DiscountFor(points, amountDue int64) int64 {
	if points > amountDue {
		return amountDue
	}
	return points
}
