// Package repo persists orders and async tickets. Interfaces are satisfied by
// in-memory stores (default mode, tests, simulator) and by Postgres stores.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"beverage-order-intake/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// UpdateStatus moves the order from one status to another; the write only
	// lands when the stored status still matches from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error

	// FinalizePayment writes the payment fields set by PATCH /orders/:id/checkout.
	FinalizePayment(ctx context.Context, order *domain.Order) error

	// NextOrderNumber hands out the store's next human-readable number for
	// the given business day, e.g. S1-20260828-0042.
	NextOrderNumber(ctx context.Context, storeID string, day time.Time) (string, error)
}

type TicketRepo interface {
	Create(ctx context.Context, ticket *domain.OrderTicket) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.OrderTicket, error)

	// UpdateStatus transitions the ticket when its stored status matches
	// from, recording attempts and, on settlement, the result order or the
	// rejection reason.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus, resultOrderID uuid.UUID, reason string, attempts int, at time.Time) error
}
