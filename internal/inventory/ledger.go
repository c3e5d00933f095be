// Package inventory owns availableQuantity. Nothing outside this package
// read-modify-writes stock; callers go through Reserve/Commit/Release or the
// single-item Deduct/Restock/Adjust operations.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beverage-order-intake/internal/domain"
)

// Ledger guarantees at-most-available deduction under concurrent access.
type Ledger interface {
	// Reserve provisionally deducts every line or none of them. Fails fast
	// with domain.ErrOutOfStock when any line lacks stock.
	Reserve(ctx context.Context, storeID string, lines []domain.ReservationLine) (domain.Reservation, error)

	// Commit finalizes a reservation's deduction. Quantities were already
	// subtracted at reserve time; this flips the state so the sweep and
	// Release leave it alone. Committing twice is a no-op.
	Commit(ctx context.Context, reservationID uuid.UUID) error

	// Release credits a RESERVED reservation back. Safe to call on released
	// or committed reservations: those calls change nothing.
	Release(ctx context.Context, reservationID uuid.UUID) error

	// Reinstate credits a COMMITTED reservation back, for order cancellation
	// after the sale was finalized. Idempotent like Release.
	Reinstate(ctx context.Context, reservationID uuid.UUID) error

	// Deduct is reserve+commit in one step for the ops endpoint.
	Deduct(ctx context.Context, storeID, itemID string, qty decimal.Decimal) (domain.InventoryLevel, error)

	// Restock adds received quantity, creating the item's level on first
	// shipment.
	Restock(ctx context.Context, storeID, itemID, unit string, qty decimal.Decimal) (domain.InventoryLevel, error)

	// Adjust sets the absolute counted quantity from an audit. Serializes
	// against in-flight reservations for the same item.
	Adjust(ctx context.Context, storeID, itemID string, counted decimal.Decimal) (domain.InventoryLevel, error)

	// Available reads one item's current level.
	Available(ctx context.Context, storeID, itemID string) (domain.InventoryLevel, error)

	// ReleaseOlderThan frees reservations stuck RESERVED longer than age.
	// Recovery path for a pipeline that died between reserve and commit.
	ReleaseOlderThan(ctx context.Context, age time.Duration) ([]domain.Reservation, error)
}
