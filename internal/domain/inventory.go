package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationState string

const (
	ReservationReserved  ReservationState = "RESERVED"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
)

// InventoryLevel is a point-in-time view of one item's stock in one store.
type InventoryLevel struct {
	StoreID   string
	ItemID    string
	Available decimal.Decimal
	Unit      string
	UpdatedAt time.Time
}

// ReservationLine is one item's share of a reservation.
type ReservationLine struct {
	ItemID   string
	Quantity decimal.Decimal
}

// Reservation is a provisional deduction. Quantities are already subtracted
// from the ledger while the reservation is RESERVED; commit makes the
// deduction permanent, release credits it back.
type Reservation struct {
	ID        uuid.UUID
	StoreID   string
	Lines     []ReservationLine
	State     ReservationState
	CreatedAt time.Time
}
