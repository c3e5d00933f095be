package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderPreparing      OrderStatus = "PREPARING"
	OrderReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	OrderClosed         OrderStatus = "CLOSED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderHeld           OrderStatus = "HELD"
)

// validTransitions is the order lifecycle state machine. Terminal states
// (CLOSED, CANCELLED) have no outgoing edges.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderPreparing, OrderHeld, OrderCancelled},
	OrderHeld:           {OrderPreparing, OrderCancelled},
	OrderPreparing:      {OrderReadyForPickup, OrderCancelled},
	OrderReadyForPickup: {OrderClosed, OrderCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID             uuid.UUID
	StoreID        string
	StaffID        string
	OrderNumber    string
	Status         OrderStatus
	Items          []OrderItem
	TotalAmount    int64 // minor currency units
	DiscountAmount int64
	FinalAmount    int64
	PointsUsed     int64
	PaymentMethod  string
	MemberID       string
	ReservationID  uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem carries a snapshot of the product at order time so later catalog
// edits do not rewrite history.
type OrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   int64 // base price + option adjustments, minor units
	Quantity    int
	Notes       string
	OptionIDs   []string
}
