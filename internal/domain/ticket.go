package domain

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketQueued     TicketStatus = "QUEUED"
	TicketProcessing TicketStatus = "PROCESSING"
	TicketConfirmed  TicketStatus = "CONFIRMED"
	TicketRejected   TicketStatus = "REJECTED"
)

// OrderTicket tracks an asynchronous order submission from enqueue to
// settlement. The submitted payload rides along so the worker can rebuild the
// request outside the HTTP cycle.
type OrderTicket struct {
	ID            uuid.UUID
	StoreID       string
	PrincipalID   string
	Status        TicketStatus
	Payload       []byte // JSON-encoded intake request
	ResultOrderID uuid.UUID
	RejectReason  string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
