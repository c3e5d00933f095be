package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"beverage-order-intake/internal/domain"
)

type MemoryOrderRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]domain.Order
	counter map[string]int

	// FailCreate injects a persistence failure for pipeline rollback tests.
	FailCreate func(order *domain.Order) error
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{
		orders:  make(map[uuid.UUID]domain.Order),
		counter: make(map[string]int),
	}
}

func (r *MemoryOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		if err := r.FailCreate(order); err != nil {
			return err
		}
	}
	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := order
	return &cp, nil
}

func (r *MemoryOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return fmt.Errorf("%w: order is %s, expected %s", domain.ErrInvalidTransition, order.Status, from)
	}
	order.Status = to
	order.UpdatedAt = at
	r.orders[id] = order
	return nil
}

func (r *MemoryOrderRepo) FinalizePayment(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepo) NextOrderNumber(_ context.Context, storeID string, day time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := storeID + "/" + day.Format("20060102")
	r.counter[key]++
	return fmt.Sprintf("%s-%s-%04d", storeID, day.Format("20060102"), r.counter[key]), nil
}

// Len reports how many orders were persisted; test helper.
func (r *MemoryOrderRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type MemoryTicketRepo struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]domain.OrderTicket
}

func NewMemoryTicketRepo() *MemoryTicketRepo {
	return &MemoryTicketRepo{tickets: make(map[uuid.UUID]domain.OrderTicket)}
}

func (r *MemoryTicketRepo) Create(_ context.Context, ticket *domain.OrderTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.OrderTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := ticket
	return &cp, nil
}

func (r *MemoryTicketRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.TicketStatus, resultOrderID uuid.UUID, reason string, attempts int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if ticket.Status != from {
		return fmt.Errorf("%w: ticket is %s, expected %s", domain.ErrInvalidTransition, ticket.Status, from)
	}
	ticket.Status = to
	ticket.ResultOrderID = resultOrderID
	ticket.RejectReason = reason
	ticket.Attempts = attempts
	ticket.UpdatedAt = at
	r.tickets[id] = ticket
	return nil
}
