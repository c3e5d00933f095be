package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/idempotency"
	"beverage-order-intake/internal/queue"
	"beverage-order-intake/internal/repo"
)

type OnlineOrderService interface {
	// Enqueue accepts the submission, persists a QUEUED ticket, and settles
	// the idempotency key immediately with the 202 body. The inventory
	// outcome arrives later via Process.
	Enqueue(ctx context.Context, principal, key string, req IntakeRequest) (TicketResponse, error)

	// Ticket returns the settlement view for polling clients.
	Ticket(ctx context.Context, ticketID uuid.UUID) (TicketResponse, error)

	// Process runs one ticket through the intake pipeline. Business failures
	// (out of stock, unknown product) settle the ticket REJECTED and return
	// nil; infrastructure failures leave the ticket PROCESSING and return the
	// error so the worker can retry.
	Process(ctx context.Context, ticketID uuid.UUID) error

	// Reject settles a ticket REJECTED after the worker exhausts retries.
	Reject(ctx context.Context, ticketID uuid.UUID, reason string) error
}

const endpointOnlineOrders = "online-orders"

type onlineOrderService struct {
	guard   *idempotency.Guard
	orders  OrderService
	tickets repo.TicketRepo
	queue   queue.Queue
	clock   clock.Clock
	log     *logrus.Entry
}

func NewOnlineOrderService(
	guard *idempotency.Guard,
	orders OrderService,
	tickets repo.TicketRepo,
	q queue.Queue,
	clk clock.Clock,
	log *logrus.Entry,
) OnlineOrderService {
	return &onlineOrderService{
		guard:   guard,
		orders:  orders,
		tickets: tickets,
		queue:   q,
		clock:   clk,
		log:     log,
	}
}

func (s *onlineOrderService) Enqueue(ctx context.Context, principal, key string, req IntakeRequest) (TicketResponse, error) {
	dec, err := s.guard.Admit(ctx, endpointOnlineOrders, principal, key)
	if err != nil {
		return TicketResponse{}, err
	}
	switch dec.Outcome {
	case idempotency.ReplayResult:
		var resp TicketResponse
		if err := json.Unmarshal(dec.Snapshot, &resp); err != nil {
			return TicketResponse{}, fmt.Errorf("decode replay snapshot: %w", err)
		}
		return resp, nil
	case idempotency.RejectDuplicate:
		return TicketResponse{}, domain.ErrDuplicateInFlight
	}

	ticket, err := s.accept(ctx, principal, req)
	if err != nil {
		if failErr := s.guard.Fail(ctx, endpointOnlineOrders, principal, key); failErr != nil {
			s.log.WithError(failErr).WithField("key", key).Warn("could not release idempotency key")
		}
		return TicketResponse{}, err
	}

	resp := ticketResponse(ticket)
	snapshot, err := json.Marshal(resp)
	if err != nil {
		return TicketResponse{}, fmt.Errorf("encode snapshot: %w", err)
	}
	// The key settles on acceptance, not on the order outcome: a duplicate
	// submission replays the same ticket and polls it.
	if err := s.guard.Complete(ctx, endpointOnlineOrders, principal, key, snapshot); err != nil {
		s.log.WithError(err).WithField("ticket_id", ticket.ID).
			Error("ticket accepted but snapshot not recorded")
	}
	return resp, nil
}

func (s *onlineOrderService) accept(ctx context.Context, principal string, req IntakeRequest) (*domain.OrderTicket, error) {
	if req.StoreID == "" {
		return nil, fmt.Errorf("%w: storeId is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", domain.ErrValidation)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode ticket payload: %w", err)
	}

	now := s.clock.Now()
	ticket := &domain.OrderTicket{
		ID:          uuid.New(),
		StoreID:     req.StoreID,
		PrincipalID: principal,
		Status:      domain.TicketQueued,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}
	if err := s.queue.Enqueue(ctx, ticket.ID, 0); err != nil {
		return nil, fmt.Errorf("enqueue ticket: %w", err)
	}

	s.log.WithFields(logrus.Fields{"ticket_id": ticket.ID, "store_id": ticket.StoreID}).
		Info("online order queued")
	return ticket, nil
}

func (s *onlineOrderService) Ticket(ctx context.Context, ticketID uuid.UUID) (TicketResponse, error) {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return TicketResponse{}, err
	}
	if ticket == nil {
		return TicketResponse{}, domain.ErrTicketNotFound
	}
	return ticketResponse(ticket), nil
}

func (s *onlineOrderService) Process(ctx context.Context, ticketID uuid.UUID) error {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket == nil {
		s.log.WithField("ticket_id", ticketID).Warn("queued ticket no longer exists")
		return nil
	}

	switch ticket.Status {
	case domain.TicketConfirmed, domain.TicketRejected:
		return nil // settled by an earlier attempt
	case domain.TicketQueued:
		if err := s.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketQueued, domain.TicketProcessing,
			uuid.Nil, "", ticket.Attempts+1, s.clock.Now()); err != nil {
			return err
		}
		ticket.Status = domain.TicketProcessing
	case domain.TicketProcessing:
		if err := s.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketProcessing, domain.TicketProcessing,
			uuid.Nil, "", ticket.Attempts+1, s.clock.Now()); err != nil {
			return err
		}
	}
	ticket.Attempts++

	var req IntakeRequest
	if err := json.Unmarshal(ticket.Payload, &req); err != nil {
		return s.settle(ctx, ticket, uuid.Nil, "malformed order payload")
	}

	order, err := s.orders.Intake(ctx, ticket.PrincipalID, req, "")
	if err != nil {
		if rejectionReason(err) != "" {
			return s.settle(ctx, ticket, uuid.Nil, rejectionReason(err))
		}
		return err // transient; the worker retries
	}
	return s.settle(ctx, ticket, order.ID, "")
}

func (s *onlineOrderService) Reject(ctx context.Context, ticketID uuid.UUID, reason string) error {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return domain.ErrTicketNotFound
	}
	return s.settle(ctx, ticket, uuid.Nil, reason)
}

// settle moves the ticket from its current status (QUEUED when Process never
// got to claim it, PROCESSING otherwise) to its terminal one.
func (s *onlineOrderService) settle(ctx context.Context, ticket *domain.OrderTicket, orderID uuid.UUID, reason string) error {
	to := domain.TicketConfirmed
	if reason != "" {
		to = domain.TicketRejected
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, ticket.Status, to,
		orderID, reason, ticket.Attempts, s.clock.Now()); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"status":    to,
		"reason":    reason,
		"attempts":  ticket.Attempts,
	}).Info("online order settled")
	return nil
}

// rejectionReason classifies pipeline errors: a non-empty reason means the
// failure is the order's own fault and no retry will fix it.
func rejectionReason(err error) string {
	for _, sentinel := range []error{
		domain.ErrOutOfStock,
		domain.ErrValidation,
		domain.ErrProductNotFound,
		domain.ErrOptionNotFound,
		domain.ErrItemNotFound,
		domain.ErrPaymentDeclined,
		domain.ErrInsufficientPoints,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return ""
}
