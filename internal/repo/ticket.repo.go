package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beverage-order-intake/internal/domain"
)

type ticketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) TicketRepo {
	return &ticketRepo{db: db}
}

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.OrderTicket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_tickets (id, store_id, principal_id, status, payload,
			result_order_id, reject_reason, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8, $9)`,
		ticket.ID, ticket.StoreID, ticket.PrincipalID, ticket.Status, ticket.Payload,
		ticket.RejectReason, ticket.Attempts, ticket.CreatedAt, ticket.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *ticketRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.OrderTicket, error) {
	var (
		ticket  domain.OrderTicket
		orderID uuid.NullUUID
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, principal_id, status, payload, result_order_id,
			reject_reason, attempts, created_at, updated_at
		FROM order_tickets WHERE id = $1`, id).Scan(
		&ticket.ID, &ticket.StoreID, &ticket.PrincipalID, &ticket.Status, &ticket.Payload,
		&orderID, &ticket.RejectReason, &ticket.Attempts, &ticket.CreatedAt, &ticket.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		ticket.ResultOrderID = orderID.UUID
	}
	return &ticket, nil
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus, resultOrderID uuid.UUID, reason string, attempts int, at time.Time) error {
	var orderID any
	if resultOrderID != uuid.Nil {
		orderID = resultOrderID
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE order_tickets
		SET status = $1, result_order_id = $2, reject_reason = $3, attempts = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		to, orderID, reason, attempts, at, id, from,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrTicketNotFound
		}
		return fmt.Errorf("%w: ticket is %s, expected %s", domain.ErrInvalidTransition, existing.Status, from)
	}
	return nil
}
