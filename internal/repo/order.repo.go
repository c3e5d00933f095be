package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"beverage-order-intake/internal/domain"
)

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var reservationID any
	if order.ReservationID != uuid.Nil {
		reservationID = order.ReservationID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, store_id, staff_id, order_number, status, total_amount,
			discount_amount, final_amount, points_used, payment_method, member_id,
			reservation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		order.ID, order.StoreID, order.StaffID, order.OrderNumber, order.Status,
		order.TotalAmount, order.DiscountAmount, order.FinalAmount, order.PointsUsed,
		order.PaymentMethod, order.MemberID, reservationID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name,
				unit_price, quantity, notes, option_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, i, item.ProductID, item.ProductName,
			item.UnitPrice, item.Quantity, item.Notes, strings.Join(item.OptionIDs, ","),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var (
		order         domain.Order
		reservationID uuid.NullUUID
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, staff_id, order_number, status, total_amount,
			discount_amount, final_amount, points_used, payment_method, member_id,
			reservation_id, created_at, updated_at
		FROM orders WHERE id = $1`, id).Scan(
		&order.ID, &order.StoreID, &order.StaffID, &order.OrderNumber, &order.Status,
		&order.TotalAmount, &order.DiscountAmount, &order.FinalAmount, &order.PointsUsed,
		&order.PaymentMethod, &order.MemberID, &reservationID, &order.CreatedAt, &order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	if reservationID.Valid {
		order.ReservationID = reservationID.UUID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity, notes, option_ids
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    domain.OrderItem
			options string
		)
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.UnitPrice,
			&item.Quantity, &item.Notes, &options); err != nil {
			return nil, err
		}
		if options != "" {
			item.OptionIDs = strings.Split(options, ",")
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from,
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
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("%w: order is %s, expected %s", domain.ErrInvalidTransition, existing.Status, from)
	}
	return nil
}

func (r *orderRepo) FinalizePayment(ctx context.Context, order *domain.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, discount_amount = $3, final_amount = $4, points_used = $5,
			payment_method = $6, member_id = $7, updated_at = $8
		WHERE id = $1`,
		order.ID, order.Status, order.DiscountAmount, order.FinalAmount,
		order.PointsUsed, order.PaymentMethod, order.MemberID, order.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepo) NextOrderNumber(ctx context.Context, storeID string, day time.Time) (string, error) {
	var counter int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_numbers (store_id, day, counter) VALUES ($1, $2, 1)
		ON CONFLICT (store_id, day) DO UPDATE SET counter = order_numbers.counter + 1
		RETURNING counter`,
		storeID, day.Format("2006-01-02"),
	).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", storeID, day.Format("20060102"), counter), nil
}
