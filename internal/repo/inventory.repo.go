package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/inventory"
)

// inventoryRepo is the Postgres ledger. Row locks on inventory_levels are the
// per-item critical section; rows are locked in sorted item order, mirroring
// the in-memory ledger's lock ordering.
type inventoryRepo struct {
	db    *sql.DB
	clock clock.Clock
}

func NewInventoryRepo(db *sql.DB, clk clock.Clock) inventory.Ledger {
	return &inventoryRepo{db: db, clock: clk}
}

func (r *inventoryRepo) Reserve(ctx context.Context, storeID string, lines []domain.ReservationLine) (domain.Reservation, error) {
	if len(lines) == 0 {
		return domain.Reservation{}, fmt.Errorf("%w: reservation has no lines", domain.ErrValidation)
	}

	merged := make(map[string]decimal.Decimal, len(lines))
	for _, line := range lines {
		if line.Quantity.Sign() <= 0 {
			return domain.Reservation{}, fmt.Errorf("%w: quantity must be positive for item %s", domain.ErrValidation, line.ItemID)
		}
		merged[line.ItemID] = merged[line.ItemID].Add(line.Quantity)
	}
	itemIDs := make([]string, 0, len(merged))
	for id := range merged {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	// Lock and check every line before writing anything.
	for _, itemID := range itemIDs {
		var available decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT available FROM inventory_levels WHERE store_id = $1 AND item_id = $2 FOR UPDATE`,
			storeID, itemID,
		).Scan(&available)
		if err == sql.ErrNoRows {
			return domain.Reservation{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
		}
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("lock item %s: %w", itemID, err)
		}
		if available.LessThan(merged[itemID]) {
			return domain.Reservation{}, fmt.Errorf("%w: item %s has %s, need %s",
				domain.ErrOutOfStock, itemID, available, merged[itemID])
		}
	}

	now := r.clock.Now()
	res := domain.Reservation{
		ID:        uuid.New(),
		StoreID:   storeID,
		State:     domain.ReservationReserved,
		CreatedAt: now,
	}
	for _, itemID := range itemIDs {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_levels SET available = available - $1, updated_at = $2
			WHERE store_id = $3 AND item_id = $4`,
			merged[itemID], now, storeID, itemID,
		)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("deduct item %s: %w", itemID, err)
		}
		res.Lines = append(res.Lines, domain.ReservationLine{ItemID: itemID, Quantity: merged[itemID]})
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (id, store_id, state, created_at) VALUES ($1, $2, $3, $4)`,
		res.ID, res.StoreID, res.State, res.CreatedAt,
	)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	for _, line := range res.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reservation_lines (reservation_id, item_id, quantity) VALUES ($1, $2, $3)`,
			res.ID, line.ItemID, line.Quantity,
		)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("insert reservation line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (r *inventoryRepo) Commit(ctx context.Context, reservationID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET state = $1 WHERE id = $2 AND state = $3`,
		domain.ReservationCommitted, reservationID, domain.ReservationReserved,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var state domain.ReservationState
	err = r.db.QueryRowContext(ctx,
		`SELECT state FROM reservations WHERE id = $1`, reservationID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: reservation %s", domain.ErrReservationState, reservationID)
	}
	if err != nil {
		return err
	}
	if state == domain.ReservationCommitted {
		return nil // idempotent
	}
	return fmt.Errorf("%w: reservation %s is %s", domain.ErrReservationState, reservationID, state)
}

func (r *inventoryRepo) Release(ctx context.Context, reservationID uuid.UUID) error {
	return r.creditBack(ctx, reservationID, domain.ReservationReserved)
}

func (r *inventoryRepo) Reinstate(ctx context.Context, reservationID uuid.UUID) error {
	return r.creditBack(ctx, reservationID, domain.ReservationCommitted)
}

func (r *inventoryRepo) creditBack(ctx context.Context, reservationID uuid.UUID, from domain.ReservationState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The state-match update is the idempotency gate: only the transaction
	// that flips the expected state to RELEASED credits quantities back.
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET state = $1 WHERE id = $2 AND state = $3`,
		domain.ReservationReleased, reservationID, from,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil // not in the expected state: nothing to credit
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT l.item_id, l.quantity, r.store_id
		FROM reservation_lines l JOIN reservations r ON r.id = l.reservation_id
		WHERE l.reservation_id = $1 ORDER BY l.item_id`, reservationID)
	if err != nil {
		return err
	}
	type creditLine struct {
		itemID  string
		qty     decimal.Decimal
		storeID string
	}
	var credits []creditLine
	for rows.Next() {
		var c creditLine
		if err := rows.Scan(&c.itemID, &c.qty, &c.storeID); err != nil {
			rows.Close()
			return err
		}
		credits = append(credits, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := r.clock.Now()
	for _, c := range credits {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_levels SET available = available + $1, updated_at = $2
			WHERE store_id = $3 AND item_id = $4`,
			c.qty, now, c.storeID, c.itemID,
		)
		if err != nil {
			return fmt.Errorf("credit item %s: %w", c.itemID, err)
		}
	}

	return tx.Commit()
}

func (r *inventoryRepo) Deduct(ctx context.Context, storeID, itemID string, qty decimal.Decimal) (domain.InventoryLevel, error) {
	if qty.Sign() <= 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	level := domain.InventoryLevel{StoreID: storeID, ItemID: itemID}
	err := r.db.QueryRowContext(ctx, `
		UPDATE inventory_levels SET available = available - $1, updated_at = $2
		WHERE store_id = $3 AND item_id = $4 AND available >= $1
		RETURNING available, unit, updated_at`,
		qty, r.clock.Now(), storeID, itemID,
	).Scan(&level.Available, &level.Unit, &level.UpdatedAt)
	if err == sql.ErrNoRows {
		if _, availErr := r.Available(ctx, storeID, itemID); availErr != nil {
			return domain.InventoryLevel{}, availErr
		}
		return domain.InventoryLevel{}, fmt.Errorf("%w: item %s needs %s", domain.ErrOutOfStock, itemID, qty)
	}
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	return level, nil
}

func (r *inventoryRepo) Restock(ctx context.Context, storeID, itemID, unit string, qty decimal.Decimal) (domain.InventoryLevel, error) {
	if qty.Sign() <= 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	level := domain.InventoryLevel{StoreID: storeID, ItemID: itemID}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO inventory_levels (store_id, item_id, available, unit, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id, item_id) DO UPDATE
			SET available = inventory_levels.available + EXCLUDED.available,
			    updated_at = EXCLUDED.updated_at
		RETURNING available, unit, updated_at`,
		storeID, itemID, qty, unit, r.clock.Now(),
	).Scan(&level.Available, &level.Unit, &level.UpdatedAt)
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	return level, nil
}

func (r *inventoryRepo) Adjust(ctx context.Context, storeID, itemID string, counted decimal.Decimal) (domain.InventoryLevel, error) {
	if counted.Sign() < 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: counted quantity cannot be negative", domain.ErrValidation)
	}
	level := domain.InventoryLevel{StoreID: storeID, ItemID: itemID}
	err := r.db.QueryRowContext(ctx, `
		UPDATE inventory_levels SET available = $1, updated_at = $2
		WHERE store_id = $3 AND item_id = $4
		RETURNING available, unit, updated_at`,
		counted, r.clock.Now(), storeID, itemID,
	).Scan(&level.Available, &level.Unit, &level.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.InventoryLevel{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	return level, nil
}

func (r *inventoryRepo) Available(ctx context.Context, storeID, itemID string) (domain.InventoryLevel, error) {
	level := domain.InventoryLevel{StoreID: storeID, ItemID: itemID}
	err := r.db.QueryRowContext(ctx,
		`SELECT available, unit, updated_at FROM inventory_levels WHERE store_id = $1 AND item_id = $2`,
		storeID, itemID,
	).Scan(&level.Available, &level.Unit, &level.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.InventoryLevel{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	return level, nil
}

func (r *inventoryRepo) ReleaseOlderThan(ctx context.Context, age time.Duration) ([]domain.Reservation, error) {
	cutoff := r.clock.Now().Add(-age)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, store_id, created_at FROM reservations WHERE state = $1 AND created_at < $2`,
		domain.ReservationReserved, cutoff,
	)
	if err != nil {
		return nil, err
	}
	var stale []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.StoreID, &res.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res.State = domain.ReservationReleased
		stale = append(stale, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []domain.Reservation
	for _, res := range stale {
		if err := r.Release(ctx, res.ID); err != nil {
			return released, err
		}
		released = append(released, res)
	}
	return released, nil
}
