package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
)

// itemEntry is one (store, item) stock cell. Its mutex is the per-item
// critical section; multi-item reservations take these in sorted key order so
// concurrent reservations can never deadlock.
type itemEntry struct {
	mu    sync.Mutex
	level domain.InventoryLevel
}

type MemoryLedger struct {
	itemsMu sync.RWMutex
	items   map[string]*itemEntry

	resMu        sync.Mutex
	reservations map[uuid.UUID]*domain.Reservation

	clock clock.Clock
}

func NewMemoryLedger(clk clock.Clock) *MemoryLedger {
	return &MemoryLedger{
		items:        make(map[string]*itemEntry),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		clock:        clk,
	}
}

func itemKey(storeID, itemID string) string {
	return storeID + "/" + itemID
}

func (l *MemoryLedger) entry(storeID, itemID string) (*itemEntry, bool) {
	l.itemsMu.RLock()
	defer l.itemsMu.RUnlock()
	e, ok := l.items[itemKey(storeID, itemID)]
	return e, ok
}

func (l *MemoryLedger) entryOrCreate(storeID, itemID, unit string) *itemEntry {
	l.itemsMu.Lock()
	defer l.itemsMu.Unlock()
	key := itemKey(storeID, itemID)
	if e, ok := l.items[key]; ok {
		return e
	}
	e := &itemEntry{level: domain.InventoryLevel{
		StoreID:   storeID,
		ItemID:    itemID,
		Available: decimal.Zero,
		Unit:      unit,
	}}
	l.items[key] = e
	return e
}

func (l *MemoryLedger) Reserve(_ context.Context, storeID string, lines []domain.ReservationLine) (domain.Reservation, error) {
	if len(lines) == 0 {
		return domain.Reservation{}, fmt.Errorf("%w: reservation has no lines", domain.ErrValidation)
	}

	// Merge duplicate items so lock acquisition stays strictly ordered and a
	// line cannot race itself.
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

	entries := make([]*itemEntry, 0, len(itemIDs))
	for _, id := range itemIDs {
		e, ok := l.entry(storeID, id)
		if !ok {
			return domain.Reservation{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
		}
		entries = append(entries, e)
	}

	for _, e := range entries {
		e.mu.Lock()
	}
	defer func() {
		for _, e := range entries {
			e.mu.Unlock()
		}
	}()

	// All-or-nothing: check every line before touching any quantity.
	for i, id := range itemIDs {
		if entries[i].level.Available.LessThan(merged[id]) {
			return domain.Reservation{}, fmt.Errorf("%w: item %s has %s, need %s",
				domain.ErrOutOfStock, id, entries[i].level.Available, merged[id])
		}
	}

	now := l.clock.Now()
	res := domain.Reservation{
		ID:        uuid.New(),
		StoreID:   storeID,
		State:     domain.ReservationReserved,
		CreatedAt: now,
	}
	for i, id := range itemIDs {
		entries[i].level.Available = entries[i].level.Available.Sub(merged[id])
		entries[i].level.UpdatedAt = now
		res.Lines = append(res.Lines, domain.ReservationLine{ItemID: id, Quantity: merged[id]})
	}

	l.resMu.Lock()
	cp := res
	l.reservations[res.ID] = &cp
	l.resMu.Unlock()

	return res, nil
}

func (l *MemoryLedger) Commit(_ context.Context, reservationID uuid.UUID) error {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return fmt.Errorf("%w: reservation %s", domain.ErrReservationState, reservationID)
	}
	switch res.State {
	case domain.ReservationReserved:
		res.State = domain.ReservationCommitted
		return nil
	case domain.ReservationCommitted:
		return nil
	default:
		return fmt.Errorf("%w: reservation %s already released", domain.ErrReservationState, reservationID)
	}
}

func (l *MemoryLedger) Release(ctx context.Context, reservationID uuid.UUID) error {
	l.resMu.Lock()
	res, ok := l.reservations[reservationID]
	if !ok || res.State != domain.ReservationReserved {
		// released or committed already: nothing to credit
		l.resMu.Unlock()
		return nil
	}
	res.State = domain.ReservationReleased
	lines := res.Lines
	storeID := res.StoreID
	l.resMu.Unlock()

	l.credit(storeID, lines)
	return nil
}

func (l *MemoryLedger) Reinstate(_ context.Context, reservationID uuid.UUID) error {
	l.resMu.Lock()
	res, ok := l.reservations[reservationID]
	if !ok || res.State != domain.ReservationCommitted {
		l.resMu.Unlock()
		return nil
	}
	res.State = domain.ReservationReleased
	lines := res.Lines
	storeID := res.StoreID
	l.resMu.Unlock()

	l.credit(storeID, lines)
	return nil
}

func (l *MemoryLedger) credit(storeID string, lines []domain.ReservationLine) {
	now := l.clock.Now()
	for _, line := range lines {
		e, ok := l.entry(storeID, line.ItemID)
		if !ok {
			continue // item deleted out from under us; nothing to credit into
		}
		e.mu.Lock()
		e.level.Available = e.level.Available.Add(line.Quantity)
		e.level.UpdatedAt = now
		e.mu.Unlock()
	}
}

func (l *MemoryLedger) Deduct(_ context.Context, storeID, itemID string, qty decimal.Decimal) (domain.InventoryLevel, error) {
	if qty.Sign() <= 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	e, ok := l.entry(storeID, itemID)
	if !ok {
		return domain.InventoryLevel{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.level.Available.LessThan(qty) {
		return domain.InventoryLevel{}, fmt.Errorf("%w: item %s has %s, need %s",
			domain.ErrOutOfStock, itemID, e.level.Available, qty)
	}
	e.level.Available = e.level.Available.Sub(qty)
	e.level.UpdatedAt = l.clock.Now()
	return e.level, nil
}

func (l *MemoryLedger) Restock(_ context.Context, storeID, itemID, unit string, qty decimal.Decimal) (domain.InventoryLevel, error) {
	if qty.Sign() <= 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	e := l.entryOrCreate(storeID, itemID, unit)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.level.Available = e.level.Available.Add(qty)
	if unit != "" {
		e.level.Unit = unit
	}
	e.level.UpdatedAt = l.clock.Now()
	return e.level, nil
}

func (l *MemoryLedger) Adjust(_ context.Context, storeID, itemID string, counted decimal.Decimal) (domain.InventoryLevel, error) {
	if counted.Sign() < 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: counted quantity cannot be negative", domain.ErrValidation)
	}
	e, ok := l.entry(storeID, itemID)
	if !ok {
		return domain.InventoryLevel{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.level.Available = counted
	e.level.UpdatedAt = l.clock.Now()
	return e.level, nil
}

func (l *MemoryLedger) Available(_ context.Context, storeID, itemID string) (domain.InventoryLevel, error) {
	e, ok := l.entry(storeID, itemID)
	if !ok {
		return domain.InventoryLevel{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level, nil
}

func (l *MemoryLedger) ReleaseOlderThan(ctx context.Context, age time.Duration) ([]domain.Reservation, error) {
	cutoff := l.clock.Now().Add(-age)

	l.resMu.Lock()
	var stale []uuid.UUID
	for id, res := range l.reservations {
		if res.State == domain.ReservationReserved && res.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	l.resMu.Unlock()

	var released []domain.Reservation
	for _, id := range stale {
		if err := l.Release(ctx, id); err != nil {
			return released, err
		}
		l.resMu.Lock()
		released = append(released, *l.reservations[id])
		l.resMu.Unlock()
	}
	return released, nil
}
