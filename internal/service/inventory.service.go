package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/inventory"
)

// InventoryService fronts the ledger for the ops endpoints and broadcasts
// level changes to the store's boards.
type InventoryService interface {
	Deduct(ctx context.Context, storeID, itemID string, qty decimal.Decimal) (InventoryLevelResponse, error)
	Restock(ctx context.Context, storeID, itemID, unit string, qty decimal.Decimal) (InventoryLevelResponse, error)
	Audit(ctx context.Context, storeID string, counts []AuditLine) ([]InventoryLevelResponse, error)
	Available(ctx context.Context, storeID, itemID string) (InventoryLevelResponse, error)
}

type inventoryService struct {
	ledger    inventory.Ledger
	publisher events.Publisher
	log       *logrus.Entry
}

func NewInventoryService(ledger inventory.Ledger, publisher events.Publisher, log *logrus.Entry) InventoryService {
	return &inventoryService{ledger: ledger, publisher: publisher, log: log}
}

func (s *inventoryService) Deduct(ctx context.Context, storeID, itemID string, qty decimal.Decimal) (InventoryLevelResponse, error) {
	level, err := s.ledger.Deduct(ctx, storeID, itemID, qty)
	if err != nil {
		return InventoryLevelResponse{}, err
	}
	s.broadcast(ctx, level)
	return levelResponse(level), nil
}

func (s *inventoryService) Restock(ctx context.Context, storeID, itemID, unit string, qty decimal.Decimal) (InventoryLevelResponse, error) {
	level, err := s.ledger.Restock(ctx, storeID, itemID, unit, qty)
	if err != nil {
		return InventoryLevelResponse{}, err
	}
	s.log.WithFields(logrus.Fields{
		"store_id": storeID,
		"item_id":  itemID,
		"received": qty,
	}).Info("shipment received")
	s.broadcast(ctx, level)
	return levelResponse(level), nil
}

// Audit applies counted quantities line by line. A bad line aborts the rest
// but the lines already applied stand, mirroring how a physical count is
// entered.
func (s *inventoryService) Audit(ctx context.Context, storeID string, counts []AuditLine) ([]InventoryLevelResponse, error) {
	var applied []InventoryLevelResponse
	for _, line := range counts {
		level, err := s.ledger.Adjust(ctx, storeID, line.ItemID, line.Counted)
		if err != nil {
			return applied, err
		}
		s.broadcast(ctx, level)
		applied = append(applied, levelResponse(level))
	}
	return applied, nil
}

func (s *inventoryService) Available(ctx context.Context, storeID, itemID string) (InventoryLevelResponse, error) {
	level, err := s.ledger.Available(ctx, storeID, itemID)
	if err != nil {
		return InventoryLevelResponse{}, err
	}
	return levelResponse(level), nil
}

func (s *inventoryService) broadcast(ctx context.Context, level domain.InventoryLevel) {
	s.publisher.Publish(ctx, level.StoreID, domain.Event{
		Action:  domain.EventInventoryChanged,
		Payload: levelResponse(level),
	})
}
