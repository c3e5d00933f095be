// Package catalog is the product lookup collaborator. The real catalog lives
// in another service; the intake pipeline only needs prices, option
// adjustments, and the inventory item each product consumes.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"beverage-order-intake/internal/domain"
)

type Option struct {
	ID              string
	Name            string
	PriceAdjustment int64 // minor units, may be negative
}

type Product struct {
	ID        string
	Name      string
	BasePrice int64 // minor units
	Options   map[string]Option

	// InventoryItemID and Consumption describe what one unit of this product
	// deducts from the ledger.
	InventoryItemID string
	Consumption     decimal.Decimal
}

type Catalog interface {
	Product(ctx context.Context, productID string) (Product, error)
	Option(ctx context.Context, productID, optionID string) (Option, error)
}

// MemoryCatalog is the in-process stand-in used by the default mode, the
// simulator, and tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]Product)}
}

func (c *MemoryCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Options == nil {
		p.Options = make(map[string]Option)
	}
	c.products[p.ID] = p
}

func (c *MemoryCatalog) Product(_ context.Context, productID string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

func (c *MemoryCatalog) Option(_ context.Context, productID, optionID string) (Option, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	opt, ok := p.Options[optionID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s for product %s", domain.ErrOptionNotFound, optionID, productID)
	}
	return opt, nil
}
