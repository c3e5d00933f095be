// Command simulate hammers the checkout pipeline in-process: many concurrent
// submissions against deliberately scarce stock, plus duplicate keys, then
// prints whether any stock was oversold or any submission double-charged.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/catalog"
	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/idempotency"
	"beverage-order-intake/internal/infrastructure/payment"
	"beverage-order-intake/internal/inventory"
	"beverage-order-intake/internal/member"
	"beverage-order-intake/internal/repo"
	"beverage-order-intake/internal/service"
)

const (
	storeID     = "store-sim"
	submissions = 50
	duplicates  = 3 // extra submissions per key for the first few orders
	stockUnits  = 20
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // keep the tally readable
	log := logger.WithField("app", "simulate")

	ctx := context.Background()
	clk := clock.NewSystem()

	ledger := inventory.NewMemoryLedger(clk)
	cat := catalog.NewMemoryCatalog()
	cat.Put(catalog.Product{
		ID:              "latte",
		Name:            "Latte",
		BasePrice:       4500,
		InventoryItemID: "coffee-beans",
		Consumption:     decimal.NewFromInt(1),
	})
	if _, err := ledger.Restock(ctx, storeID, "coffee-beans", "unit", decimal.NewFromInt(stockUnits)); err != nil {
		panic(err)
	}

	guard := idempotency.NewGuard(idempotency.NewMemoryStore(clk), clk, time.Hour, log)
	svc := service.NewOrderService(
		guard, ledger, cat, repo.NewMemoryOrderRepo(), payment.NewMockGateway(),
		member.NewMemoryPoints(), events.NopPublisher{}, clk, log,
	)

	fmt.Printf("--- %d concurrent checkouts, stock %d ---\n", submissions, stockUnits)

	var (
		mu       sync.Mutex
		accepted = make(map[string]int) // orderID -> times returned
		soldOut  int
		conflict int
		failed   int
	)
	var wg sync.WaitGroup
	for i := 0; i < submissions; i++ {
		key := fmt.Sprintf("sim-key-%d", i)
		attempts := 1
		if i < 10 {
			attempts += duplicates
		}
		for a := 0; a < attempts; a++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := svc.PosCheckout(ctx, "staff-sim", key, service.IntakeRequest{
					StoreID:       storeID,
					PaymentMethod: "CARD",
					Items:         []service.IntakeItem{{ProductID: "latte", Quantity: 1}},
				})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted[resp.OrderID]++
				case errors.Is(err, domain.ErrOutOfStock):
					soldOut++
				case errors.Is(err, domain.ErrDuplicateInFlight):
					conflict++
				default:
					failed++
				}
			}()
		}
	}
	wg.Wait()

	level, err := ledger.Available(ctx, storeID, "coffee-beans")
	if err != nil {
		panic(err)
	}

	fmt.Printf("distinct orders:      %d\n", len(accepted))
	fmt.Printf("replayed duplicates:  %d\n", totalResponses(accepted)-len(accepted))
	fmt.Printf("rejected (conflict):  %d\n", conflict)
	fmt.Printf("rejected (sold out):  %d\n", soldOut)
	fmt.Printf("other failures:       %d\n", failed)
	fmt.Printf("stock remaining:      %s\n", level.Available)

	if level.Available.Sign() < 0 {
		fmt.Println("RESULT: OVERSOLD — ledger invariant broken")
		return
	}
	want := decimal.NewFromInt(stockUnits - int64(len(accepted)))
	if !level.Available.Equal(want) {
		fmt.Printf("RESULT: LEAK — expected %s remaining, found %s\n", want, level.Available)
		return
	}
	fmt.Println("RESULT: OK — every accepted order deducted exactly once")
}

func totalResponses(accepted map[string]int) int {
	n := 0
	for _, c := range accepted {
		n += c
	}
	return n
}
