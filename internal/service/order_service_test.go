package service_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beverage-order-intake/internal/catalog"
	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/idempotency"
	"beverage-order-intake/internal/infrastructure/payment"
	"beverage-order-intake/internal/inventory"
	"beverage-order-intake/internal/member"
	"beverage-order-intake/internal/queue"
	"beverage-order-intake/internal/repo"
	"beverage-order-intake/internal/service"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fixture struct {
	orders  service.OrderService
	online  service.OnlineOrderService
	guard   *idempotency.Guard
	ledger  *inventory.MemoryLedger
	repo    *repo.MemoryOrderRepo
	tickets *repo.MemoryTicketRepo
	queue   *queue.MemoryQueue
	gateway *payment.MockGateway
	points  *member.MemoryPoints
	clk     clock.Clock
}

// newFixture wires the pipeline over in-memory collaborators: one latte
// consumes one unit of beans, ten units in stock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewSystem()

	cat := catalog.NewMemoryCatalog()
	cat.Put(catalog.Product{
		ID:        "latte",
		Name:      "Latte",
		BasePrice: 4500,
		Options: map[string]catalog.Option{
			"oat-milk": {ID: "oat-milk", Name: "Oat Milk", PriceAdjustment: 600},
		},
		InventoryItemID: "beans",
		Consumption:     decimal.NewFromInt(1),
	})
	cat.Put(catalog.Product{
		ID:              "milk-tea",
		Name:            "Milk Tea",
		BasePrice:       3900,
		InventoryItemID: "tea",
		Consumption:     decimal.NewFromInt(1),
	})

	ledger := inventory.NewMemoryLedger(clk)
	_, err := ledger.Restock(ctx, "s1", "beans", "unit", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = ledger.Restock(ctx, "s1", "tea", "unit", decimal.NewFromInt(10))
	require.NoError(t, err)

	f := &fixture{
		guard:   idempotency.NewGuard(idempotency.NewMemoryStore(clk), clk, time.Hour, testLog()),
		ledger:  ledger,
		repo:    repo.NewMemoryOrderRepo(),
		tickets: repo.NewMemoryTicketRepo(),
		queue:   queue.NewMemoryQueue(16),
		gateway: payment.NewMockGateway(),
		points:  member.NewMemoryPoints(),
		clk:     clk,
	}
	f.orders = service.NewOrderService(
		f.guard, f.ledger, cat, f.repo, f.gateway, f.points, events.NopPublisher{}, clk, testLog())
	f.online = service.NewOnlineOrderService(
		f.guard, f.orders, f.tickets, f.queue, clk, testLog())
	t.Cleanup(func() { f.queue.Close() })
	return f
}

func (f *fixture) available(t *testing.T, itemID string) decimal.Decimal {
	t.Helper()
	level, err := f.ledger.Available(context.Background(), "s1", itemID)
	require.NoError(t, err)
	return level.Available
}

func lattes(n int) service.IntakeRequest {
	return service.IntakeRequest{
		StoreID:       "s1",
		PaymentMethod: "CARD",
		Items:         []service.IntakeItem{{ProductID: "latte", Quantity: n}},
	}
}

func TestPosCheckoutHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := lattes(2)
	req.Items[0].OptionIDs = []string{"oat-milk"}

	resp, err := f.orders.PosCheckout(ctx, "staff-1", "k1", req)
	require.NoError(t, err)

	assert.Equal(t, string(domain.OrderPending), resp.Status)
	assert.NotEmpty(t, resp.OrderNumber)
	assert.Equal(t, int64((4500+600)*2), resp.TotalAmount)
	assert.Equal(t, resp.TotalAmount, resp.FinalAmount)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Latte", resp.Items[0].ProductName)

	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 1, f.repo.Len())

	paid, err := f.gateway.CheckStatus(ctx, "pos-checkout|staff-1|k1")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestPosCheckoutReplaysDuplicateKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)

	second, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID, "replay returns the original order")
	assert.Equal(t, 1, f.repo.Len(), "no second order persisted")
	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(9)), "deducted exactly once")
}

func TestPosCheckoutRejectsInFlightDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate the first request still running: its key is admitted but the
	// pipeline has not settled.
	dec, err := f.guard.Admit(ctx, "pos-checkout", "staff-1", "k1")
	require.NoError(t, err)
	require.Equal(t, idempotency.Proceed, dec.Outcome)

	_, err = f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.ErrorIs(t, err, domain.ErrDuplicateInFlight)
	assert.Equal(t, 0, f.repo.Len())
}

func TestPosCheckoutRequiresKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.PosCheckout(context.Background(), "staff-1", "", lattes(1))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestPosCheckoutOutOfStockIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(11))
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 0, f.repo.Len())
	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(10)), "nothing deducted")

	// After a restock the same key may try again.
	_, err = f.ledger.Restock(ctx, "s1", "beans", "", decimal.NewFromInt(5))
	require.NoError(t, err)

	resp, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(11))
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderPending), resp.Status)
}

func TestPosCheckoutPaymentDeclineUnwinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.Decline = func(int64, string) bool { return true }

	_, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(2))
	require.ErrorIs(t, err, domain.ErrPaymentDeclined)

	assert.Equal(t, 0, f.repo.Len())
	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(10)), "reservation released")
}

func TestPosCheckoutPersistFailureUnwinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("db down")
	f.repo.FailCreate = func(*domain.Order) error { return boom }

	_, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.ErrorIs(t, err, boom)
	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(10)), "reservation released")

	// The key was failed, so the client's retry goes through.
	f.repo.FailCreate = nil
	_, err = f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)
}

func TestCreateDefersPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.orders.Create(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderPending), resp.Status)

	paid, err := f.gateway.CheckStatus(ctx, "orders|staff-1|k1")
	require.NoError(t, err)
	assert.False(t, paid, "generic intake does not charge")
}

func TestCreateWithoutKeyProceedsUngated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orders.Create(ctx, "staff-1", "", lattes(1))
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderPending), first.Status)

	// No key means no dedupe: a second keyless submission is a new order.
	second, err := f.orders.Create(ctx, "staff-1", "", lattes(1))
	require.NoError(t, err)
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Equal(t, 2, f.repo.Len())
}

func TestCreateHeldOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := lattes(1)
	req.Status = string(domain.OrderHeld)
	resp, err := f.orders.Create(ctx, "staff-1", "k1", req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderHeld), resp.Status)
	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(9)), "held orders still hold their stock")

	req.Status = string(domain.OrderClosed)
	_, err = f.orders.Create(ctx, "staff-1", "k2", req)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestFinalizePaymentAppliesPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points.Credit("member-9", 2000)

	created, err := f.orders.Create(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)
	orderID := uuid.MustParse(created.OrderID)

	resp, err := f.orders.FinalizePayment(ctx, orderID, service.FinalizeRequest{
		PaymentMethod: "CARD",
		MemberID:      "member-9",
		PointsUsed:    2000,
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.OrderPreparing), resp.Status)
	assert.Equal(t, int64(2000), resp.DiscountAmount)
	assert.Equal(t, int64(4500-2000), resp.FinalAmount)

	balance, err := f.points.Balance(ctx, "member-9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// Already settled.
	_, err = f.orders.FinalizePayment(ctx, orderID, service.FinalizeRequest{PaymentMethod: "CASH"})
	require.ErrorIs(t, err, domain.ErrOrderNotPending)
}

func TestFinalizePaymentCapsPointsAtTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points.Credit("member-9", 10000)

	created, err := f.orders.Create(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)

	resp, err := f.orders.FinalizePayment(ctx, uuid.MustParse(created.OrderID), service.FinalizeRequest{
		PaymentMethod: "CARD",
		MemberID:      "member-9",
		PointsUsed:    10000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), resp.DiscountAmount)
	assert.Equal(t, int64(0), resp.FinalAmount)

	balance, err := f.points.Balance(ctx, "member-9")
	require.NoError(t, err)
	assert.Equal(t, int64(10000-4500), balance, "only the spent points leave the balance")
}

func TestFinalizePaymentRefundsPointsOnDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points.Credit("member-9", 10000)
	f.gateway.Decline = func(int64, string) bool { return true }

	created, err := f.orders.Create(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)
	orderID := uuid.MustParse(created.OrderID)

	req := service.FinalizeRequest{
		PaymentMethod: "CARD",
		MemberID:      "member-9",
		PointsUsed:    2000,
	}
	for i := 0; i < 2; i++ {
		_, err = f.orders.FinalizePayment(ctx, orderID, req)
		require.ErrorIs(t, err, domain.ErrPaymentDeclined)
	}

	balance, err := f.points.Balance(ctx, "member-9")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance, "declined charges leave the balance untouched")

	got, err := f.orders.Find(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderPending), got.Status, "order still awaits payment")
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(1))
	require.NoError(t, err)
	orderID := uuid.MustParse(created.OrderID)

	for _, status := range []domain.OrderStatus{
		domain.OrderPreparing, domain.OrderReadyForPickup, domain.OrderClosed,
	} {
		resp, err := f.orders.UpdateStatus(ctx, orderID, status)
		require.NoError(t, err)
		assert.Equal(t, string(status), resp.Status)
	}

	_, err = f.orders.UpdateStatus(ctx, orderID, domain.OrderCancelled)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "CLOSED is terminal")
}

func TestCancelRestoresInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.orders.PosCheckout(ctx, "staff-1", "k1", lattes(3))
	require.NoError(t, err)
	require.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(7)))

	_, err = f.orders.UpdateStatus(ctx, uuid.MustParse(created.OrderID), domain.OrderCancelled)
	require.NoError(t, err)

	assert.True(t, f.available(t, "beans").Equal(decimal.NewFromInt(10)), "committed stock credited back")
}

func TestFindUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Find(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestIntakeRejectsUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Create(context.Background(), "staff-1", "k1", service.IntakeRequest{
		StoreID: "s1",
		Items:   []service.IntakeItem{{ProductID: "nope", Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
