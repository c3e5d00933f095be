package worker_test

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
	"go.uber.org/goleak"

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
	"beverage-order-intake/internal/worker"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type harness struct {
	queue   *queue.MemoryQueue
	orders  *repo.MemoryOrderRepo
	tickets *repo.MemoryTicketRepo
	online  service.OnlineOrderService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewSystem()

	cat := catalog.NewMemoryCatalog()
	cat.Put(catalog.Product{
		ID:              "latte",
		Name:            "Latte",
		BasePrice:       4500,
		InventoryItemID: "beans",
		Consumption:     decimal.NewFromInt(1),
	})
	ledger := inventory.NewMemoryLedger(clk)
	_, err := ledger.Restock(ctx, "s1", "beans", "unit", decimal.NewFromInt(5))
	require.NoError(t, err)

	guard := idempotency.NewGuard(idempotency.NewMemoryStore(clk), clk, time.Hour, testLog())
	orders := repo.NewMemoryOrderRepo()
	tickets := repo.NewMemoryTicketRepo()
	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { q.Close() })

	orderSvc := service.NewOrderService(
		guard, ledger, cat, orders, payment.NewMockGateway(),
		member.NewMemoryPoints(), events.NopPublisher{}, clk, testLog())
	online := service.NewOnlineOrderService(guard, orderSvc, tickets, q, clk, testLog())

	return &harness{queue: q, orders: orders, tickets: tickets, online: online}
}

// awaitStatus polls until the ticket settles or the deadline passes.
func (h *harness) awaitStatus(t *testing.T, ticketID uuid.UUID, want domain.TicketStatus) domain.OrderTicket {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ticket, err := h.tickets.FindByID(context.Background(), ticketID)
		require.NoError(t, err)
		if ticket != nil && ticket.Status == want {
			return *ticket
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ticket %s never reached %s", ticketID, want)
	return domain.OrderTicket{}
}

func runWorker(t *testing.T, h *harness, policy worker.Policy, concurrency int) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.NewOrderWorker(h.queue, h.online, policy, concurrency, testLog())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestWorkerConfirmsQueuedTicket(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	h := newHarness(t)
	runWorker(t, h, worker.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}, 2)

	resp, err := h.online.Enqueue(context.Background(), "web", "k1", service.IntakeRequest{
		StoreID: "s1",
		Items:   []service.IntakeItem{{ProductID: "latte", Quantity: 2}},
	})
	require.NoError(t, err)

	ticket := h.awaitStatus(t, uuid.MustParse(resp.TicketID), domain.TicketConfirmed)
	assert.NotEqual(t, uuid.Nil, ticket.ResultOrderID)
	assert.Equal(t, 1, h.orders.Len())
}

func TestWorkerRejectsOutOfStockWithoutRetry(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	h := newHarness(t)
	runWorker(t, h, worker.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}, 1)

	resp, err := h.online.Enqueue(context.Background(), "web", "k1", service.IntakeRequest{
		StoreID: "s1",
		Items:   []service.IntakeItem{{ProductID: "latte", Quantity: 6}},
	})
	require.NoError(t, err)

	ticket := h.awaitStatus(t, uuid.MustParse(resp.TicketID), domain.TicketRejected)
	assert.Contains(t, ticket.RejectReason, "insufficient stock")
	assert.Equal(t, 1, ticket.Attempts, "business rejection settles on the first attempt")
}

func TestWorkerRetriesTransientThenConfirms(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	h := newHarness(t)

	var failures int
	h.orders.FailCreate = func(*domain.Order) error {
		if failures < 2 {
			failures++
			return errors.New("db down")
		}
		return nil
	}
	runWorker(t, h, worker.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}, 1)

	resp, err := h.online.Enqueue(context.Background(), "web", "k1", service.IntakeRequest{
		StoreID: "s1",
		Items:   []service.IntakeItem{{ProductID: "latte", Quantity: 1}},
	})
	require.NoError(t, err)

	ticket := h.awaitStatus(t, uuid.MustParse(resp.TicketID), domain.TicketConfirmed)
	assert.Equal(t, 3, ticket.Attempts)
	assert.Equal(t, 1, h.orders.Len())
}

func TestWorkerRejectsAfterExhaustingRetries(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	h := newHarness(t)
	h.orders.FailCreate = func(*domain.Order) error { return errors.New("db down") }
	runWorker(t, h, worker.Policy{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond}, 1)

	resp, err := h.online.Enqueue(context.Background(), "web", "k1", service.IntakeRequest{
		StoreID: "s1",
		Items:   []service.IntakeItem{{ProductID: "latte", Quantity: 1}},
	})
	require.NoError(t, err)

	ticket := h.awaitStatus(t, uuid.MustParse(resp.TicketID), domain.TicketRejected)
	assert.Equal(t, 2, ticket.Attempts)
	assert.Equal(t, 0, h.orders.Len())
}
