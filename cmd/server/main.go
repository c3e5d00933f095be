package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/catalog"
	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/config"
	"beverage-order-intake/internal/database"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/idempotency"
	"beverage-order-intake/internal/infrastructure/payment"
	"beverage-order-intake/internal/inventory"
	"beverage-order-intake/internal/member"
	"beverage-order-intake/internal/queue"
	"beverage-order-intake/internal/repo"
	"beverage-order-intake/internal/service"
	transport "beverage-order-intake/internal/transport/http"
	"beverage-order-intake/internal/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logger.WithField("app", "beverage-order-intake")

	cfg := config.Load()
	clk := clock.NewSystem()

	// Storage: Postgres when configured, otherwise in-process.
	var (
		dbSvc      database.Service
		orderRepo  repo.OrderRepo
		ticketRepo repo.TicketRepo
		ledger     inventory.Ledger
	)
	if cfg.DatabaseURL != "" {
		var err error
		dbSvc, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("could not open postgres")
		}
		defer dbSvc.Close()
		orderRepo = repo.NewOrderRepo(dbSvc.DB())
		ticketRepo = repo.NewTicketRepo(dbSvc.DB())
		ledger = repo.NewInventoryRepo(dbSvc.DB(), clk)
		log.Info("using postgres storage")
	} else {
		orderRepo = repo.NewMemoryOrderRepo()
		ticketRepo = repo.NewMemoryTicketRepo()
		ledger = inventory.NewMemoryLedger(clk)
		log.Info("using in-memory storage")
	}

	// Idempotency records and the ticket queue move to Redis together.
	var (
		idemStore idempotency.Store
		q         queue.Queue
	)
	if cfg.RedisURL != "" {
		redisStore, err := idempotency.NewRedisStore(cfg.RedisURL, cfg.IdempotencyTTL)
		if err != nil {
			log.WithError(err).Fatal("could not open redis idempotency store")
		}
		defer redisStore.Close()
		redisQueue, err := queue.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("could not open redis queue")
		}
		idemStore, q = redisStore, redisQueue
		log.Info("using redis idempotency store and queue")
	} else {
		idemStore = idempotency.NewMemoryStore(clk)
		q = queue.NewMemoryQueue(cfg.QueueCapacity)
	}

	cat := catalog.NewMemoryCatalog()
	points := member.NewMemoryPoints()
	seedCatalog(cat)
	if cfg.DatabaseURL == "" {
		seedInventory(ledger, log)
		points.Credit("member-demo", 5000)
	}

	guard := idempotency.NewGuard(idemStore, clk, cfg.IdempotencyTTL, log.WithField("component", "idempotency"))
	hub := events.NewHub(log.WithField("component", "events"))
	gateway := payment.NewMockGateway()

	orderSvc := service.NewOrderService(guard, ledger, cat, orderRepo, gateway, points, hub, clk,
		log.WithField("component", "orders"))
	onlineSvc := service.NewOnlineOrderService(guard, orderSvc, ticketRepo, q, clk,
		log.WithField("component", "online-orders"))
	invSvc := service.NewInventoryService(ledger, hub, log.WithField("component", "inventory"))

	orderWorker := worker.NewOrderWorker(q, onlineSvc,
		worker.Policy{MaxAttempts: cfg.WorkerRetryMax, BaseDelay: cfg.WorkerRetryBase},
		cfg.WorkerCount, log.WithField("component", "worker"))
	sweeper := worker.NewReservationSweeper(ledger, cfg.ReservationTTL, cfg.SweepInterval,
		log.WithField("component", "sweeper"))

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); orderWorker.Run(workerCtx) }()
	go func() { defer wg.Done(); sweeper.Run(workerCtx) }()

	handler := transport.NewHandler(orderSvc, onlineSvc, invSvc, hub, dbSvc,
		log.WithField("component", "http"))
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: transport.NewRouter(handler, cfg.AllowedOrigins),
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown did not finish cleanly")
	}

	cancelWorkers()
	if err := q.Close(); err != nil {
		log.WithError(err).Warn("queue close failed")
	}
	wg.Wait()
	log.Info("stopped")
}

// seedCatalog loads the demo menu. The real catalog is an upstream service;
// until it is wired this stand-in serves every mode.
func seedCatalog(cat *catalog.MemoryCatalog) {
	cat.Put(catalog.Product{
		ID:        "espresso",
		Name:      "Espresso",
		BasePrice: 3200,
		Options: map[string]catalog.Option{
			"double-shot": {ID: "double-shot", Name: "Double Shot", PriceAdjustment: 800},
		},
		InventoryItemID: "coffee-beans",
		Consumption:     decimal.RequireFromString("0.018"),
	})
	cat.Put(catalog.Product{
		ID:        "latte",
		Name:      "Latte",
		BasePrice: 4500,
		Options: map[string]catalog.Option{
			"oat-milk":   {ID: "oat-milk", Name: "Oat Milk", PriceAdjustment: 600},
			"extra-shot": {ID: "extra-shot", Name: "Extra Shot", PriceAdjustment: 800},
		},
		InventoryItemID: "coffee-beans",
		Consumption:     decimal.RequireFromString("0.018"),
	})
	cat.Put(catalog.Product{
		ID:              "milk-tea",
		Name:            "Milk Tea",
		BasePrice:       3900,
		InventoryItemID: "tea-leaves",
		Consumption:     decimal.RequireFromString("0.012"),
	})
}

func seedInventory(ledger inventory.Ledger, log *logrus.Entry) {
	ctx := context.Background()
	seed := []struct {
		itemID string
		unit   string
		qty    string
	}{
		{"coffee-beans", "kg", "5.000"},
		{"tea-leaves", "kg", "3.000"},
		{"milk", "l", "20.000"},
	}
	for _, s := range seed {
		if _, err := ledger.Restock(ctx, "store-demo", s.itemID, s.unit, decimal.RequireFromString(s.qty)); err != nil {
			log.WithError(err).WithField("item_id", s.itemID).Warn("demo seed failed")
		}
	}
}
