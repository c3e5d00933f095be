package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/inventory"
	"beverage-order-intake/internal/worker"
)

func TestSweeperReleasesStaleReservations(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	clk := clock.NewStep(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	ledger := inventory.NewMemoryLedger(clk)
	_, err := ledger.Restock(ctx, "s1", "beans", "unit", decimal.NewFromInt(5))
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, "s1", []domain.ReservationLine{
		{ItemID: "beans", Quantity: decimal.NewFromInt(2)},
	})
	require.NoError(t, err)

	// The hold window passes without a commit.
	clk.Advance(5 * time.Minute)

	sweeper := worker.NewReservationSweeper(ledger, 2*time.Minute, 10*time.Millisecond, testLog())
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		level, err := ledger.Available(ctx, "s1", "beans")
		require.NoError(t, err)
		if level.Available.Equal(decimal.NewFromInt(5)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale reservation was never released")
}
