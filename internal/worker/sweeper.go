package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/inventory"
)

// ReservationSweeper frees reservations stuck RESERVED past the hold window,
// the recovery path for a pipeline that died between reserve and commit.
type ReservationSweeper struct {
	ledger   inventory.Ledger
	maxAge   time.Duration
	interval time.Duration
	log      *logrus.Entry
}

func NewReservationSweeper(ledger inventory.Ledger, maxAge, interval time.Duration, log *logrus.Entry) *ReservationSweeper {
	return &ReservationSweeper{ledger: ledger, maxAge: maxAge, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (s *ReservationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("max_age", s.maxAge).Info("reservation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			released, err := s.ledger.ReleaseOlderThan(ctx, s.maxAge)
			if err != nil {
				s.log.WithError(err).Error("reservation sweep failed")
				continue
			}
			for _, res := range released {
				s.log.WithFields(logrus.Fields{
					"reservation_id": res.ID,
					"store_id":       res.StoreID,
					"age":            s.maxAge,
				}).Warn("released stale reservation")
			}
		}
	}
}
