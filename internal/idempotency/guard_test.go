package idempotency

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newGuard(clk clock.Clock, ttl time.Duration) *Guard {
	return NewGuard(NewMemoryStore(clk), clk, ttl, testLog())
}

func TestAdmitRequiresKey(t *testing.T) {
	g := newGuard(clock.NewSystem(), time.Hour)
	_, err := g.Admit(context.Background(), "orders", "staff-1", "")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestAdmitSingleWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	g := newGuard(clock.NewSystem(), time.Hour)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		proceeded  int
		duplicates int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			switch dec.Outcome {
			case Proceed:
				proceeded++
			case RejectDuplicate:
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, proceeded, "exactly one request owns the key")
	assert.Equal(t, 15, duplicates)
}

func TestCompleteThenReplay(t *testing.T) {
	ctx := context.Background()
	g := newGuard(clock.NewSystem(), time.Hour)

	dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, Proceed, dec.Outcome)

	snapshot := []byte(`{"orderId":"abc"}`)
	require.NoError(t, g.Complete(ctx, "orders", "staff-1", "key-1", snapshot))

	dec, err = g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, ReplayResult, dec.Outcome)
	assert.Equal(t, snapshot, dec.Snapshot)
}

func TestFailMakesKeyRetryable(t *testing.T) {
	ctx := context.Background()
	g := newGuard(clock.NewSystem(), time.Hour)

	dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, Proceed, dec.Outcome)

	require.NoError(t, g.Fail(ctx, "orders", "staff-1", "key-1"))

	dec, err = g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, dec.Outcome, "a failed attempt frees the key")
}

func TestExpiredRecordIsReplaced(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewStep(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	g := newGuard(clk, time.Minute)

	dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, Proceed, dec.Outcome)
	require.NoError(t, g.Complete(ctx, "orders", "staff-1", "key-1", []byte(`{}`)))

	clk.Advance(2 * time.Minute)

	dec, err = g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, dec.Outcome, "expired record no longer replays")
}

func TestKeysAreScoped(t *testing.T) {
	ctx := context.Background()
	g := newGuard(clock.NewSystem(), time.Hour)

	dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, Proceed, dec.Outcome)

	// Same key, different endpoint or principal: independent records.
	dec, err = g.Admit(ctx, "pos-checkout", "staff-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, dec.Outcome)

	dec, err = g.Admit(ctx, "orders", "staff-2", "key-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, dec.Outcome)
}

func TestCompleteRejectsStateMismatch(t *testing.T) {
	ctx := context.Background()
	g := newGuard(clock.NewSystem(), time.Hour)

	dec, err := g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, Proceed, dec.Outcome)
	require.NoError(t, g.Complete(ctx, "orders", "staff-1", "key-1", []byte(`{"n":1}`)))

	err = g.Complete(ctx, "orders", "staff-1", "key-1", []byte(`{"n":2}`))
	require.Error(t, err, "a completed record is never overwritten")

	dec, err = g.Admit(ctx, "orders", "staff-1", "key-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(dec.Snapshot))
}
