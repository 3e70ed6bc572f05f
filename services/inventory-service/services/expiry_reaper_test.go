package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

// --- Mock Order Canceller ---

type mockOrderCanceller struct {
	mu        sync.Mutex
	cancelled []string
	err       error
}

func (m *mockOrderCanceller) CancelExpiredOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return m.err
}

// --- Mock Releaser ---

type flakyReleaser struct {
	inner services.ReservationReleaser
	fail  map[uuid.UUID]bool
}

func (f *flakyReleaser) Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if f.fail[id] {
		return nil, errors.New("stock row locked")
	}
	return f.inner.Release(ctx, id)
}

type reaperFixture struct {
	stocks       *repository.MemoryStockRepository
	reservations *repository.MemoryReservationRepository
	coordinator  *services.ReservationCoordinator
	stock        *models.Stock
}

// newReaperFixture reserves one unit per owner with reservations that
// expired an hour ago.
func newReaperFixture(t *testing.T, owners ...string) (*reaperFixture, []*models.Reservation) {
	t.Helper()
	f := &reaperFixture{
		stocks:       repository.NewMemoryStockRepository(),
		reservations: repository.NewMemoryReservationRepository(),
	}
	past := time.Now().UTC().Add(-time.Hour)
	f.coordinator = services.NewReservationCoordinator(f.stocks, f.reservations,
		services.WithRetryPolicy(fastRetry),
		services.WithReservationTTL(time.Minute),
		services.WithClock(func() time.Time { return past }),
	)
	f.stock = seedStock(t, f.stocks, 10)

	var held []*models.Reservation
	for _, owner := range owners {
		res, err := f.coordinator.Reserve(context.Background(), services.ReserveInput{StockID: f.stock.ID, OwnerID: owner, Quantity: 1})
		require.NoError(t, err)
		held = append(held, res)
	}
	return f, held
}

func TestExpiryReaper_ReleasesExpiredAndCancelsOrders(t *testing.T) {
	f, _ := newReaperFixture(t, "order-1", "order-2", "order-3")
	orders := &mockOrderCanceller{}
	reaper := services.NewExpiryReaper(f.reservations, f.coordinator, orders, services.ReaperConfig{}, nil, nil)

	result, err := reaper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, services.SweepResult{Scanned: 3, Released: 3}, result)
	assert.ElementsMatch(t, []string{"order-1", "order-2", "order-3"}, orders.cancelled)
	got := loadStock(t, f.stocks, f.stock.ID)
	assert.Equal(t, uint(10), got.Available)
	assert.Zero(t, got.Reserved)
}

func TestExpiryReaper_SecondSweepIsNoop(t *testing.T) {
	f, _ := newReaperFixture(t, "order-1", "order-2")
	reaper := services.NewExpiryReaper(f.reservations, f.coordinator, nil, services.ReaperConfig{}, nil, nil)

	first, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	afterFirst := loadStock(t, f.stocks, f.stock.ID)

	second, err := reaper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Released)
	assert.Equal(t, services.SweepResult{}, second)
	afterSecond := loadStock(t, f.stocks, f.stock.ID)
	assert.Equal(t, afterFirst.Version, afterSecond.Version)
	assert.Equal(t, uint(10), afterSecond.Available)
}

func TestExpiryReaper_OneFailureDoesNotAbortSweep(t *testing.T) {
	f, held := newReaperFixture(t, "order-1", "order-2", "order-3")
	releaser := &flakyReleaser{inner: f.coordinator, fail: map[uuid.UUID]bool{held[1].ID: true}}
	reaper := services.NewExpiryReaper(f.reservations, releaser, nil, services.ReaperConfig{}, nil, nil)

	result, err := reaper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Released)
	assert.Equal(t, 1, result.Failed)

	stuck, err := f.reservations.FindByID(context.Background(), held[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, stuck.Status, "failed reservation stays ACTIVE for the next sweep")
	assert.Equal(t, uint(1), loadStock(t, f.stocks, f.stock.ID).Reserved)
}

func TestExpiryReaper_FailingReservationDoesNotBlockNewerOnes(t *testing.T) {
	f, held := newReaperFixture(t, "order-1", "order-2")
	// Oldest expiry, and its release always fails.
	stuck := models.NewReservation("order-stuck", f.stock.ID, 1, time.Now().UTC().Add(-2*time.Hour), time.Minute)
	require.NoError(t, f.reservations.Create(context.Background(), stuck))
	releaser := &flakyReleaser{inner: f.coordinator, fail: map[uuid.UUID]bool{stuck.ID: true}}
	reaper := services.NewExpiryReaper(f.reservations, releaser, nil, services.ReaperConfig{BatchSize: 1}, nil, nil)

	first, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.SweepResult{Scanned: 1, Failed: 1}, first)

	parked, err := f.reservations.FindByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, parked.Status)
	assert.Equal(t, 1, parked.ReapAttempts)
	require.NotNil(t, parked.ReapAfter)
	assert.True(t, parked.ReapAfter.After(time.Now()))

	for range held {
		result, err := reaper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, services.SweepResult{Scanned: 1, Released: 1}, result)
	}
	for _, res := range held {
		got, err := f.reservations.FindByID(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationReleased, got.Status)
	}
}

func TestExpiryReaper_SettledReservationIsSkipped(t *testing.T) {
	f, held := newReaperFixture(t, "order-1")
	// The finder saw it ACTIVE, but a confirm wins the race before release.
	finder := staticFinder{held[0]}
	_, err := f.reservations.Transition(context.Background(), held[0].ID, models.ReservationActive, models.ReservationConfirmed)
	require.NoError(t, err)
	reaper := services.NewExpiryReaper(finder, f.coordinator, nil, services.ReaperConfig{}, nil, nil)

	result, err := reaper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, services.SweepResult{Scanned: 1, Skipped: 1}, result)
}

func TestExpiryReaper_OrderCancelFailureIsCounted(t *testing.T) {
	f, _ := newReaperFixture(t, "order-1")
	orders := &mockOrderCanceller{err: errors.New("order service down")}
	reaper := services.NewExpiryReaper(f.reservations, f.coordinator, orders, services.ReaperConfig{}, nil, nil)

	result, err := reaper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Released)
	assert.Equal(t, 1, result.OrderCancelFailed)
}

func TestExpiryReaper_StartStopsOnCancel(t *testing.T) {
	f, _ := newReaperFixture(t, "order-1")
	reaper := services.NewExpiryReaper(f.reservations, f.coordinator, nil, services.ReaperConfig{Interval: 10 * time.Millisecond, RatePerSecond: 100}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s, err := f.stocks.Load(context.Background(), f.stock.ID)
		return err == nil && s.Reserved == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestExpiryReaper_GuardSkipsTickWhileLockHeld(t *testing.T) {
	f, _ := newReaperFixture(t, "order-1")
	store := lock.NewMemoryKeyStore()
	guard := lock.NewSimpleLock(store, nil)
	reaper := services.NewExpiryReaper(f.reservations, f.coordinator, nil, services.ReaperConfig{Interval: 10 * time.Millisecond}, nil, nil).
		WithGuard(guard)

	// Another replica is mid-sweep.
	held, ok, err := guard.Acquire(context.Background(), "reaper:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	s, err := f.stocks.Load(context.Background(), f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), s.Reserved)

	released, err := guard.Release(context.Background(), held.Key, held.Token)
	require.NoError(t, err)
	require.True(t, released)

	assert.Eventually(t, func() bool {
		s, err := f.stocks.Load(context.Background(), f.stock.ID)
		return err == nil && s.Reserved == 0
	}, time.Second, 10*time.Millisecond)
}

type staticFinder []*models.Reservation

func (s staticFinder) FindExpiredActive(context.Context, time.Time, int) ([]*models.Reservation, error) {
	return s, nil
}

func (s staticFinder) DeferReap(context.Context, uuid.UUID, time.Time) error {
	return nil
}
