package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

// --- Mock Stock Repository ---

// scriptedStockRepo wraps the in-memory repository and lets a test force
// conflicts or errors on chosen calls.
type scriptedStockRepo struct {
	*repository.MemoryStockRepository
	loads       int32
	casCalls    int32
	conflicts   int32 // number of leading CAS writes reported as conflicts
	loadErr     error
	casErr      error
	casErrAfter int32 // fail CAS with casErr once casCalls exceeds this; 0 disables
}

func newScriptedRepo() *scriptedStockRepo {
	return &scriptedStockRepo{MemoryStockRepository: repository.NewMemoryStockRepository()}
}

func (r *scriptedStockRepo) Load(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	atomic.AddInt32(&r.loads, 1)
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.MemoryStockRepository.Load(ctx, id)
}

func (r *scriptedStockRepo) CASWrite(ctx context.Context, next *models.Stock, expected uint64) (int64, error) {
	n := atomic.AddInt32(&r.casCalls, 1)
	if r.casErr != nil && n > r.casErrAfter {
		return 0, r.casErr
	}
	if n <= atomic.LoadInt32(&r.conflicts) {
		return 0, nil
	}
	return r.MemoryStockRepository.CASWrite(ctx, next, expected)
}

// --- Mock Event Publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.StockEvent
	err    error
}

func (p *recordingPublisher) PublishStockEvent(_ context.Context, evt models.StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []models.StockEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.StockEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// --- Mock Reservation Repository ---

type failingReservationRepo struct {
	*repository.MemoryReservationRepository
	createErr error
}

func (r *failingReservationRepo) Create(ctx context.Context, res *models.Reservation) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryReservationRepository.Create(ctx, res)
}

var fastRetry = services.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

func seedStock(t *testing.T, repo repository.StockRepository, total uint) *models.Stock {
	t.Helper()
	stock, err := models.NewStock("prod-"+uuid.NewString()[:8], "default", total)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), stock))
	return stock
}

func loadStock(t *testing.T, repo repository.StockRepository, id uuid.UUID) *models.Stock {
	t.Helper()
	s, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestRetryPolicy_DefaultDelaysDouble(t *testing.T) {
	p := services.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.True(t, p.Jitter)

	p.Jitter = false
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 50*time.Millisecond, p.Delay(1))
	assert.Equal(t, 100*time.Millisecond, p.Delay(2))
	assert.Equal(t, 200*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(40), "delay is capped")

	p.Jitter = true
	for i := 0; i < 20; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestReserve_Success(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	reservations := repository.NewMemoryReservationRepository()
	pub := &recordingPublisher{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := services.NewReservationCoordinator(stocks, reservations,
		services.WithEventPublisher(pub),
		services.WithReservationTTL(10*time.Minute),
		services.WithClock(func() time.Time { return now }),
	)
	stock := seedStock(t, stocks, 10)

	res, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "order-1", Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, models.ReservationActive, res.Status)
	assert.Equal(t, now.Add(10*time.Minute), res.ExpiresAt)
	got := loadStock(t, stocks, stock.ID)
	assert.Equal(t, uint(7), got.Available)
	assert.Equal(t, uint(3), got.Reserved)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, []models.StockEventType{models.StockReserved}, pub.types())

	stored, err := reservations.FindByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", stored.OwnerID)
}

func TestReserve_RetriesVersionConflicts(t *testing.T) {
	stocks := newScriptedRepo()
	stocks.conflicts = 2
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithRetryPolicy(fastRetry))
	stock := seedStock(t, stocks, 5)

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})

	require.NoError(t, err)
	assert.Equal(t, int32(3), stocks.casCalls)
	assert.Equal(t, int32(3), stocks.loads, "every retry must reload the counter")
	assert.Equal(t, uint(4), loadStock(t, stocks, stock.ID).Available)
}

func TestReserve_ExhaustedRetriesReturnTypedError(t *testing.T) {
	stocks := newScriptedRepo()
	stocks.conflicts = 1000
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithRetryPolicy(fastRetry))
	stock := seedStock(t, stocks, 5)

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrVersionConflictExhausted)
	assert.True(t, services.IsRetryable(err))
	var vce *services.VersionConflictError
	require.ErrorAs(t, err, &vce)
	assert.Equal(t, stock.ID, vce.StockID)
	assert.Equal(t, 4, vce.Attempts)
	assert.Equal(t, int32(4), stocks.casCalls)
}

func TestReserve_InsufficientIsNotRetried(t *testing.T) {
	stocks := newScriptedRepo()
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithRetryPolicy(fastRetry))
	stock := seedStock(t, stocks, 2)

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 3})

	assert.ErrorIs(t, err, models.ErrInsufficientAvailability)
	assert.False(t, services.IsRetryable(err))
	assert.Equal(t, int32(1), stocks.loads)
	assert.Zero(t, stocks.casCalls)
}

func TestReserve_StoreErrorPropagatesUnchanged(t *testing.T) {
	storeDown := errors.New("connection refused")
	stocks := newScriptedRepo()
	stocks.loadErr = storeDown
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithRetryPolicy(fastRetry))

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: uuid.New(), OwnerID: "o", Quantity: 1})

	assert.ErrorIs(t, err, storeDown)
	assert.Equal(t, int32(1), stocks.loads)
}

func TestReserve_CancelledDuringBackoff(t *testing.T) {
	stocks := newScriptedRepo()
	stocks.conflicts = 1000
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(),
		services.WithRetryPolicy(services.RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}))
	stock := seedStock(t, stocks, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Reserve(ctx, services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReserve_PersistFailureRestoresStock(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	reservations := &failingReservationRepo{
		MemoryReservationRepository: repository.NewMemoryReservationRepository(),
		createErr:                   errors.New("insert failed"),
	}
	c := services.NewReservationCoordinator(stocks, reservations, services.WithRetryPolicy(fastRetry))
	stock := seedStock(t, stocks, 5)

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 2})

	require.Error(t, err)
	got := loadStock(t, stocks, stock.ID)
	assert.Equal(t, uint(5), got.Available)
	assert.Zero(t, got.Reserved)
	assert.Equal(t, uint64(2), got.Version)
}

func TestReserve_NoLostUpdates(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(),
		services.WithRetryPolicy(services.RetryPolicy{MaxRetries: 100, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: true}))
	const available, callers = 5, 20
	stock := seedStock(t, stocks, available)

	var ok, insufficient, other int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: uuid.NewString(), Quantity: 1})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, models.ErrInsufficientAvailability):
				atomic.AddInt32(&insufficient, 1)
			default:
				atomic.AddInt32(&other, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(available), ok)
	assert.Equal(t, int32(callers-available), insufficient)
	assert.Zero(t, other)
	got := loadStock(t, stocks, stock.ID)
	assert.Zero(t, got.Available)
	assert.Equal(t, uint(available), got.Reserved)
	assert.NoError(t, got.Validate())
}

func TestReservationScenario_ReserveReleaseConfirm(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(),
		services.WithRetryPolicy(services.RetryPolicy{MaxRetries: 20, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: true}))
	stock := seedStock(t, stocks, 10)

	var mu sync.Mutex
	var held []*models.Reservation
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: uuid.NewString(), Quantity: 2})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			held = append(held, res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, held, 3)

	_, err := c.Release(context.Background(), held[0].ID)
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), held[1].ID)
	require.NoError(t, err)

	got := loadStock(t, stocks, stock.ID)
	assert.Equal(t, uint(6), got.Available)
	assert.Equal(t, uint(2), got.Reserved)
	assert.Equal(t, uint(2), got.Sold)
	assert.Equal(t, uint(10), got.Total)
}

func TestRelease_SecondReleaseIsRejected(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	pub := &recordingPublisher{}
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithEventPublisher(pub))
	stock := seedStock(t, stocks, 4)
	res, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 4})
	require.NoError(t, err)

	released, err := c.Release(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, released.Status)

	_, err = c.Release(context.Background(), res.ID)
	assert.ErrorIs(t, err, models.ErrReservationNotActive)
	_, err = c.Confirm(context.Background(), res.ID)
	assert.ErrorIs(t, err, models.ErrReservationNotActive)

	assert.Equal(t, uint(4), loadStock(t, stocks, stock.ID).Available)
	assert.Equal(t, []models.StockEventType{models.StockReserved, models.StockReleased}, pub.types())
}

func TestRelease_FailedStockWriteRevertsClaim(t *testing.T) {
	stocks := newScriptedRepo()
	reservations := repository.NewMemoryReservationRepository()
	c := services.NewReservationCoordinator(stocks, reservations, services.WithRetryPolicy(fastRetry))
	stock := seedStock(t, stocks, 4)
	res, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})
	require.NoError(t, err)

	stocks.casErr = errors.New("write timeout")
	stocks.casErrAfter = atomic.LoadInt32(&stocks.casCalls)

	_, err = c.Release(context.Background(), res.ID)
	require.Error(t, err)

	stored, err := reservations.FindByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, stored.Status, "claim must be reverted so the reaper can retry")
	assert.Equal(t, uint(1), loadStock(t, stocks, stock.ID).Reserved)
}

func TestConfirm_ExpiredReservationIsRejected(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(),
		services.WithClock(clock), services.WithReservationTTL(time.Minute))
	stock := seedStock(t, stocks, 4)
	res, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Confirm(context.Background(), res.ID)

	assert.ErrorIs(t, err, models.ErrReservationExpired)
	assert.Zero(t, loadStock(t, stocks, stock.ID).Sold)
}

func TestConfirm_UnknownReservation(t *testing.T) {
	c := services.NewReservationCoordinator(repository.NewMemoryStockRepository(), repository.NewMemoryReservationRepository())
	_, err := c.Confirm(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrReservationNotFound)
}

func TestReserve_PublishFailureDoesNotFailReserve(t *testing.T) {
	stocks := repository.NewMemoryStockRepository()
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository(), services.WithEventPublisher(pub))
	stock := seedStock(t, stocks, 1)

	_, err := c.Reserve(context.Background(), services.ReserveInput{StockID: stock.ID, OwnerID: "o", Quantity: 1})
	assert.NoError(t, err)
}
