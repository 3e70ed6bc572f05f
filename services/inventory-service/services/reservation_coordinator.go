package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/pkg/cache"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
)

const (
	DefaultReservationTTL = 15 * time.Minute
	compensationTimeout   = 10 * time.Second
)

// ReserveInput asks for Quantity units of one stock on behalf of OwnerID.
type ReserveInput struct {
	StockID  uuid.UUID
	OwnerID  string
	Quantity uint
}

// ReservationCoordinator moves units between stock buckets with optimistic
// concurrency: load, mutate a copy, write back only if the version is
// unchanged, and retry from the load when it is not.
type ReservationCoordinator struct {
	stocks       repository.StockRepository
	reservations repository.ReservationRepository
	retry        RetryPolicy
	ttl          time.Duration
	events       EventPublisher
	metrics      MetricsRecorder
	cache        *cache.Cache
	logger       *zap.Logger
	now          func() time.Time
}

type CoordinatorOption func(*ReservationCoordinator)

func WithRetryPolicy(p RetryPolicy) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.retry = p }
}

func WithReservationTTL(ttl time.Duration) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithEventPublisher(p EventPublisher) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if p != nil {
			c.events = p
		}
	}
}

func WithMetrics(m MetricsRecorder) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithStockCache makes every committed mutation invalidate the cached
// snapshot of the stock it touched.
func WithStockCache(sc *cache.Cache) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.cache = sc }
}

func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewReservationCoordinator(stocks repository.StockRepository, reservations repository.ReservationRepository, opts ...CoordinatorOption) *ReservationCoordinator {
	c := &ReservationCoordinator{
		stocks:       stocks,
		reservations: reservations,
		retry:        DefaultRetryPolicy(),
		ttl:          DefaultReservationTTL,
		events:       noopPublisher{},
		metrics:      noopMetrics{},
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mutate applies op to a fresh copy of the stock and commits it with a
// version check. Only version conflicts are retried; every other error is
// returned unchanged on first sight.
func (c *ReservationCoordinator) mutate(ctx context.Context, stockID uuid.UUID, op func(*models.Stock) error) (*models.Stock, error) {
	attempts := 0
	for {
		if attempts > 0 {
			if err := sleepCtx(ctx, c.retry.Delay(attempts)); err != nil {
				return nil, err
			}
		}
		attempts++

		current, err := c.stocks.Load(ctx, stockID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := op(next); err != nil {
			return nil, err
		}
		rows, err := c.stocks.CASWrite(ctx, next, current.Version)
		if err != nil {
			return nil, err
		}
		if rows == 1 {
			return next, nil
		}

		c.record(ctx, awspkg.MetricVersionConflicts, stockID)
		c.logger.Debug("stock version conflict",
			zap.String("stock_id", stockID.String()),
			zap.Uint64("expected_version", current.Version),
			zap.Int("attempt", attempts),
		)
		if attempts > c.retry.MaxRetries {
			c.record(ctx, awspkg.MetricConflictsExhausted, stockID)
			return nil, &VersionConflictError{StockID: stockID, Attempts: attempts}
		}
	}
}

// Reserve holds in.Quantity units and records an ACTIVE reservation that
// expires after the configured ttl.
func (c *ReservationCoordinator) Reserve(ctx context.Context, in ReserveInput) (*models.Reservation, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	stock, err := c.mutate(ctx, in.StockID, func(s *models.Stock) error {
		return s.Reserve(in.Quantity)
	})
	if err != nil {
		return nil, err
	}

	res := models.NewReservation(in.OwnerID, in.StockID, in.Quantity, c.now(), c.ttl)
	if err := c.reservations.Create(ctx, res); err != nil {
		// Give the units back; nobody can release a reservation that was
		// never recorded.
		c.compensate(ctx, in.StockID, in.Quantity)
		return nil, fmt.Errorf("persist reservation: %w", err)
	}

	c.afterCommit(ctx, models.StockReserved, stock, res)
	c.logger.Info("stock reserved",
		zap.String("reservation_id", res.ID.String()),
		zap.String("stock_id", in.StockID.String()),
		zap.String("owner_id", in.OwnerID),
		zap.Uint("quantity", in.Quantity),
	)
	return res, nil
}

func (c *ReservationCoordinator) compensate(ctx context.Context, stockID uuid.UUID, qty uint) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if _, err := c.mutate(cctx, stockID, func(s *models.Stock) error { return s.RestoreReserved(qty) }); err != nil {
		c.logger.Error("failed to restore stock after reservation write failure",
			zap.String("stock_id", stockID.String()),
			zap.Uint("quantity", qty),
			zap.Error(err),
		)
	}
}

// Release returns a reservation's units to available. The status is claimed
// first so a concurrent confirm or a second release cannot act on the same
// units; if the stock write fails the claim is reverted.
func (c *ReservationCoordinator) Release(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	return c.settle(ctx, reservationID, models.ReservationReleased, models.StockReleased, func(s *models.Stock, qty uint) error {
		return s.RestoreReserved(qty)
	})
}

// Confirm sells a reservation's units. Expired reservations are rejected;
// the reaper owns them.
func (c *ReservationCoordinator) Confirm(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	res, err := c.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status == models.ReservationActive && res.Expired(c.now()) {
		return nil, fmt.Errorf("%w: reservation %s expired at %s", models.ErrReservationExpired, res.ID, res.ExpiresAt.Format(time.RFC3339))
	}
	return c.settle(ctx, reservationID, models.ReservationConfirmed, models.StockSold, func(s *models.Stock, qty uint) error {
		return s.Sell(qty)
	})
}

func (c *ReservationCoordinator) settle(
	ctx context.Context,
	reservationID uuid.UUID,
	to models.ReservationStatus,
	evt models.StockEventType,
	op func(*models.Stock, uint) error,
) (*models.Reservation, error) {
	res, err := c.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != models.ReservationActive {
		return nil, fmt.Errorf("%w: reservation %s is %s", models.ErrReservationNotActive, res.ID, res.Status)
	}

	claimed, err := c.reservations.Transition(ctx, res.ID, models.ReservationActive, to)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: reservation %s changed concurrently", models.ErrReservationNotActive, res.ID)
	}

	stock, err := c.mutate(ctx, res.StockID, func(s *models.Stock) error { return op(s, res.Quantity) })
	if err != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()
		if _, revertErr := c.reservations.Transition(rctx, res.ID, to, models.ReservationActive); revertErr != nil {
			c.logger.Error("failed to revert reservation claim",
				zap.String("reservation_id", res.ID.String()),
				zap.String("status", string(to)),
				zap.Error(revertErr),
			)
		}
		return nil, err
	}

	res.Status = to
	res.UpdatedAt = c.now()
	c.afterCommit(ctx, evt, stock, res)
	return res, nil
}

func (c *ReservationCoordinator) afterCommit(ctx context.Context, evtType models.StockEventType, stock *models.Stock, res *models.Reservation) {
	c.cache.Invalidate(ctx, StockCacheKey(stock.ID))

	switch evtType {
	case models.StockReserved:
		c.record(ctx, awspkg.MetricStockReserved, stock.ID)
	case models.StockReleased:
		c.record(ctx, awspkg.MetricStockReleased, stock.ID)
	case models.StockSold:
		c.record(ctx, awspkg.MetricStockSold, stock.ID)
	}

	evt := models.StockEvent{
		Type:          evtType,
		StockID:       stock.ID,
		ProductID:     stock.ProductID,
		OptionID:      stock.OptionID,
		ReservationID: res.ID,
		OwnerID:       res.OwnerID,
		Quantity:      res.Quantity,
		Available:     stock.Available,
		Reserved:      stock.Reserved,
		Sold:          stock.Sold,
		Version:       stock.Version,
		OccurredAt:    c.now(),
	}
	if err := c.events.PublishStockEvent(ctx, evt); err != nil {
		c.logger.Warn("failed to publish stock event",
			zap.String("type", string(evtType)),
			zap.String("stock_id", stock.ID.String()),
			zap.Error(err),
		)
	}
}

func (c *ReservationCoordinator) record(ctx context.Context, metric string, stockID uuid.UUID) {
	if err := c.metrics.RecordCount(ctx, metric, map[string]string{"Service": "inventory-service"}); err != nil {
		c.logger.Debug("metric not recorded", zap.String("metric", metric), zap.String("stock_id", stockID.String()), zap.Error(err))
	}
}

// ReservationsFor lists every reservation held by owner.
func (c *ReservationCoordinator) ReservationsFor(ctx context.Context, ownerID string) ([]*models.Reservation, error) {
	return c.reservations.FindByOwner(ctx, ownerID)
}

// ReserveAll reserves every line for owner.
func (c *ReservationCoordinator) ReserveAll(ctx context.Context, ownerID string, lines []models.ReserveLine) ([]*models.Reservation, error) {
	return ReserveAll(ctx, c, ownerID, lines, c.logger)
}

// IsRetryable reports whether err is worth retrying by the end user.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflictExhausted)
}
