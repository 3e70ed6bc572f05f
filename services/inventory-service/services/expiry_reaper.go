package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

const (
	DefaultReaperInterval  = time.Minute
	DefaultReaperBatchSize = 100
	DefaultReaperMaxDelay  = time.Hour

	sweepLockKey = "reaper:sweep"
)

// ExpiredReservationFinder is the reaper's view of ReservationRepository.
// DeferReap parks a reservation whose release failed so the next batch
// reaches newer expirations.
type ExpiredReservationFinder interface {
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error)
	DeferReap(ctx context.Context, id uuid.UUID, until time.Time) error
}

// ReservationReleaser releases one reservation through the version-checked
// stock path.
type ReservationReleaser interface {
	Release(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
}

// OrderCanceller cancels the order that owned an expired reservation.
type OrderCanceller interface {
	CancelExpiredOrder(ctx context.Context, orderID string) error
}

// SweepGuard lets only one replica sweep per tick. lock.SimpleLock
// satisfies it.
type SweepGuard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// SweepResult counts what one sweep did. Skipped reservations were settled
// by someone else between the query and the release.
type SweepResult struct {
	Scanned           int
	Released          int
	Skipped           int
	Failed            int
	OrderCancelFailed int
}

// ExpiryReaper releases ACTIVE reservations past their expiry.
type ExpiryReaper struct {
	finder    ExpiredReservationFinder
	releaser  ReservationReleaser
	orders    OrderCanceller
	limiter   *rate.Limiter
	guard     SweepGuard
	interval  time.Duration
	batchSize int
	maxDelay  time.Duration
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

type ReaperConfig struct {
	Interval  time.Duration
	BatchSize int
	// RatePerSecond caps releases per second. Zero disables pacing.
	RatePerSecond float64
	// MaxRetryDelay caps the backoff on a reservation whose release keeps
	// failing. The delay starts at Interval and doubles per attempt.
	MaxRetryDelay time.Duration
}

func NewExpiryReaper(finder ExpiredReservationFinder, releaser ReservationReleaser, orders OrderCanceller, cfg ReaperConfig, metrics MetricsRecorder, logger *zap.Logger) *ExpiryReaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReaperInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultReaperBatchSize
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultReaperMaxDelay
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ExpiryReaper{
		finder:    finder,
		releaser:  releaser,
		orders:    orders,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		maxDelay:  cfg.MaxRetryDelay,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if cfg.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return r
}

// WithGuard makes each scheduled sweep run under guard. A tick whose lock is
// held elsewhere is skipped.
func (r *ExpiryReaper) WithGuard(g SweepGuard) *ExpiryReaper {
	r.guard = g
	return r
}

// Start sweeps every interval until ctx is done. It blocks.
func (r *ExpiryReaper) Start(ctx context.Context) {
	r.logger.Info("expiry reaper started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *ExpiryReaper) tick(ctx context.Context) {
	sweep := func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	}
	var err error
	if r.guard != nil {
		err = r.guard.WithLock(ctx, sweepLockKey, r.interval, sweep)
	} else {
		err = sweep(ctx)
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, lock.ErrNotAcquired):
		r.logger.Debug("another replica holds the sweep lock")
	default:
		r.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

// Sweep releases one batch of expired reservations. A failure on one
// reservation is logged and counted and the sweep moves on. The returned
// error is set only when the batch could not be loaded or ctx ended.
func (r *ExpiryReaper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	expired, err := r.finder.FindExpiredActive(ctx, r.now(), r.batchSize)
	if err != nil {
		return result, err
	}
	result.Scanned = len(expired)

	for _, res := range expired {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.finish(ctx, result)
				return result, err
			}
		}
		r.reap(ctx, res, &result)
	}

	r.finish(ctx, result)
	return result, nil
}

func (r *ExpiryReaper) reap(ctx context.Context, res *models.Reservation, result *SweepResult) {
	log := r.logger.With(
		zap.String("reservation_id", res.ID.String()),
		zap.String("owner_id", res.OwnerID),
		zap.String("stock_id", res.StockID.String()),
	)

	if _, err := r.releaser.Release(ctx, res.ID); err != nil {
		if errors.Is(err, models.ErrReservationNotActive) {
			result.Skipped++
			return
		}
		result.Failed++
		until := r.now().Add(r.retryDelay(res.ReapAttempts))
		log.Error("failed to release expired reservation",
			zap.Error(err),
			zap.Int("attempt", res.ReapAttempts+1),
			zap.Time("retry_after", until),
		)
		if err := r.finder.DeferReap(ctx, res.ID, until); err != nil {
			log.Warn("failed to defer expired reservation", zap.Error(err))
		}
		return
	}
	result.Released++

	if r.orders == nil {
		return
	}
	if err := r.orders.CancelExpiredOrder(ctx, res.OwnerID); err != nil {
		result.OrderCancelFailed++
		log.Warn("failed to cancel order for expired reservation", zap.Error(err))
	}
}

// retryDelay is Interval doubled per earlier failed attempt, capped at
// maxDelay.
func (r *ExpiryReaper) retryDelay(attempts int) time.Duration {
	d := r.interval
	for range attempts {
		if d >= r.maxDelay {
			break
		}
		d *= 2
	}
	return min(d, r.maxDelay)
}

func (r *ExpiryReaper) finish(ctx context.Context, result SweepResult) {
	if result.Scanned == 0 {
		return
	}
	dims := map[string]string{"Service": "inventory-service"}
	if result.Released > 0 {
		_ = r.metrics.RecordCountN(ctx, awspkg.MetricReservationsExpired, result.Released, dims)
	}
	if result.Failed > 0 {
		_ = r.metrics.RecordCountN(ctx, awspkg.MetricReaperFailures, result.Failed, dims)
	}
	r.logger.Info("expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("released", result.Released),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("order_cancel_failed", result.OrderCancelFailed),
	)
}
