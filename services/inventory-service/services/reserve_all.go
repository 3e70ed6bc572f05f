package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// Reserver is the part of ReservationCoordinator that ReserveAll needs.
type Reserver interface {
	Reserve(ctx context.Context, in ReserveInput) (*models.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
}

// ReserveAll reserves lines one at a time. When a line fails, the lines
// already reserved are released in reverse order and the failing line's
// error is returned. Lines never succeed partially.
func ReserveAll(ctx context.Context, r Reserver, ownerID string, lines []models.ReserveLine, logger *zap.Logger) ([]*models.Reservation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reserved := make([]*models.Reservation, 0, len(lines))
	for i, line := range lines {
		res, err := r.Reserve(ctx, ReserveInput{StockID: line.StockID, OwnerID: ownerID, Quantity: line.Quantity})
		if err != nil {
			logger.Warn("reserve line failed, rolling back earlier lines",
				zap.String("owner_id", ownerID),
				zap.Int("line", i),
				zap.String("stock_id", line.StockID.String()),
				zap.Int("rollback_count", len(reserved)),
				zap.Error(err),
			)
			releaseAll(ctx, r, reserved, logger)
			return nil, fmt.Errorf("reserve line %d (stock %s): %w", i, line.StockID, err)
		}
		reserved = append(reserved, res)
	}
	return reserved, nil
}

func releaseAll(ctx context.Context, r Reserver, reserved []*models.Reservation, logger *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	for i := len(reserved) - 1; i >= 0; i-- {
		res := reserved[i]
		if _, err := r.Release(cctx, res.ID); err != nil {
			// Left ACTIVE; the expiry reaper returns the units later.
			logger.Error("rollback release failed",
				zap.String("reservation_id", res.ID.String()),
				zap.String("stock_id", res.StockID.String()),
				zap.Error(err),
			)
		}
	}
}
