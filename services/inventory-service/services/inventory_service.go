package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashrajoria/commerce-core/pkg/cache"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
)

const stockCacheTTL = 5 * time.Second

func StockCacheKey(id uuid.UUID) string {
	return "stock:snapshot:" + id.String()
}

// InventoryService handles stock registration and reads. All bucket
// movements go through ReservationCoordinator.
type InventoryService struct {
	repo   repository.StockRepository
	cache  *cache.Cache
	logger *zap.Logger
}

func NewInventoryService(repo repository.StockRepository, sc *cache.Cache, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{repo: repo, cache: sc, logger: logger}
}

func (s *InventoryService) CreateStock(ctx context.Context, req *models.CreateStockRequest) (*models.Stock, error) {
	stock, err := models.NewStock(req.ProductID, req.OptionID, req.Total)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, stock); err != nil {
		return nil, err
	}
	s.logger.Info("stock created",
		zap.String("stock_id", stock.ID.String()),
		zap.String("product_id", stock.ProductID),
		zap.Uint("total", stock.Total),
	)
	return stock, nil
}

// GetStock serves a snapshot that may be a few seconds stale. Decisions are
// always made against a fresh load inside the coordinator.
func (s *InventoryService) GetStock(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	return cache.WithCache(ctx, s.cache, StockCacheKey(id), stockCacheTTL, func(ctx context.Context) (*models.Stock, error) {
		return s.repo.Load(ctx, id)
	})
}

func (s *InventoryService) ListStock(ctx context.Context, limit int) ([]*models.Stock, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}
