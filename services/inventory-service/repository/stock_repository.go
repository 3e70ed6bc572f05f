// Package repository persists stock counters and reservations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// StockRepository stores versioned stock counters. CASWrite is the only
// write path after creation: it succeeds only while the stored version still
// equals expectedVersion and reports the rows it changed (0 or 1).
type StockRepository interface {
	Create(ctx context.Context, stock *models.Stock) error
	Load(ctx context.Context, id uuid.UUID) (*models.Stock, error)
	CASWrite(ctx context.Context, next *models.Stock, expectedVersion uint64) (int64, error)
	List(ctx context.Context, limit int) ([]*models.Stock, error)
}

// GormStockRepository implements StockRepository on Postgres.
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func (r *GormStockRepository) Create(ctx context.Context, stock *models.Stock) error {
	if err := r.db.WithContext(ctx).Create(stock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("%w: %s", models.ErrStockExists, stock.ID)
		}
		return fmt.Errorf("create stock: %w", err)
	}
	return nil
}

func (r *GormStockRepository) Load(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	var stock models.Stock
	err := r.db.WithContext(ctx).First(&stock, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load stock %s: %w", id, err)
	}
	if err := stock.Validate(); err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *GormStockRepository) CASWrite(ctx context.Context, next *models.Stock, expectedVersion uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Stock{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(map[string]any{
			"available":  next.Available,
			"reserved":   next.Reserved,
			"sold":       next.Sold,
			"version":    next.Version,
			"updated_at": next.UpdatedAt,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("stock cas write %s: %w", next.ID, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormStockRepository) List(ctx context.Context, limit int) ([]*models.Stock, error) {
	var stocks []*models.Stock
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return stocks, nil
}
