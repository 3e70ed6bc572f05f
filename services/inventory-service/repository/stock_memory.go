package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// MemoryStockRepository keeps stock in process. It honours the same
// version check as the database-backed repositories.
type MemoryStockRepository struct {
	mu     sync.Mutex
	stocks map[uuid.UUID]models.Stock
}

func NewMemoryStockRepository() *MemoryStockRepository {
	return &MemoryStockRepository{stocks: make(map[uuid.UUID]models.Stock)}
}

func (r *MemoryStockRepository) Create(_ context.Context, stock *models.Stock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stocks[stock.ID]; ok {
		return fmt.Errorf("%w: %s", models.ErrStockExists, stock.ID)
	}
	r.stocks[stock.ID] = *stock
	return nil
}

func (r *MemoryStockRepository) Load(_ context.Context, id uuid.UUID) (*models.Stock, error) {
	r.mu.Lock()
	s, ok := r.stocks[id]
	r.mu.Unlock()
	if !ok {
		return nil, models.ErrStockNotFound
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MemoryStockRepository) CASWrite(_ context.Context, next *models.Stock, expectedVersion uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.stocks[next.ID]
	if !ok || cur.Version != expectedVersion {
		return 0, nil
	}
	r.stocks[next.ID] = *next
	return 1, nil
}

func (r *MemoryStockRepository) List(_ context.Context, limit int) ([]*models.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Stock, 0, len(r.stocks))
	for _, s := range r.stocks {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
