package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
)

type sliceSource struct {
	stocks []*models.Stock
	bad    int
}

func (s sliceSource) Each(_ context.Context, _ int32, fn func(*models.Stock) error, onBad func(string, error)) error {
	for range s.bad {
		onBad("broken", errors.New("decode failed"))
	}
	for _, st := range s.stocks {
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

func sampleStock(t *testing.T, total uint) *models.Stock {
	t.Helper()
	s, err := models.NewStock("prod-1", "", total)
	require.NoError(t, err)
	require.NoError(t, s.Reserve(1))
	return s
}

func TestMigrate_CopiesCountersWithVersion(t *testing.T) {
	ctx := context.Background()
	a, b := sampleStock(t, 5), sampleStock(t, 3)
	target := repository.NewMemoryStockRepository()

	stats, err := migrate(ctx, sliceSource{stocks: []*models.Stock{a, b}, bad: 1}, target, 10, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, migrateStats{Migrated: 2, Bad: 1}, stats)

	got, err := target.Load(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Version, got.Version)
	assert.Equal(t, uint(1), got.Reserved)
}

func TestMigrate_RerunSkipsExisting(t *testing.T) {
	ctx := context.Background()
	a := sampleStock(t, 5)
	target := repository.NewMemoryStockRepository()
	src := sliceSource{stocks: []*models.Stock{a}}

	_, err := migrate(ctx, src, target, 10, zap.NewNop())
	require.NoError(t, err)
	stats, err := migrate(ctx, src, target, 10, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, migrateStats{Existing: 1}, stats)
}

func TestMigrate_DryRunWritesNothing(t *testing.T) {
	stats, err := migrate(context.Background(), sliceSource{stocks: []*models.Stock{sampleStock(t, 2)}}, nil, 10, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Migrated)
}
