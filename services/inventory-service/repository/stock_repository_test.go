package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return gormDB, mock
}

func nextStock(t *testing.T) *models.Stock {
	t.Helper()
	s, err := models.NewStock("prod-1", "red", 5)
	require.NoError(t, err)
	require.NoError(t, s.Reserve(2))
	return s
}

func TestGormStockRepository_CASWriteFiltersOnVersion(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormStockRepository(gormDB)
	next := nextStock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "stocks" SET .* WHERE id = .* AND version = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.CASWrite(context.Background(), next, next.Version-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStockRepository_CASWriteStaleVersionAffectsNothing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormStockRepository(gormDB)
	next := nextStock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "stocks" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := repo.CASWrite(context.Background(), next, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStockRepository_LoadMissing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormStockRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "stocks"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrStockNotFound)
}

func TestGormReservationRepository_FindExpiredActiveSkipsDeferred(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormReservationRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "reservations" WHERE \(status = .* AND expires_at < .*\) AND \(reap_after IS NULL OR reap_after <= .*\) ORDER BY expires_at LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.FindExpiredActive(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormReservationRepository_DeferReapCountsAttempt(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormReservationRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "reservations" SET .*"reap_attempts"=reap_attempts \+ 1.* WHERE id = .* AND status = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeferReap(context.Background(), uuid.New(), time.Now().Add(time.Minute)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
