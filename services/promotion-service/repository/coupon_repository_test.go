package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
	"github.com/yashrajoria/commerce-core/services/promotion-service/repository"
)

func seedCoupon(t *testing.T, repo *repository.MemoryCouponRepository, code string, limit uint) *models.Coupon {
	t.Helper()
	c := &models.Coupon{
		Code:       code,
		Type:       models.CouponTypeFlat,
		Value:      5,
		IssueLimit: limit,
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		Active:     true,
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestMemoryCouponRepository_CreateRejectsDuplicateCode(t *testing.T) {
	repo := repository.NewMemoryCouponRepository()
	seedCoupon(t, repo, "SAVE10", 1)

	err := repo.Create(context.Background(), &models.Coupon{Code: "save10"})
	assert.ErrorIs(t, err, models.ErrDuplicateCode)
}

func TestMemoryCouponRepository_FindByCodeIgnoresInactive(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCouponRepository()
	seedCoupon(t, repo, "SAVE10", 1)

	found, err := repo.FindByCode(ctx, "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", found.Code)

	require.NoError(t, repo.Deactivate(ctx, "SAVE10"))
	_, err = repo.FindByCode(ctx, "SAVE10")
	assert.ErrorIs(t, err, models.ErrCouponNotFound)

	assert.ErrorIs(t, repo.Deactivate(ctx, "GHOST"), models.ErrCouponNotFound)
}

func TestMemoryCouponRepository_FindAllPaginates(t *testing.T) {
	repo := repository.NewMemoryCouponRepository()
	for _, code := range []string{"C", "A", "B"} {
		seedCoupon(t, repo, code, 1)
	}

	page, total, err := repo.FindAll(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "C", page[0].Code)

	page, _, err = repo.FindAll(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryCouponRepository_TxCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCouponRepository()
	c := seedCoupon(t, repo, "SAVE10", 5)

	err := repo.InTx(ctx, func(tx repository.QuotaTx) error {
		require.NoError(t, tx.SetIssued(ctx, c.ID, 1))
		require.NoError(t, tx.CreateIssuance(ctx, &models.CouponIssuance{ID: uuid.New(), CouponID: c.ID, HolderID: "h1"}))

		staged, err := tx.FindCoupon(ctx, c.ID, false)
		require.NoError(t, err)
		assert.Equal(t, uint(1), staged.Issued)
		return nil
	})
	require.NoError(t, err)

	stored, err := repo.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.Issued)
	assert.Equal(t, 1, repo.Issuances(c.ID))
}

func TestMemoryCouponRepository_TxErrorDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCouponRepository()
	c := seedCoupon(t, repo, "SAVE10", 5)

	err := repo.InTx(ctx, func(tx repository.QuotaTx) error {
		_ = tx.SetIssued(ctx, c.ID, 1)
		_ = tx.CreateIssuance(ctx, &models.CouponIssuance{ID: uuid.New(), CouponID: c.ID, HolderID: "h1"})
		return models.ErrQuotaNotValid
	})
	assert.ErrorIs(t, err, models.ErrQuotaNotValid)

	stored, _ := repo.FindByCode(ctx, "SAVE10")
	assert.Equal(t, uint(0), stored.Issued)
	assert.Equal(t, 0, repo.Issuances(c.ID))
}

func TestMemoryCouponRepository_CommitRejectsSecondIssuanceToHolder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCouponRepository()
	c := seedCoupon(t, repo, "SAVE10", 5)

	issueTo := func(holder string, issued uint) error {
		return repo.InTx(ctx, func(tx repository.QuotaTx) error {
			_ = tx.SetIssued(ctx, c.ID, issued)
			return tx.CreateIssuance(ctx, &models.CouponIssuance{ID: uuid.New(), CouponID: c.ID, HolderID: holder})
		})
	}
	require.NoError(t, issueTo("h1", 1))
	assert.ErrorIs(t, issueTo("h1", 2), models.ErrAlreadyIssued)

	stored, _ := repo.FindByCode(ctx, "SAVE10")
	assert.Equal(t, uint(1), stored.Issued)
}
