package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
	"github.com/yashrajoria/commerce-core/services/promotion-service/repository"
)

// QuotaIssuer hands out one unit of a coupon's quota to a holder.
type QuotaIssuer interface {
	Issue(ctx context.Context, couponID uuid.UUID, holderID string) (*models.CouponIssuance, *models.Coupon, error)
}

// issue runs the full check-and-write sequence. The caller must hold an
// exclusive lock on the coupon for the duration.
func issue(ctx context.Context, tx repository.QuotaTx, couponID uuid.UUID, holderID string, now time.Time, forUpdate bool) (*models.CouponIssuance, *models.Coupon, error) {
	coupon, err := tx.FindCoupon(ctx, couponID, forUpdate)
	if err != nil {
		return nil, nil, err
	}

	dup, err := tx.HasIssuance(ctx, couponID, holderID)
	if err != nil {
		return nil, nil, err
	}
	if dup {
		return nil, nil, models.ErrAlreadyIssued
	}
	if coupon.Remaining() == 0 {
		return nil, nil, models.ErrQuotaExhausted
	}
	if !coupon.IssuableAt(now) {
		return nil, nil, models.ErrQuotaNotValid
	}

	coupon.Issued++
	if err := tx.SetIssued(ctx, couponID, coupon.Issued); err != nil {
		return nil, nil, err
	}
	issuance := &models.CouponIssuance{
		ID:       uuid.New(),
		CouponID: couponID,
		HolderID: holderID,
		IssuedAt: now,
	}
	if err := tx.CreateIssuance(ctx, issuance); err != nil {
		return nil, nil, err
	}
	return issuance, coupon, nil
}

// RowLockIssuer serializes issuance with SELECT ... FOR UPDATE on the coupon
// row inside one database transaction.
type RowLockIssuer struct {
	store repository.QuotaStore
	now   func() time.Time
}

func NewRowLockIssuer(store repository.QuotaStore) *RowLockIssuer {
	return &RowLockIssuer{store: store, now: time.Now}
}

func (i *RowLockIssuer) Issue(ctx context.Context, couponID uuid.UUID, holderID string) (*models.CouponIssuance, *models.Coupon, error) {
	var issuance *models.CouponIssuance
	var coupon *models.Coupon
	err := i.store.InTx(ctx, func(tx repository.QuotaTx) error {
		var err error
		issuance, coupon, err = issue(ctx, tx, couponID, holderID, i.now(), true)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return issuance, coupon, nil
}

// LockedIssuer serializes issuance with a distributed lock keyed by coupon,
// for stores that have no row locks. The lease is auto-extended so a slow
// transaction never outlives it.
type LockedIssuer struct {
	store repository.QuotaStore
	lock  *lock.PubSubLock
	opts  lock.AcquireOptions
	now   func() time.Time
}

func NewLockedIssuer(store repository.QuotaStore, l *lock.PubSubLock, opts lock.AcquireOptions) *LockedIssuer {
	opts.AutoExtend = true
	return &LockedIssuer{store: store, lock: l, opts: opts, now: time.Now}
}

func CouponLockKey(couponID uuid.UUID) string {
	return "coupon:" + couponID.String()
}

func (i *LockedIssuer) Issue(ctx context.Context, couponID uuid.UUID, holderID string) (*models.CouponIssuance, *models.Coupon, error) {
	var issuance *models.CouponIssuance
	var coupon *models.Coupon
	err := i.lock.WithLockExtended(ctx, CouponLockKey(couponID), i.opts, func(ctx context.Context) error {
		return i.store.InTx(ctx, func(tx repository.QuotaTx) error {
			var err error
			issuance, coupon, err = issue(ctx, tx, couponID, holderID, i.now(), false)
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return issuance, coupon, nil
}
