package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
)

// CouponRepository defines the interface for coupon data access.
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	Deactivate(ctx context.Context, code string) error
	FindAll(ctx context.Context, page, limit int) ([]models.Coupon, int64, error)
}

// QuotaTx is the view of the store available inside one issuance
// transaction.
type QuotaTx interface {
	// FindCoupon loads the coupon. With forUpdate the row stays locked
	// until the transaction ends.
	FindCoupon(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Coupon, error)
	HasIssuance(ctx context.Context, couponID uuid.UUID, holderID string) (bool, error)
	SetIssued(ctx context.Context, couponID uuid.UUID, issued uint) error
	CreateIssuance(ctx context.Context, issuance *models.CouponIssuance) error
}

// QuotaStore runs fn in one transaction. Any error rolls every write back.
type QuotaStore interface {
	InTx(ctx context.Context, fn func(tx QuotaTx) error) error
}

// GormCouponRepository implements CouponRepository and QuotaStore using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	err := r.db.WithContext(ctx).Create(coupon).Error
	if isDuplicate(err) {
		return models.ErrDuplicateCode
	}
	return err
}

// FindByCode retrieves an active coupon by its code (case-insensitive).
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("LOWER(code) = ? AND active = ?", strings.ToLower(code), true).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Deactivate soft-deactivates a coupon by setting active = false.
func (r *GormCouponRepository) Deactivate(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("LOWER(code) = ?", strings.ToLower(code)).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrCouponNotFound
	}
	return nil
}

// FindAll retrieves paginated coupons.
func (r *GormCouponRepository) FindAll(ctx context.Context, page, limit int) ([]models.Coupon, int64, error) {
	var coupons []models.Coupon
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Coupon{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&coupons).Error; err != nil {
		return nil, 0, err
	}

	return coupons, total, nil
}

func (r *GormCouponRepository) InTx(ctx context.Context, fn func(tx QuotaTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormQuotaTx{db: tx})
	})
}

type gormQuotaTx struct {
	db *gorm.DB
}

func (t gormQuotaTx) FindCoupon(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Coupon, error) {
	q := t.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var coupon models.Coupon
	err := q.First(&coupon, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (t gormQuotaTx) HasIssuance(ctx context.Context, couponID uuid.UUID, holderID string) (bool, error) {
	var n int64
	err := t.db.WithContext(ctx).
		Model(&models.CouponIssuance{}).
		Where("coupon_id = ? AND holder_id = ?", couponID, holderID).
		Count(&n).Error
	return n > 0, err
}

func (t gormQuotaTx) SetIssued(ctx context.Context, couponID uuid.UUID, issued uint) error {
	return t.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("issued", issued).
		Error
}

func (t gormQuotaTx) CreateIssuance(ctx context.Context, issuance *models.CouponIssuance) error {
	err := t.db.WithContext(ctx).Create(issuance).Error
	if isDuplicate(err) {
		return models.ErrAlreadyIssued
	}
	return err
}

func isDuplicate(err error) bool {
	return err != nil && (errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key"))
}
