package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
)

type issuanceKey struct {
	couponID uuid.UUID
	holderID string
}

// MemoryCouponRepository is an in-process CouponRepository and QuotaStore.
// Its transactions buffer writes and apply them on commit but take no row
// locks, so concurrent issuance against it needs an external lock.
type MemoryCouponRepository struct {
	mu        sync.Mutex
	coupons   map[uuid.UUID]models.Coupon
	issuances map[issuanceKey]models.CouponIssuance
}

func NewMemoryCouponRepository() *MemoryCouponRepository {
	return &MemoryCouponRepository{
		coupons:   make(map[uuid.UUID]models.Coupon),
		issuances: make(map[issuanceKey]models.CouponIssuance),
	}
}

func (r *MemoryCouponRepository) Create(_ context.Context, coupon *models.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if strings.EqualFold(c.Code, coupon.Code) {
			return models.ErrDuplicateCode
		}
	}
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	r.coupons[coupon.ID] = *coupon
	return nil
}

func (r *MemoryCouponRepository) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if c.Active && strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, models.ErrCouponNotFound
}

func (r *MemoryCouponRepository) Deactivate(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.coupons {
		if strings.EqualFold(c.Code, code) {
			c.Active = false
			r.coupons[id] = c
			return nil
		}
	}
	return models.ErrCouponNotFound
}

func (r *MemoryCouponRepository) FindAll(_ context.Context, page, limit int) ([]models.Coupon, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]models.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return all[start:end], int64(len(all)), nil
}

// Issuances returns how many issuance records exist for couponID.
func (r *MemoryCouponRepository) Issuances(couponID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.issuances {
		if k.couponID == couponID {
			n++
		}
	}
	return n
}

func (r *MemoryCouponRepository) InTx(ctx context.Context, fn func(tx QuotaTx) error) error {
	tx := &memoryQuotaTx{repo: r, issued: make(map[uuid.UUID]uint)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memoryQuotaTx struct {
	repo      *MemoryCouponRepository
	issued    map[uuid.UUID]uint
	issuances []models.CouponIssuance
}

func (t *memoryQuotaTx) FindCoupon(_ context.Context, id uuid.UUID, _ bool) (*models.Coupon, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	c, ok := t.repo.coupons[id]
	if !ok {
		return nil, models.ErrCouponNotFound
	}
	if n, staged := t.issued[id]; staged {
		c.Issued = n
	}
	return &c, nil
}

func (t *memoryQuotaTx) HasIssuance(_ context.Context, couponID uuid.UUID, holderID string) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	_, ok := t.repo.issuances[issuanceKey{couponID, holderID}]
	return ok, nil
}

func (t *memoryQuotaTx) SetIssued(_ context.Context, couponID uuid.UUID, issued uint) error {
	t.issued[couponID] = issued
	return nil
}

func (t *memoryQuotaTx) CreateIssuance(_ context.Context, issuance *models.CouponIssuance) error {
	t.issuances = append(t.issuances, *issuance)
	return nil
}

func (t *memoryQuotaTx) commit() error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, iss := range t.issuances {
		if _, dup := t.repo.issuances[issuanceKey{iss.CouponID, iss.HolderID}]; dup {
			return models.ErrAlreadyIssued
		}
	}
	for id, n := range t.issued {
		c := t.repo.coupons[id]
		c.Issued = n
		t.repo.coupons[id] = c
	}
	for _, iss := range t.issuances {
		t.repo.issuances[issuanceKey{iss.CouponID, iss.HolderID}] = iss
	}
	return nil
}

