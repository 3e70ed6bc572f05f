package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// ReservationRepository stores reservations. Transition is a conditional
// status change: it reports false when the reservation was not in from.
type ReservationRepository interface {
	Create(ctx context.Context, r *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error)
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error)
	DeferReap(ctx context.Context, id uuid.UUID, until time.Time) error
	Transition(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus) (bool, error)
}

type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation %s: %w", id, err)
	}
	return &res, nil
}

func (r *GormReservationRepository) FindByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error) {
	var out []*models.Reservation
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find reservations for owner %s: %w", ownerID, err)
	}
	return out, nil
}

func (r *GormReservationRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	var out []*models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.ReservationActive, now).
		Where("reap_after IS NULL OR reap_after <= ?", now).
		Order("expires_at").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find expired reservations: %w", err)
	}
	return out, nil
}

// DeferReap hides an ACTIVE reservation from FindExpiredActive until until
// and counts the failed attempt.
func (r *GormReservationRepository) DeferReap(ctx context.Context, id uuid.UUID, until time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, models.ReservationActive).
		Updates(map[string]any{
			"reap_after":    until,
			"reap_attempts": gorm.Expr("reap_attempts + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("defer reap of reservation %s: %w", id, err)
	}
	return nil
}

func (r *GormReservationRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("transition reservation %s %s->%s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MemoryReservationRepository keeps reservations in process.
type MemoryReservationRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]models.Reservation
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{byID: make(map[uuid.UUID]models.Reservation)}
}

func (r *MemoryReservationRepository) Create(_ context.Context, res *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[res.ID] = *res
	return nil
}

func (r *MemoryReservationRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok {
		return nil, models.ErrReservationNotFound
	}
	return &res, nil
}

func (r *MemoryReservationRepository) FindByOwner(_ context.Context, ownerID string) ([]*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Reservation
	for _, res := range r.byID {
		if res.OwnerID == ownerID {
			res := res
			out = append(out, &res)
		}
	}
	return out, nil
}

func (r *MemoryReservationRepository) FindExpiredActive(_ context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Reservation
	for _, res := range r.byID {
		if res.Reapable(now) {
			res := res
			out = append(out, &res)
		}
	}
	slices.SortFunc(out, func(a, b *models.Reservation) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryReservationRepository) DeferReap(_ context.Context, id uuid.UUID, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok || res.Status != models.ReservationActive {
		return nil
	}
	res.ReapAttempts++
	res.ReapAfter = &until
	r.byID[id] = res
	return nil
}

func (r *MemoryReservationRepository) Transition(_ context.Context, id uuid.UUID, from, to models.ReservationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = time.Now().UTC()
	r.byID[id] = res
	return true, nil
}
