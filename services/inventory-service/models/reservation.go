package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation records units held in a stock's reserved bucket on behalf of
// an owner, usually an order. ACTIVE is the only non-terminal status.
type Reservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   string            `gorm:"not null;index" json:"owner_id"`
	StockID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"stock_id"`
	Quantity  uint              `gorm:"not null" json:"quantity"`
	Status    ReservationStatus `gorm:"type:varchar(16);not null;index:idx_reservation_status_expiry,priority:1" json:"status"`
	ExpiresAt time.Time         `gorm:"not null;index:idx_reservation_status_expiry,priority:2" json:"expires_at"`
	// ReapAttempts and ReapAfter back off the reaper on reservations whose
	// release keeps failing.
	ReapAttempts int        `gorm:"not null;default:0" json:"-"`
	ReapAfter    *time.Time `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewReservation(ownerID string, stockID uuid.UUID, quantity uint, now time.Time, ttl time.Duration) *Reservation {
	return &Reservation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		StockID:   stockID,
		Quantity:  quantity,
		Status:    ReservationActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Reapable reports whether the reaper should try r at now.
func (r *Reservation) Reapable(now time.Time) bool {
	if r.Status != ReservationActive || !r.ExpiresAt.Before(now) {
		return false
	}
	return r.ReapAfter == nil || !r.ReapAfter.After(now)
}
