package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stock is the versioned counter for one product option. Every unit is in
// exactly one bucket, so Available+Reserved+Sold == Total at all times.
// Each successful mutation bumps Version by one.
type Stock struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID string    `gorm:"not null;uniqueIndex:idx_stock_product_option" json:"product_id"`
	OptionID  string    `gorm:"not null;default:'';uniqueIndex:idx_stock_product_option" json:"option_id"`
	Total     uint      `gorm:"not null" json:"total"`
	Available uint      `gorm:"not null" json:"available"`
	Reserved  uint      `gorm:"not null" json:"reserved"`
	Sold      uint      `gorm:"not null" json:"sold"`
	Version   uint64    `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStock returns a counter with every unit available at version 0.
func NewStock(productID, optionID string, total uint) (*Stock, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id is required")
	}
	now := time.Now().UTC()
	s := &Stock{
		ID:        uuid.New(),
		ProductID: productID,
		OptionID:  optionID,
		Total:     total,
		Available: total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s, s.Validate()
}

// Validate checks the bucket invariant.
func (s *Stock) Validate() error {
	if s.Available+s.Reserved+s.Sold != s.Total {
		return fmt.Errorf("%w: stock %s has available=%d reserved=%d sold=%d total=%d",
			ErrInvariantViolation, s.ID, s.Available, s.Reserved, s.Sold, s.Total)
	}
	return nil
}

// LockKey is the key used when stock is guarded by a distributed lock.
func (s *Stock) LockKey() string {
	return fmt.Sprintf("stock:%s:%s", s.ProductID, s.OptionID)
}

// Reserve moves n units from available to reserved.
func (s *Stock) Reserve(n uint) error {
	if n == 0 || n > s.Available {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientAvailability, n, s.Available)
	}
	s.Available -= n
	s.Reserved += n
	return s.bump()
}

// RestoreReserved moves n units from reserved back to available.
func (s *Stock) RestoreReserved(n uint) error {
	if n == 0 || n > s.Reserved {
		return fmt.Errorf("%w: requested %d, reserved %d", ErrInvalidRestoreQuantity, n, s.Reserved)
	}
	s.Reserved -= n
	s.Available += n
	return s.bump()
}

// Sell moves n units from reserved to sold.
func (s *Stock) Sell(n uint) error {
	if n == 0 || n > s.Reserved {
		return fmt.Errorf("%w: requested %d, reserved %d", ErrInvalidSellQuantity, n, s.Reserved)
	}
	s.Reserved -= n
	s.Sold += n
	return s.bump()
}

func (s *Stock) bump() error {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	return s.Validate()
}

// Clone returns a copy that can be mutated without touching s.
func (s *Stock) Clone() *Stock {
	c := *s
	return &c
}
