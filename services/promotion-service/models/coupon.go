package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrQuotaExhausted = errors.New("coupon quota exhausted")
	ErrQuotaNotValid  = errors.New("coupon is not yet or no longer valid")
	ErrAlreadyIssued  = errors.New("coupon already issued to holder")
	ErrDuplicateCode  = errors.New("coupon code already exists")
)

// CouponType represents the type of discount a coupon provides.
type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFlat         CouponType = "flat"
	CouponTypeFreeShipping CouponType = "freeshipping"
)

// Coupon is a promotional coupon with a finite issue quota. Issued never
// exceeds IssueLimit, and issuance is only allowed inside
// [ValidFrom, ValidUntil].
type Coupon struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type          CouponType     `gorm:"type:varchar(20);not null" json:"type"`
	Value         float64        `gorm:"not null" json:"value"`
	MinOrderValue float64        `gorm:"not null;default:0" json:"min_order_value"`
	IssueLimit    uint           `gorm:"not null" json:"issue_limit"`
	Issued        uint           `gorm:"not null;default:0" json:"issued"`
	ValidFrom     time.Time      `gorm:"not null" json:"valid_from"`
	ValidUntil    time.Time      `gorm:"not null" json:"valid_until"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Coupon) Remaining() uint {
	if c.Issued >= c.IssueLimit {
		return 0
	}
	return c.IssueLimit - c.Issued
}

// IssuableAt reports whether the coupon may be issued at now. Both window
// bounds are inclusive.
func (c *Coupon) IssuableAt(now time.Time) bool {
	return c.Active && !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// CouponIssuance records one coupon handed to one holder.
type CouponIssuance struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CouponID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_holder" json:"coupon_id"`
	HolderID string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_coupon_holder" json:"holder_id"`
	IssuedAt time.Time `gorm:"not null" json:"issued_at"`
}

// CreateCouponRequest is the payload for creating a new coupon.
type CreateCouponRequest struct {
	Code          string     `json:"code" binding:"required,min=3,max=64"`
	Type          CouponType `json:"type" binding:"required,oneof=percentage flat freeshipping"`
	Value         float64    `json:"value" binding:"gte=0"`
	MinOrderValue float64    `json:"min_order_value" binding:"gte=0"`
	IssueLimit    uint       `json:"issue_limit" binding:"required,gte=1"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    time.Time  `json:"valid_until" binding:"required"`
}

// IssueCouponRequest asks for one coupon for holder.
type IssueCouponRequest struct {
	HolderID string `json:"holder_id" binding:"required,max=128"`
}

// CouponIssuedEvent is published to SNS after a successful issuance.
type CouponIssuedEvent struct {
	EventType  string    `json:"event_type"`
	CouponID   string    `json:"coupon_id"`
	CouponCode string    `json:"coupon_code"`
	HolderID   string    `json:"holder_id"`
	Issued     uint      `json:"issued"`
	IssueLimit uint      `json:"issue_limit"`
	Timestamp  time.Time `json:"timestamp"`
}
