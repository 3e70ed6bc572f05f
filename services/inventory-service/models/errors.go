package models

import "errors"

var (
	ErrInsufficientAvailability = errors.New("insufficient available stock")
	ErrInvalidRestoreQuantity   = errors.New("invalid restore quantity")
	ErrInvalidSellQuantity      = errors.New("invalid sell quantity")
	// ErrInvariantViolation means available+reserved+sold no longer equals
	// total. It indicates a bug or a corrupted row and is never retried.
	ErrInvariantViolation = errors.New("stock invariant violated")

	ErrStockNotFound        = errors.New("stock not found")
	ErrStockExists          = errors.New("stock already exists")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrReservationExpired   = errors.New("reservation has expired")
)
