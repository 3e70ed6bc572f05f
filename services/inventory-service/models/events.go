package models

import (
	"time"

	"github.com/google/uuid"
)

type StockEventType string

const (
	StockReserved StockEventType = "stock.reserved"
	StockReleased StockEventType = "stock.released"
	StockSold     StockEventType = "stock.sold"
)

// StockEvent is published after a committed stock mutation.
type StockEvent struct {
	Type          StockEventType `json:"type"`
	StockID       uuid.UUID      `json:"stock_id"`
	ProductID     string         `json:"product_id"`
	OptionID      string         `json:"option_id"`
	ReservationID uuid.UUID      `json:"reservation_id"`
	OwnerID       string         `json:"owner_id"`
	Quantity      uint           `json:"quantity"`
	Available     uint           `json:"available"`
	Reserved      uint           `json:"reserved"`
	Sold          uint           `json:"sold"`
	Version       uint64         `json:"version"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
