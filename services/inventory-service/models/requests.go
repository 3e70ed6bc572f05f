package models

import "github.com/google/uuid"

type CreateStockRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	OptionID  string `json:"option_id"`
	Total     uint   `json:"total"`
}

type ReserveLine struct {
	StockID  uuid.UUID `json:"stock_id" binding:"required"`
	Quantity uint      `json:"quantity" binding:"required,min=1"`
}

type ReserveRequest struct {
	OwnerID string        `json:"owner_id" binding:"required"`
	Items   []ReserveLine `json:"items" binding:"required,min=1,dive"`
}

type ReserveResponse struct {
	OwnerID      string         `json:"owner_id"`
	Reservations []*Reservation `json:"reservations"`
}
