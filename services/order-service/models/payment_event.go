package models

import "time"

// Payment event types published by the payment service.
const (
	PaymentSucceeded       = "payment_succeeded"
	PaymentFailed          = "payment_failed"
	CheckoutSessionCreated = "checkout_session_created"
	CheckoutSessionFailed  = "checkout_session_failed"
)

// PaymentEvent arrives from the payment service over SQS (usually inside an
// SNS envelope) or Kafka.
type PaymentEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`

	PaymentID string    `json:"payment_id,omitempty"`
	Amount    int       `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// OrderEvent is published to SNS when an order changes state.
type OrderEvent struct {
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Items     []OrderItem `json:"items,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
