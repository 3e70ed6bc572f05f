package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/services/order-service/models"
)

// OrderSettler is the part of OrderService payment events drive.
type OrderSettler interface {
	CompleteOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError)
}

// PaymentEventHandler applies payment outcomes to orders. Both the SQS and
// Kafka consumers feed it.
type PaymentEventHandler struct {
	orders  OrderSettler
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewPaymentEventHandler(orders OrderSettler, metrics MetricsRecorder, logger *zap.Logger) *PaymentEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentEventHandler{orders: orders, metrics: metrics, logger: logger}
}

// HandleRaw decodes body and applies it. Malformed payloads are dropped
// rather than retried; only transient failures return an error.
func (h *PaymentEventHandler) HandleRaw(ctx context.Context, body []byte) error {
	var evt models.PaymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("invalid payment event JSON", zap.Error(err), zap.ByteString("payload", body))
		return nil
	}
	return h.Handle(ctx, evt)
}

func (h *PaymentEventHandler) Handle(ctx context.Context, evt models.PaymentEvent) error {
	if evt.OrderID == "" || evt.Type == "" {
		h.logger.Warn("payment event missing fields", zap.String("order_id", evt.OrderID), zap.String("type", evt.Type))
		return nil
	}
	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		h.logger.Warn("payment event has invalid order id", zap.String("order_id", evt.OrderID))
		return nil
	}

	log := h.logger.With(zap.String("order_id", evt.OrderID), zap.String("type", evt.Type))
	log.Info("payment event received")
	if h.metrics != nil {
		_ = h.metrics.RecordCount(ctx, awspkg.MetricSQSMessages, map[string]string{"Service": "order-service", "Type": evt.Type})
	}

	var serr *ServiceError
	switch evt.Type {
	case models.PaymentSucceeded:
		_, serr = h.orders.CompleteOrder(ctx, orderID)
	case models.PaymentFailed, models.CheckoutSessionFailed:
		_, serr = h.orders.CancelOrder(ctx, orderID)
	case models.CheckoutSessionCreated:
		return nil
	default:
		log.Warn("unknown payment event type")
		return nil
	}

	if serr == nil {
		log.Info("order updated from payment event")
		return nil
	}
	// 4xx means the order is gone or already settled; redelivery cannot help.
	if serr.StatusCode < http.StatusInternalServerError {
		log.Info("payment event not applied", zap.Int("status", serr.StatusCode), zap.String("reason", serr.Message))
		return nil
	}
	return serr
}
