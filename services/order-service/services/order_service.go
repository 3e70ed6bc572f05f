package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/services/order-service/models"
	repositories "github.com/yashrajoria/commerce-core/services/order-service/repository"
)

const releaseTimeout = 10 * time.Second

type CreateOrderRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Items  []struct {
		StockID  uuid.UUID `json:"stock_id" binding:"required"`
		Quantity uint      `json:"quantity" binding:"required,min=1"`
	} `json:"items" binding:"required,min=1,dive"`
}

type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

type ServiceError struct {
	StatusCode int
	Message    string
	// RetryAfter is set when the caller should try again shortly.
	RetryAfter bool
}

func (e *ServiceError) Error() string {
	return e.Message
}

// StockReserver is the inventory surface an order needs.
type StockReserver interface {
	ReserveAll(ctx context.Context, ownerID string, lines []ReserveLine) ([]*Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	Confirm(ctx context.Context, reservationID uuid.UUID) error
}

type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

type OrderService struct {
	orderRepo   repositories.OrderRepository
	inventory   StockReserver
	snsClient   awspkg.SNSPublisher
	snsTopicArn string
	metrics     MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
}

func NewOrderService(orderRepo repositories.OrderRepository, inventory StockReserver, snsClient awspkg.SNSPublisher, snsTopicArn string, metrics MetricsRecorder, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo:   orderRepo,
		inventory:   inventory,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// PlaceOrder reserves stock for every line and persists the order. The
// order id doubles as the reservation owner so the expiry reaper can find
// the order when it releases a lapsed hold.
func (s *OrderService) PlaceOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, *ServiceError) {
	if len(req.Items) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "At least one item is required"}
	}

	orderID := uuid.New()
	lines := make([]ReserveLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, ReserveLine{StockID: item.StockID, Quantity: item.Quantity})
	}

	held, err := s.inventory.ReserveAll(ctx, orderID.String(), lines)
	if err != nil {
		s.logger.Warn("reserve failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, inventoryServiceError(err)
	}
	if len(held) != len(lines) {
		s.releaseAll(ctx, orderID, held)
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Inventory returned an incomplete reservation"}
	}

	order := &models.Order{
		ID:     orderID,
		UserID: req.UserID,
		Status: models.StatusPendingPayment,
		Items:  make([]models.OrderItem, len(lines)),
	}
	for i, line := range lines {
		order.Items[i] = models.OrderItem{
			ID:            uuid.New(),
			OrderID:       orderID,
			StockID:       line.StockID,
			Quantity:      line.Quantity,
			ReservationID: held[i].ID,
		}
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("failed to persist order, releasing stock", zap.String("order_id", orderID.String()), zap.Error(err))
		s.releaseAll(ctx, orderID, held)
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create order"}
	}

	s.record(ctx, awspkg.MetricOrdersPlaced)
	s.publish(ctx, "order_placed", order)
	s.logger.Info("order placed",
		zap.String("order_id", orderID.String()),
		zap.String("user_id", req.UserID),
		zap.Int("lines", len(lines)),
	)
	return order, nil
}

// CancelOrder marks a pending order cancelled and returns its stock.
// Reservations that are already settled are skipped; ones that fail to
// release stay held until the reaper expires them.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, serr := s.claim(ctx, orderID, models.StatusCancelled)
	if serr != nil {
		return nil, serr
	}

	for _, item := range order.Items {
		err := s.inventory.Release(ctx, item.ReservationID)
		if err != nil && !errors.Is(err, ErrReservationSettled) && !errors.Is(err, ErrInventoryNotFound) {
			s.logger.Warn("release on cancel failed; reaper will expire it",
				zap.String("order_id", orderID.String()),
				zap.String("reservation_id", item.ReservationID.String()),
				zap.Error(err),
			)
		}
	}

	s.record(ctx, awspkg.MetricOrdersCancelled)
	s.publish(ctx, "order_cancelled", order)
	return order, nil
}

// CompleteOrder marks a pending order paid and converts its reservations
// into sales. The status is claimed first so a concurrent cancel cannot
// release stock that is being sold.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, serr := s.claim(ctx, orderID, models.StatusPaid)
	if serr != nil {
		return nil, serr
	}

	var failed int
	for _, item := range order.Items {
		if err := s.inventory.Confirm(ctx, item.ReservationID); err != nil {
			failed++
			s.logger.Error("confirm on completion failed",
				zap.String("order_id", orderID.String()),
				zap.String("reservation_id", item.ReservationID.String()),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		return order, &ServiceError{StatusCode: http.StatusConflict, Message: "Order paid but some reservations could not be confirmed"}
	}

	s.record(ctx, awspkg.MetricOrdersCompleted)
	s.publish(ctx, "order_completed", order)
	return order, nil
}

// CancelExpiredOrder is called after the reaper has released an order's
// reservations, so it only moves the order to expired.
func (s *OrderService) CancelExpiredOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, serr := s.claim(ctx, orderID, models.StatusExpired)
	if serr != nil {
		return nil, serr
	}
	s.publish(ctx, "order_expired", order)
	s.logger.Info("order expired", zap.String("order_id", orderID.String()))
	return order, nil
}

// claim moves a pending order to status and returns it updated.
func (s *OrderService) claim(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *ServiceError) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, repoServiceError(err, "Failed to fetch order")
	}
	if !order.Pending() {
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Order is already " + string(order.Status)}
	}

	now := s.now()
	ok, err := s.orderRepo.Transition(ctx, orderID, models.StatusPendingPayment, status, now)
	if err != nil {
		return nil, repoServiceError(err, "Failed to update order")
	}
	if !ok {
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: models.ErrOrderNotPending.Error()}
	}

	order.Status = status
	if status == models.StatusPaid {
		order.CompletedAt = &now
	} else {
		order.CanceledAt = &now
	}
	return order, nil
}

// GetOrderByID retrieves a specific order
func (s *OrderService) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, repoServiceError(err, "Failed to fetch order")
	}
	return order, nil
}

// GetUserOrders retrieves paginated orders for a specific user
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, page, limit int) (*OrderResponse, *ServiceError) {
	orders, total, err := s.orderRepo.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("failed to fetch orders", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch orders"}
	}

	return &OrderResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

func (s *OrderService) releaseAll(ctx context.Context, orderID uuid.UUID, held []*Reservation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if err := s.inventory.Release(ctx, held[i].ID); err != nil {
			s.logger.Error("release after failed order failed",
				zap.String("order_id", orderID.String()),
				zap.String("reservation_id", held[i].ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *OrderService) record(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "order-service"})
}

// publish is best-effort; a failed SNS publish never fails the request.
func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		return
	}
	evt := models.OrderEvent{
		Type:      eventType,
		OrderID:   order.ID.String(),
		UserID:    order.UserID,
		Status:    order.Status,
		Items:     order.Items,
		Timestamp: s.now(),
	}
	if err := awspkg.PublishJSON(ctx, s.snsClient, s.snsTopicArn, eventType, evt); err != nil {
		s.logger.Warn("sns publish failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func inventoryServiceError(err error) *ServiceError {
	switch {
	case errors.Is(err, ErrInventoryBusy):
		return &ServiceError{StatusCode: http.StatusConflict, Message: "Stock is busy, please retry", RetryAfter: true}
	case errors.Is(err, ErrStockUnavailable):
		return &ServiceError{StatusCode: http.StatusConflict, Message: "Insufficient stock"}
	case errors.Is(err, ErrInventoryNotFound):
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Stock not found"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &ServiceError{StatusCode: http.StatusGatewayTimeout, Message: "Inventory service timed out"}
	}
	var invErr *InventoryError
	if errors.As(err, &invErr) && invErr.StatusCode < 500 {
		return &ServiceError{StatusCode: invErr.StatusCode, Message: invErr.Message}
	}
	return &ServiceError{StatusCode: http.StatusBadGateway, Message: "Inventory service unavailable"}
}

func repoServiceError(err error, msg string) *ServiceError {
	if errors.Is(err, models.ErrOrderNotFound) {
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Order not found"}
	}
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: msg}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
