package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yashrajoria/commerce-core/services/order-service/models"
	"github.com/yashrajoria/commerce-core/services/order-service/services"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req *services.CreateOrderRequest) (*models.Order, *services.ServiceError)
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, *services.ServiceError)
	GetUserOrders(ctx context.Context, userID string, page, limit int) (*services.OrderResponse, *services.ServiceError)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *services.ServiceError)
	CompleteOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *services.ServiceError)
	CancelExpiredOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *services.ServiceError)
}

type OrderController struct {
	orderService OrderService
}

func NewOrderController(orderService OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

func respondError(ctx *gin.Context, serr *services.ServiceError) {
	if serr.RetryAfter {
		ctx.Header("Retry-After", "1")
	}
	ctx.JSON(serr.StatusCode, gin.H{"error": serr.Message})
}

// CreateOrder reserves stock and creates a pending order
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	var req services.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, serr := oc.orderService.PlaceOrder(ctx.Request.Context(), &req)
	if serr != nil {
		respondError(ctx, serr)
		return
	}

	ctx.JSON(http.StatusCreated, order)
}

// GetOrders returns paginated orders for one user
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	page, limit := parsePaginationParams(ctx)
	result, serr := oc.orderService.GetUserOrders(ctx.Request.Context(), userID, page, limit)
	if serr != nil {
		respondError(ctx, serr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	oc.withOrderID(ctx, oc.orderService.GetOrderByID)
}

func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	oc.withOrderID(ctx, oc.orderService.CancelOrder)
}

func (oc *OrderController) CompleteOrder(ctx *gin.Context) {
	oc.withOrderID(ctx, oc.orderService.CompleteOrder)
}

// ExpireOrder is called by the inventory reaper after it released the
// order's reservations.
func (oc *OrderController) ExpireOrder(ctx *gin.Context) {
	oc.withOrderID(ctx, oc.orderService.CancelExpiredOrder)
}

func (oc *OrderController) withOrderID(ctx *gin.Context, fn func(context.Context, uuid.UUID) (*models.Order, *services.ServiceError)) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID format"})
		return
	}

	order, serr := fn(ctx.Request.Context(), orderID)
	if serr != nil {
		respondError(ctx, serr)
		return
	}

	ctx.JSON(http.StatusOK, order)
}

func parsePaginationParams(ctx *gin.Context) (int, int) {
	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
