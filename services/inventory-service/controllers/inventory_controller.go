package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/yashrajoria/commerce-core/services/common/errors"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

// StockService is the read and registration side used by the controller.
type StockService interface {
	CreateStock(ctx context.Context, req *models.CreateStockRequest) (*models.Stock, error)
	GetStock(ctx context.Context, id uuid.UUID) (*models.Stock, error)
	ListStock(ctx context.Context, limit int) ([]*models.Stock, error)
}

// ReservationService moves stock between buckets.
type ReservationService interface {
	ReserveAll(ctx context.Context, ownerID string, lines []models.ReserveLine) ([]*models.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	Confirm(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ReservationsFor(ctx context.Context, ownerID string) ([]*models.Reservation, error)
}

var errorMappings = []apperrors.Mapping{
	{Target: models.ErrStockNotFound, Code: http.StatusNotFound, Message: "stock not found"},
	{Target: models.ErrStockExists, Code: http.StatusConflict, Message: "stock already exists for this product option"},
	{Target: models.ErrReservationNotFound, Code: http.StatusNotFound, Message: "reservation not found"},
	{Target: models.ErrInsufficientAvailability, Code: http.StatusConflict, Message: "insufficient stock"},
	{Target: models.ErrReservationNotActive, Code: http.StatusConflict, Message: "reservation is no longer active"},
	{Target: models.ErrReservationExpired, Code: http.StatusConflict, Message: "reservation has expired"},
	{Target: services.ErrVersionConflictExhausted, Code: http.StatusConflict, Message: "stock is busy, please retry"},
	{Target: models.ErrInvalidRestoreQuantity, Code: http.StatusUnprocessableEntity, Message: "invalid restore quantity"},
	{Target: models.ErrInvalidSellQuantity, Code: http.StatusUnprocessableEntity, Message: "invalid sell quantity"},
}

// InventoryController handles HTTP requests for stock and reservations.
type InventoryController struct {
	stock        StockService
	reservations ReservationService
}

func NewInventoryController(stock StockService, reservations ReservationService) *InventoryController {
	return &InventoryController{stock: stock, reservations: reservations}
}

func fail(c *gin.Context, err error) {
	appErr := apperrors.Classify(err, errorMappings...)
	if services.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(appErr)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}

// CreateStock registers a new counter.
// POST /inventory
func (ic *InventoryController) CreateStock(c *gin.Context) {
	var req models.CreateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}
	stock, err := ic.stock.CreateStock(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stock)
}

// GET /inventory/:stockId
func (ic *InventoryController) GetStock(c *gin.Context) {
	id, ok := parseID(c, "stockId")
	if !ok {
		return
	}
	stock, err := ic.stock.GetStock(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// GET /inventory?limit=
func (ic *InventoryController) ListStock(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	stocks, err := ic.stock.ListStock(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": stocks})
}

// Reserve reserves every line or none.
// POST /inventory/reserve
func (ic *InventoryController) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}
	held, err := ic.reservations.ReserveAll(c.Request.Context(), req.OwnerID, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ReserveResponse{OwnerID: req.OwnerID, Reservations: held})
}

// POST /inventory/reservations/:reservationId/release
func (ic *InventoryController) Release(c *gin.Context) {
	id, ok := parseID(c, "reservationId")
	if !ok {
		return
	}
	res, err := ic.reservations.Release(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /inventory/reservations/:reservationId/confirm
func (ic *InventoryController) Confirm(c *gin.Context) {
	id, ok := parseID(c, "reservationId")
	if !ok {
		return
	}
	res, err := ic.reservations.Confirm(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /inventory/reservations?owner_id=
func (ic *InventoryController) ListReservations(c *gin.Context) {
	owner := c.Query("owner_id")
	if owner == "" {
		_ = c.Error(apperrors.BadRequest("owner_id is required", nil))
		return
	}
	held, err := ic.reservations.ReservationsFor(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ReserveResponse{OwnerID: owner, Reservations: held})
}
