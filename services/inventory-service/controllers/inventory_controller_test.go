package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yashrajoria/commerce-core/services/common/errors"
	"github.com/yashrajoria/commerce-core/services/inventory-service/controllers"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
	"github.com/yashrajoria/commerce-core/services/inventory-service/routes"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	stocks := repository.NewMemoryStockRepository()
	coordinator := services.NewReservationCoordinator(stocks, repository.NewMemoryReservationRepository())
	ic := controllers.NewInventoryController(services.NewInventoryService(stocks, nil, nil), coordinator)

	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	routes.RegisterRoutes(r, ic)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createStock(t *testing.T, r *gin.Engine, total uint) models.Stock {
	t.Helper()
	w := do(t, r, http.MethodPost, "/inventory", models.CreateStockRequest{ProductID: "sku-1", Total: total})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stock models.Stock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stock))
	return stock
}

func TestReserveReleaseFlow(t *testing.T) {
	r := newRouter()
	stock := createStock(t, r, 5)

	w := do(t, r, http.MethodPost, "/inventory/reserve", models.ReserveRequest{
		OwnerID: "order-1",
		Items:   []models.ReserveLine{{StockID: stock.ID, Quantity: 3}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.ReserveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Reservations, 1)

	w = do(t, r, http.MethodGet, "/inventory/"+stock.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Stock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint(2), got.Available)
	assert.Equal(t, uint(3), got.Reserved)

	resID := resp.Reservations[0].ID.String()
	w = do(t, r, http.MethodPost, "/inventory/reservations/"+resID+"/release", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/inventory/reservations/"+resID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"reservation is no longer active"}`, w.Body.String())
}

func TestReserve_InsufficientIsConflict(t *testing.T) {
	r := newRouter()
	stock := createStock(t, r, 1)

	w := do(t, r, http.MethodPost, "/inventory/reserve", models.ReserveRequest{
		OwnerID: "order-1",
		Items:   []models.ReserveLine{{StockID: stock.ID, Quantity: 2}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"insufficient stock"}`, w.Body.String())
}

func TestGetStock_Errors(t *testing.T) {
	r := newRouter()

	w := do(t, r, http.MethodGet, "/inventory/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/inventory/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReservations_RequiresOwner(t *testing.T) {
	r := newRouter()

	w := do(t, r, http.MethodGet, "/inventory/reservations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/inventory/reservations?owner_id=nobody", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
