package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/commerce-core/services/inventory-service/controllers"
)

func RegisterRoutes(r *gin.Engine, ic *controllers.InventoryController) {
	inv := r.Group("/inventory")
	{
		inv.GET("", ic.ListStock)
		inv.POST("", ic.CreateStock)
		inv.GET("/:stockId", ic.GetStock)
		inv.POST("/reserve", ic.Reserve)
		inv.GET("/reservations", ic.ListReservations)
		inv.POST("/reservations/:reservationId/release", ic.Release)
		inv.POST("/reservations/:reservationId/confirm", ic.Confirm)
	}
}
