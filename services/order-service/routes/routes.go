package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/commerce-core/services/order-service/controllers"
)

func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController) {
	orderRoutes := r.Group("/orders")
	orderRoutes.POST("", oc.CreateOrder)
	orderRoutes.GET("", oc.GetOrders)
	orderRoutes.GET("/:id", oc.GetOrderByID)
	orderRoutes.POST("/:id/cancel", oc.CancelOrder)
	orderRoutes.POST("/:id/complete", oc.CompleteOrder)
	orderRoutes.POST("/:id/expire", oc.ExpireOrder)
}
