package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/commerce-core/services/promotion-service/controllers"
)

// RegisterCouponRoutes sets up all coupon-related routes.
func RegisterCouponRoutes(r *gin.Engine, cc *controllers.CouponController) {
	couponRoutes := r.Group("/coupons")
	couponRoutes.POST("", cc.CreateCoupon)
	couponRoutes.GET("", cc.ListCoupons)
	couponRoutes.GET("/:code", cc.GetCoupon)
	couponRoutes.DELETE("/:code", cc.DeactivateCoupon)
	couponRoutes.POST("/:code/issue", cc.IssueCoupon)
}
