package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/commerce-core/api-gateway/proxy"
)

// Upstreams holds the base URL of each backing service.
type Upstreams struct {
	Inventory string
	Orders    string
	Coupons   string
}

func RegisterAllRoutes(r *gin.Engine, f *proxy.Forwarder, up Upstreams) {
	mount(r, "/inventory", f.To(up.Inventory+"/inventory"))
	mount(r, "/orders", f.To(up.Orders+"/orders"))
	mount(r, "/coupons", f.To(up.Coupons+"/coupons"))
}

// mount forwards both the bare prefix and everything below it.
func mount(r *gin.Engine, prefix string, h gin.HandlerFunc) {
	r.Any(prefix, h)
	r.Any(prefix+"/*any", h)
}
