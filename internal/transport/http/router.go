package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter assembles the gin engine: CORS, the versioned REST surface, the
// websocket stream, and the health probe.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, headerIdempotencyKey, headerStaffID)
	r.Use(cors.New(corsCfg))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.POST("/orders/pos-checkout", h.posCheckout)
		v1.GET("/orders/:orderID", h.getOrder)
		v1.PATCH("/orders/:orderID/checkout", h.finalizePayment)
		v1.PATCH("/orders/:orderID/status", h.updateStatus)

		v1.POST("/online-orders", h.enqueueOnlineOrder)
		v1.GET("/online-orders/:ticketID", h.getTicket)

		v1.POST("/stores/:storeID/inventory/:itemID/deduct", h.deductInventory)
		v1.POST("/stores/:storeID/inventory/:itemID/restock", h.restockInventory)
		v1.POST("/stores/:storeID/inventory/audit", h.auditInventory)
		v1.GET("/stores/:storeID/inventory/:itemID", h.getInventory)
	}

	r.GET("/ws/stores/:storeID", h.streamEvents)
	r.GET("/health", h.health)

	return r
}
