// Package http exposes the intake pipelines over REST and streams store
// events over a websocket.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/database"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/service"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerStaffID        = "X-Staff-ID"
)

type Handler struct {
	orders service.OrderService
	online service.OnlineOrderService
	inv    service.InventoryService
	hub    *events.Hub
	db     database.Service // nil in memory mode
	log    *logrus.Entry
}

func NewHandler(
	orders service.OrderService,
	online service.OnlineOrderService,
	inv service.InventoryService,
	hub *events.Hub,
	db database.Service,
	log *logrus.Entry,
) *Handler {
	return &Handler{orders: orders, online: online, inv: inv, hub: hub, db: db, log: log}
}

// principal returns the staff identity the gateway attached to the request.
func principal(c *gin.Context) string {
	if id := c.GetHeader(headerStaffID); id != "" {
		return id
	}
	return "anonymous"
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.orders.Create(c.Request.Context(), principal(c), c.GetHeader(headerIdempotencyKey), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) posCheckout(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.orders.PosCheckout(c.Request.Context(), principal(c), c.GetHeader(headerIdempotencyKey), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: "invalid order id"})
		return
	}
	resp, err := h.orders.Find(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) finalizePayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: "invalid order id"})
		return
	}
	var req service.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.orders.FinalizePayment(c.Request.Context(), orderID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) updateStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: "invalid order id"})
		return
	}
	var req service.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.orders.UpdateStatus(c.Request.Context(), orderID, domain.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) enqueueOnlineOrder(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.online.Enqueue(c.Request.Context(), principal(c), c.GetHeader(headerIdempotencyKey), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) getTicket(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: "invalid ticket id"})
		return
	}
	resp, err := h.online.Ticket(c.Request.Context(), ticketID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func quantityParam(c *gin.Context) (decimal.Decimal, bool) {
	qty, err := decimal.NewFromString(c.Query("quantity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: "quantity must be a number"})
		return decimal.Zero, false
	}
	return qty, true
}

func (h *Handler) deductInventory(c *gin.Context) {
	qty, ok := quantityParam(c)
	if !ok {
		return
	}
	resp, err := h.inv.Deduct(c.Request.Context(), c.Param("storeID"), c.Param("itemID"), qty)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) restockInventory(c *gin.Context) {
	qty, ok := quantityParam(c)
	if !ok {
		return
	}
	resp, err := h.inv.Restock(c.Request.Context(), c.Param("storeID"), c.Param("itemID"), c.Query("unit"), qty)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) auditInventory(c *gin.Context) {
	var req struct {
		Counts []service.AuditLine `json:"counts" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		return
	}
	resp, err := h.inv.Audit(c.Request.Context(), c.Param("storeID"), req.Counts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": resp})
}

func (h *Handler) getInventory(c *gin.Context) {
	resp, err := h.inv.Available(c.Request.Context(), c.Param("storeID"), c.Param("itemID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) health(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up", "storage": "memory"})
		return
	}
	stats := h.db.Health(c.Request.Context())
	code := http.StatusOK
	if stats["status"] != "up" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}
