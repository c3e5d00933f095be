package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beverage-order-intake/internal/domain"
)

// IntakeRequest is the order submission body shared by the synchronous intake
// endpoints and the async ticket payload.
type IntakeRequest struct {
	StoreID       string       `json:"storeId" binding:"required"`
	MemberID      string       `json:"memberId"`
	PaymentMethod string       `json:"paymentMethod"`
	Items         []IntakeItem `json:"items" binding:"required,min=1,dive"`

	// Status is the initial lifecycle state. Empty means PENDING; HELD parks
	// the order until the cashier recalls it.
	Status string `json:"status" binding:"omitempty,oneof=PENDING HELD"`
}

type IntakeItem struct {
	ProductID string   `json:"productId" binding:"required"`
	Quantity  int      `json:"quantity" binding:"required,gt=0"`
	OptionIDs []string `json:"optionIds"`
	Notes     string   `json:"notes"`
}

// FinalizeRequest settles payment on a pending order.
type FinalizeRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required,oneof=CASH CARD MOBILE"`
	MemberID      string `json:"memberId"`
	PointsUsed    int64  `json:"pointsUsed" binding:"gte=0"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderItemResponse struct {
	ProductID   string   `json:"productId"`
	ProductName string   `json:"productName"`
	UnitPrice   int64    `json:"unitPrice"`
	Quantity    int      `json:"quantity"`
	Notes       string   `json:"notes,omitempty"`
	OptionIDs   []string `json:"optionIds,omitempty"`
}

type OrderResponse struct {
	OrderID        string              `json:"orderId"`
	OrderNumber    string              `json:"orderNumber"`
	StoreID        string              `json:"storeId"`
	Status         string              `json:"status"`
	TotalAmount    int64               `json:"totalAmount"`
	DiscountAmount int64               `json:"discountAmount"`
	FinalAmount    int64               `json:"finalAmount"`
	PointsUsed     int64               `json:"pointsUsed,omitempty"`
	PaymentMethod  string              `json:"paymentMethod,omitempty"`
	Items          []OrderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func orderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		OrderID:        o.ID.String(),
		OrderNumber:    o.OrderNumber,
		StoreID:        o.StoreID,
		Status:         string(o.Status),
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		PointsUsed:     o.PointsUsed,
		PaymentMethod:  o.PaymentMethod,
		CreatedAt:      o.CreatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			OptionIDs:   item.OptionIDs,
		})
	}
	return resp
}

// TicketResponse is the 202 body of the async intake endpoint and the polling
// view of a ticket's settlement.
type TicketResponse struct {
	TicketID     string `json:"ticketId"`
	Status       string `json:"status"`
	OrderID      string `json:"orderId,omitempty"`
	RejectReason string `json:"rejectReason,omitempty"`
}

func ticketResponse(t *domain.OrderTicket) TicketResponse {
	resp := TicketResponse{
		TicketID:     t.ID.String(),
		Status:       string(t.Status),
		RejectReason: t.RejectReason,
	}
	if t.ResultOrderID != uuid.Nil {
		resp.OrderID = t.ResultOrderID.String()
	}
	return resp
}

type AuditLine struct {
	ItemID  string          `json:"itemId" binding:"required"`
	Counted decimal.Decimal `json:"counted"`
}

type InventoryLevelResponse struct {
	StoreID   string          `json:"storeId"`
	ItemID    string          `json:"itemId"`
	Available decimal.Decimal `json:"available"`
	Unit      string          `json:"unit,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func levelResponse(level domain.InventoryLevel) InventoryLevelResponse {
	return InventoryLevelResponse{
		StoreID:   level.StoreID,
		ItemID:    level.ItemID,
		Available: level.Available,
		Unit:      level.Unit,
		UpdatedAt: level.UpdatedAt,
	}
}
