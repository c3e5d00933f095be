// Package service runs the intake pipelines. The order service owns the
// synchronous path (validate, price, reserve, charge, persist, commit); the
// online-order service owns the asynchronous ticket path.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/catalog"
	"beverage-order-intake/internal/clock"
	"beverage-order-intake/internal/domain"
	"beverage-order-intake/internal/events"
	"beverage-order-intake/internal/idempotency"
	"beverage-order-intake/internal/infrastructure/payment"
	"beverage-order-intake/internal/inventory"
	"beverage-order-intake/internal/member"
	"beverage-order-intake/internal/repo"
)

type OrderService interface {
	// PosCheckout runs the full pipeline including the inline charge. The
	// idempotency key is required; a completed duplicate replays the original
	// response, an in-flight duplicate fails with ErrDuplicateInFlight.
	PosCheckout(ctx context.Context, principal, key string, req IntakeRequest) (OrderResponse, error)

	// Create is the generic intake path: same pipeline, payment deferred to
	// FinalizePayment. The idempotency key is optional here; without one the
	// submission proceeds ungated.
	Create(ctx context.Context, principal, key string, req IntakeRequest) (OrderResponse, error)

	// Intake runs the pipeline without the idempotency gate. Create and
	// PosCheckout call it after admission; the background worker calls it
	// for each ticket (the ticket's key was settled at enqueue time).
	Intake(ctx context.Context, staffID string, req IntakeRequest, chargeKey string) (*domain.Order, error)

	// FinalizePayment settles a PENDING order: member points discount,
	// payment method, charge, then PENDING -> PREPARING.
	FinalizePayment(ctx context.Context, orderID uuid.UUID, req FinalizeRequest) (OrderResponse, error)

	// UpdateStatus moves the order through the lifecycle state machine and
	// publishes the matching board event. Cancelling credits reserved or
	// committed inventory back.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (OrderResponse, error)

	// Find returns one order.
	Find(ctx context.Context, orderID uuid.UUID) (OrderResponse, error)
}

type orderService struct {
	guard     *idempotency.Guard
	ledger    inventory.Ledger
	catalog   catalog.Catalog
	orders    repo.OrderRepo
	gateway   payment.Gateway
	points    member.PointService
	publisher events.Publisher
	clock     clock.Clock
	log       *logrus.Entry
}

func NewOrderService(
	guard *idempotency.Guard,
	ledger inventory.Ledger,
	cat catalog.Catalog,
	orders repo.OrderRepo,
	gateway payment.Gateway,
	points member.PointService,
	publisher events.Publisher,
	clk clock.Clock,
	log *logrus.Entry,
) OrderService {
	return &orderService{
		guard:     guard,
		ledger:    ledger,
		catalog:   cat,
		orders:    orders,
		gateway:   gateway,
		points:    points,
		publisher: publisher,
		clock:     clk,
		log:       log,
	}
}

const (
	endpointPosCheckout = "pos-checkout"
	endpointOrders      = "orders"
)

func (s *orderService) PosCheckout(ctx context.Context, principal, key string, req IntakeRequest) (OrderResponse, error) {
	return s.guarded(ctx, endpointPosCheckout, principal, key, req, true)
}

func (s *orderService) Create(ctx context.Context, principal, key string, req IntakeRequest) (OrderResponse, error) {
	if key == "" {
		order, err := s.Intake(ctx, principal, req, "")
		if err != nil {
			return OrderResponse{}, err
		}
		return orderResponse(order), nil
	}
	return s.guarded(ctx, endpointOrders, principal, key, req, false)
}

// guarded wraps the pipeline in the idempotency lifecycle: admit, run,
// complete with the response snapshot, or fail so the key becomes retryable.
func (s *orderService) guarded(ctx context.Context, endpoint, principal, key string, req IntakeRequest, charge bool) (OrderResponse, error) {
	dec, err := s.guard.Admit(ctx, endpoint, principal, key)
	if err != nil {
		return OrderResponse{}, err
	}
	switch dec.Outcome {
	case idempotency.ReplayResult:
		var resp OrderResponse
		if err := json.Unmarshal(dec.Snapshot, &resp); err != nil {
			return OrderResponse{}, fmt.Errorf("decode replay snapshot: %w", err)
		}
		s.log.WithFields(logrus.Fields{"key": key, "order_id": resp.OrderID}).
			Info("replayed completed submission")
		return resp, nil
	case idempotency.RejectDuplicate:
		return OrderResponse{}, domain.ErrDuplicateInFlight
	}

	chargeKey := ""
	if charge {
		chargeKey = endpoint + "|" + principal + "|" + key
	}
	order, err := s.Intake(ctx, principal, req, chargeKey)
	if err != nil {
		if failErr := s.guard.Fail(ctx, endpoint, principal, key); failErr != nil {
			s.log.WithError(failErr).WithField("key", key).Warn("could not release idempotency key")
		}
		return OrderResponse{}, err
	}

	resp := orderResponse(order)
	snapshot, err := json.Marshal(resp)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.guard.Complete(ctx, endpoint, principal, key, snapshot); err != nil {
		// The order stands; only replay of this key is degraded.
		s.log.WithError(err).WithField("order_id", order.ID).
			Error("order persisted but snapshot not recorded")
	}
	return resp, nil
}

func (s *orderService) Intake(ctx context.Context, staffID string, req IntakeRequest, chargeKey string) (*domain.Order, error) {
	items, lines, total, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, req.StoreID, lines)
	if err != nil {
		return nil, err
	}

	if chargeKey != "" {
		if err := s.gateway.Charge(ctx, total, chargeKey); err != nil {
			s.release(ctx, res.ID)
			return nil, fmt.Errorf("charge %d: %w", total, err)
		}
	}

	now := s.clock.Now()
	number, err := s.orders.NextOrderNumber(ctx, req.StoreID, now)
	if err != nil {
		s.release(ctx, res.ID)
		return nil, fmt.Errorf("order number: %w", err)
	}

	status := domain.OrderPending
	if req.Status != "" {
		status = domain.OrderStatus(req.Status)
	}
	order := &domain.Order{
		ID:            uuid.New(),
		StoreID:       req.StoreID,
		StaffID:       staffID,
		OrderNumber:   number,
		Status:        status,
		Items:         items,
		TotalAmount:   total,
		FinalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		MemberID:      req.MemberID,
		ReservationID: res.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.release(ctx, res.ID)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.ledger.Commit(ctx, res.ID); err != nil {
		// The sweep got here first: the hold expired and stock went back, so
		// the persisted order cannot stand.
		if cancelErr := s.orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderCancelled, s.clock.Now()); cancelErr != nil {
			s.log.WithError(cancelErr).WithField("order_id", order.ID).Error("could not cancel order after commit failure")
		}
		return nil, fmt.Errorf("commit reservation: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"store_id":     order.StoreID,
		"total":        order.TotalAmount,
	}).Info("order accepted")

	// Held orders reach the kitchen board when the cashier recalls them.
	if order.Status != domain.OrderHeld {
		s.publisher.Publish(ctx, order.StoreID, domain.Event{
			Action:  domain.EventNewOrder,
			Payload: orderResponse(order),
		})
	}
	return order, nil
}

func (s *orderService) release(ctx context.Context, reservationID uuid.UUID) {
	if err := s.ledger.Release(ctx, reservationID); err != nil {
		s.log.WithError(err).WithField("reservation_id", reservationID).
			Error("could not release reservation during unwind")
	}
}

// price resolves products and options, snapshots names and unit prices, and
// folds item quantities into ledger reservation lines.
func (s *orderService) price(ctx context.Context, req IntakeRequest) ([]domain.OrderItem, []domain.ReservationLine, int64, error) {
	if req.StoreID == "" {
		return nil, nil, 0, fmt.Errorf("%w: storeId is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: order has no items", domain.ErrValidation)
	}
	switch req.Status {
	case "", string(domain.OrderPending), string(domain.OrderHeld):
	default:
		return nil, nil, 0, fmt.Errorf("%w: orders cannot start as %s", domain.ErrValidation, req.Status)
	}

	var (
		items       []domain.OrderItem
		total       int64
		consumption = make(map[string]decimal.Decimal)
	)
	for _, in := range req.Items {
		if in.Quantity <= 0 {
			return nil, nil, 0, fmt.Errorf("%w: quantity must be positive for product %s", domain.ErrValidation, in.ProductID)
		}
		product, err := s.catalog.Product(ctx, in.ProductID)
		if err != nil {
			return nil, nil, 0, err
		}

		unitPrice := product.BasePrice
		for _, optID := range in.OptionIDs {
			opt, err := s.catalog.Option(ctx, in.ProductID, optID)
			if err != nil {
				return nil, nil, 0, err
			}
			unitPrice += opt.PriceAdjustment
		}

		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   unitPrice,
			Quantity:    in.Quantity,
			Notes:       in.Notes,
			OptionIDs:   in.OptionIDs,
		})
		total += unitPrice * int64(in.Quantity)

		qty := product.Consumption.Mul(decimal.NewFromInt(int64(in.Quantity)))
		consumption[product.InventoryItemID] = consumption[product.InventoryItemID].Add(qty)
	}

	lines := make([]domain.ReservationLine, 0, len(consumption))
	for itemID, qty := range consumption {
		lines = append(lines, domain.ReservationLine{ItemID: itemID, Quantity: qty})
	}
	return items, lines, total, nil
}

func (s *orderService) FinalizePayment(ctx context.Context, orderID uuid.UUID, req FinalizeRequest) (OrderResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	if order == nil {
		return OrderResponse{}, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderPending {
		return OrderResponse{}, fmt.Errorf("%w: order is %s", domain.ErrOrderNotPending, order.Status)
	}

	var discount int64
	memberID := req.MemberID
	if memberID == "" {
		memberID = order.MemberID
	}
	if req.PointsUsed > 0 {
		if memberID == "" {
			return OrderResponse{}, fmt.Errorf("%w: points require a member", domain.ErrValidation)
		}
		discount = member.DiscountFor(req.PointsUsed, order.TotalAmount)
		if err := s.points.Use(ctx, memberID, discount); err != nil {
			return OrderResponse{}, err
		}
	}

	refundPoints := func() {
		if discount == 0 {
			return
		}
		if err := s.points.Refund(ctx, memberID, discount); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"order_id":  orderID,
				"member_id": memberID,
			}).Error("could not refund points during unwind")
		}
	}

	final := order.TotalAmount - discount
	if err := s.gateway.Charge(ctx, final, "finalize|"+orderID.String()); err != nil {
		refundPoints()
		return OrderResponse{}, fmt.Errorf("charge %d: %w", final, err)
	}

	now := s.clock.Now()
	// The state-match transition is the gate against a concurrent finalize.
	// Losing the race refunds the loser's points; the winner's own deduction
	// stands.
	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderPending, domain.OrderPreparing, now); err != nil {
		refundPoints()
		return OrderResponse{}, err
	}

	order.Status = domain.OrderPreparing
	order.DiscountAmount = discount
	order.FinalAmount = final
	order.PointsUsed = discount
	order.PaymentMethod = req.PaymentMethod
	order.MemberID = memberID
	order.UpdatedAt = now
	if err := s.orders.FinalizePayment(ctx, order); err != nil {
		return OrderResponse{}, err
	}

	s.publisher.Publish(ctx, order.StoreID, domain.Event{
		Action:  domain.EventNewOrder,
		Payload: orderResponse(order),
	})
	return orderResponse(order), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (OrderResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	if order == nil {
		return OrderResponse{}, domain.ErrOrderNotFound
	}
	if !domain.CanTransition(order.Status, to) {
		return OrderResponse{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, to)
	}

	now := s.clock.Now()
	if err := s.orders.UpdateStatus(ctx, orderID, order.Status, to, now); err != nil {
		return OrderResponse{}, err
	}
	order.Status = to
	order.UpdatedAt = now

	if to == domain.OrderCancelled && order.ReservationID != uuid.Nil {
		// The reservation may still be RESERVED (unpaid order) or already
		// COMMITTED; either way the stock comes back.
		if err := s.ledger.Release(ctx, order.ReservationID); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Error("could not release reservation on cancel")
		}
		if err := s.ledger.Reinstate(ctx, order.ReservationID); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Error("could not reinstate inventory on cancel")
		}
	}

	if action := domain.TransitionEvent(to); action != "" {
		s.publisher.Publish(ctx, order.StoreID, domain.Event{
			Action:  action,
			Payload: orderResponse(order),
		})
	}
	return orderResponse(order), nil
}

func (s *orderService) Find(ctx context.Context, orderID uuid.UUID) (OrderResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	if order == nil {
		return OrderResponse{}, domain.ErrOrderNotFound
	}
	return orderResponse(order), nil
}
