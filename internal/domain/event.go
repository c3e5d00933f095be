package domain

type EventAction string

const (
	EventNewOrder         EventAction = "NEW_ORDER"
	EventMoveToPickup     EventAction = "MOVE_TO_PICKUP"
	EventCancelOrder      EventAction = "CANCEL_ORDER"
	EventRemoveFromPickup EventAction = "REMOVE_FROM_PICKUP"
	EventInventoryChanged EventAction = "INVENTORY_CHANGED"
)

// Event is what downstream consumers (kitchen display, pickup boards) see on
// a store's channel.
type Event struct {
	Action  EventAction `json:"action"`
	Payload any         `json:"payload"`
}

// TransitionEvent maps an order status to the event its transition emits.
// Statuses without a board-visible effect map to "".
func TransitionEvent(to OrderStatus) EventAction {
	switch to {
	case OrderPreparing:
		return EventNewOrder
	case OrderReadyForPickup:
		return EventMoveToPickup
	case OrderClosed:
		return EventRemoveFromPickup
	case OrderCancelled:
		return EventCancelOrder
	default:
		return ""
	}
}
