package domain

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrDuplicateInFlight      = errors.New("duplicate request in flight")
	ErrOutOfStock             = errors.New("insufficient stock")
	ErrItemNotFound           = errors.New("inventory item not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrOptionNotFound         = errors.New("product option not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrStoreNotFound          = errors.New("store not found")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrOrderNotPending        = errors.New("order is not in pending state")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInsufficientPoints     = errors.New("insufficient member points")
	ErrReservationState       = errors.New("reservation is not in a reservable state")
)
