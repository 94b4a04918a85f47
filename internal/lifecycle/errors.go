package lifecycle

import (
	"fmt"

	"github.com/example/peekop/internal/models"
)

// OrderNotFoundError is returned for operations against an unknown order id.
type OrderNotFoundError struct{ OrderID int64 }

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// InvalidProviderError is returned when a direct order names an unknown or
// offline provider.
type InvalidProviderError struct{ ProviderID int64 }

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("provider %d unknown or unavailable", e.ProviderID)
}

// OrderNotBiddableError is returned when an offer-accepting operation hits an
// order outside the bidding state.
type OrderNotBiddableError struct {
	OrderID int64
	State   models.OrderState
}

func (e *OrderNotBiddableError) Error() string {
	return fmt.Sprintf("order %d is %s, not bidding", e.OrderID, e.State)
}

// OfferNotFoundError is returned when an offer id does not belong to the order.
type OfferNotFoundError struct {
	OrderID int64
	OfferID int64
}

func (e *OfferNotFoundError) Error() string {
	return fmt.Sprintf("offer %d not found under order %d", e.OfferID, e.OrderID)
}

// OrderNotActiveError is returned when completion is attempted on an order
// that is not accepted.
type OrderNotActiveError struct {
	OrderID int64
	State   models.OrderState
}

func (e *OrderNotActiveError) Error() string {
	return fmt.Sprintf("order %d is %s, not accepted", e.OrderID, e.State)
}

// OrderNotCancellableError is returned when cancellation is attempted past the
// point of acceptance.
type OrderNotCancellableError struct {
	OrderID int64
	State   models.OrderState
}

func (e *OrderNotCancellableError) Error() string {
	return fmt.Sprintf("order %d is %s and can no longer be cancelled", e.OrderID, e.State)
}

// InvalidBidAmountError is returned for non-positive or below-floor amounts on
// the user-facing offer path.
type InvalidBidAmountError struct {
	Amount int64
	Floor  int64
}

func (e *InvalidBidAmountError) Error() string {
	return fmt.Sprintf("bid amount %d below floor %d", e.Amount, e.Floor)
}

// InvalidOrderError is returned when creation parameters fail validation.
type InvalidOrderError struct{ Reason string }

func (e *InvalidOrderError) Error() string { return "invalid order: " + e.Reason }
