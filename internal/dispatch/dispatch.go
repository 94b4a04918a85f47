package dispatch

import (
	"log/slog"

	"github.com/example/peekop/internal/models"
)

// Event is what the requester's client receives over the event stream.
type Event struct {
	Type    string        `json:"type"` // offer_placed, order_accepted, order_completed, order_cancelled
	OrderID int64         `json:"order_id"`
	Order   *models.Order `json:"order,omitempty"`
	Offer   *models.Offer `json:"offer,omitempty"`
}

const (
	EventOfferPlaced    = "offer_placed"
	EventOrderAccepted  = "order_accepted"
	EventOrderCompleted = "order_completed"
	EventOrderCancelled = "order_cancelled"
)

// Notifier delivers lifecycle events to a requester. Delivery is
// best-effort; the lifecycle never blocks on it.
type Notifier interface {
	Notify(userID int64, ev Event) error
}

// LogNotifier just records events; used in tests and when no transport is up.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Notify(userID int64, ev Event) error {
	if l.Logger != nil {
		l.Logger.Debug("event", "user_id", userID, "type", ev.Type, "order_id", ev.OrderID)
	}
	return nil
}
