package lifecycle

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/example/peekop/internal/bidsource"
	"github.com/example/peekop/internal/directory"
	"github.com/example/peekop/internal/dispatch"
	"github.com/example/peekop/internal/models"
	"github.com/example/peekop/internal/observability"
	"github.com/example/peekop/internal/payments"
	"github.com/example/peekop/internal/pricing"
	"github.com/example/peekop/internal/session"
	"github.com/example/peekop/internal/storage"
)

// Service owns the canonical state of all orders and their offers for the
// session. All mutation happens under one mutex; bid-feed callbacks
// re-validate order state at delivery time, so late fires against moved-on
// orders are no-ops.
type Service struct {
	Directory directory.Directory
	Quoter    pricing.Quoter
	Bids      bidsource.BidSource // optional synthetic/remote feed
	Store     storage.OrderStore
	Notify    dispatch.Notifier // optional
	Escrow    payments.Escrow   // optional
	Profiles  *session.Profiles // optional
	Logger    *slog.Logger

	BidFloor     int64
	PointsPerRun int64

	mu       sync.Mutex
	seq      int64
	offerSeq int64
	orders   map[int64]*models.Order
	history  []*models.Order
	holds    map[int64]string // orderID -> escrow hold id
}

func NewService(dir directory.Directory, quoter pricing.Quoter, store storage.OrderStore, logger *slog.Logger) *Service {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Directory:    dir,
		Quoter:       quoter,
		Store:        store,
		Logger:       logger,
		BidFloor:     100,
		PointsPerRun: 25,
		orders:       make(map[int64]*models.Order),
		holds:        make(map[int64]string),
	}
}

// CreateRequest carries the form-submitted order parameters.
type CreateRequest struct {
	Kind            models.OrderKind
	Mode            models.FulfillMode
	RequesterID     int64
	Pickup          models.Coord
	Dropoff         *models.Coord
	Note            string
	Package         models.PackageDetails
	Urgency         models.Urgency
	PassengerCount  int
	SpecialRequests int
	DirectProvider  int64
}

// CreateOrder validates the request and registers a new order. Marketplace
// orders are promoted to bidding immediately (there is no dispatch queue to
// wait in) and the bid feed is opened for them.
func (s *Service) CreateOrder(req CreateRequest) (*models.Order, error) {
	if !models.ValidOrderKind(req.Kind) {
		return nil, &InvalidOrderError{Reason: "unknown kind " + string(req.Kind)}
	}
	if !models.ValidFulfillMode(req.Mode) {
		return nil, &InvalidOrderError{Reason: "unknown mode " + string(req.Mode)}
	}
	if req.Pickup.IsZero() {
		return nil, &InvalidOrderError{Reason: "pickup location required"}
	}
	if req.Mode == models.ModeDirect {
		p, ok := s.Directory.Get(req.DirectProvider)
		if !ok || !p.Online {
			return nil, &InvalidProviderError{ProviderID: req.DirectProvider}
		}
	}

	s.mu.Lock()
	s.seq++
	o := &models.Order{
		ID:              s.seq,
		Kind:            req.Kind,
		Mode:            req.Mode,
		State:           models.StatePending,
		RequesterID:     req.RequesterID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Note:            req.Note,
		Package:         req.Package,
		Urgency:         req.Urgency,
		PassengerCount:  req.PassengerCount,
		SpecialRequests: req.SpecialRequests,
		DirectProvider:  req.DirectProvider,
		CreatedAt:       time.Now(),
	}
	if o.Mode == models.ModeMarketplace {
		o.State = models.StateBidding
	}
	s.orders[o.ID] = o
	snap := o.Clone()
	s.mu.Unlock()

	_ = s.Store.SaveOrder(snap)
	observability.OrdersCreated.WithLabelValues(string(o.Kind), string(o.Mode)).Inc()
	if snap.State == models.StateBidding && s.Bids != nil {
		s.Bids.Open(snap, s.feedSink)
	}
	s.Logger.Info("order created", "order_id", snap.ID, "kind", snap.Kind, "mode", snap.Mode, "state", snap.State)
	return snap, nil
}

// PlaceOffer appends a provider's proposal to a bidding order. The amount is
// held to the configured floor; an order that has left bidding swallows the
// offer without error, mirroring a fire-and-forget feed.
func (s *Service) PlaceOffer(orderID int64, provider models.ProviderSnapshot, amount int64, etaMinutes int, note string) (*models.Offer, error) {
	if amount <= 0 || amount < s.BidFloor {
		return nil, &InvalidBidAmountError{Amount: amount, Floor: s.BidFloor}
	}
	if etaMinutes <= 0 {
		return nil, &InvalidOrderError{Reason: "eta minutes must be positive"}
	}
	return s.appendOffer(orderID, provider, amount, etaMinutes, note), nil
}

// feedSink is the bid feed's delivery point. Feed offers bypass the floor
// (synthetic amounts are unconstrained positive values) but are otherwise
// identical to user-supplied ones.
func (s *Service) feedSink(orderID int64, provider models.ProviderSnapshot, amount int64, etaMinutes int, note string) {
	if amount <= 0 || etaMinutes <= 0 {
		return
	}
	s.appendOffer(orderID, provider, amount, etaMinutes, note)
}

func (s *Service) appendOffer(orderID int64, provider models.ProviderSnapshot, amount int64, etaMinutes int, note string) *models.Offer {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok || o.State != models.StateBidding {
		s.mu.Unlock()
		observability.OffersDropped.Inc()
		s.Logger.Debug("offer dropped", "order_id", orderID, "provider_id", provider.ID)
		return nil
	}
	s.offerSeq++
	of := &models.Offer{
		ID:         s.offerSeq,
		OrderID:    orderID,
		Provider:   provider,
		Amount:     amount,
		ETAMinutes: etaMinutes,
		Note:       note,
		CreatedAt:  time.Now(),
	}
	o.Offers = append(o.Offers, of)
	requester := o.RequesterID
	snap := *of
	s.mu.Unlock()

	_ = s.Store.SaveOffer(&snap)
	observability.OffersPlaced.Inc()
	s.notify(requester, dispatch.Event{Type: dispatch.EventOfferPlaced, OrderID: orderID, Offer: &snap})
	return &snap
}

// AcceptOffer transitions a bidding order to accepted, assigning the offer's
// provider and freezing the fare at the offer's amount. The remaining offers
// stay on the order for history display but are no longer actionable.
func (s *Service) AcceptOffer(orderID, offerID int64) (*models.Order, error) {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if o.State != models.StateBidding {
		state := o.State
		s.mu.Unlock()
		return nil, &OrderNotBiddableError{OrderID: orderID, State: state}
	}
	var accepted *models.Offer
	for _, of := range o.Offers {
		if of.ID == offerID {
			accepted = of
			break
		}
	}
	if accepted == nil {
		s.mu.Unlock()
		return nil, &OfferNotFoundError{OrderID: orderID, OfferID: offerID}
	}
	prov := accepted.Provider
	o.State = models.StateAccepted
	o.Assigned = &prov
	o.FinalFare = accepted.Amount
	snap := o.Clone()
	s.mu.Unlock()

	s.closeBids(orderID)
	_ = s.Store.UpdateOrder(snap)
	observability.OrdersAccepted.Inc()
	s.holdFare(snap)
	s.notify(snap.RequesterID, dispatch.Event{Type: dispatch.EventOrderAccepted, OrderID: orderID, Order: snap})
	s.Logger.Info("offer accepted", "order_id", orderID, "offer_id", offerID, "provider_id", prov.ID, "fare", snap.FinalFare)
	return snap, nil
}

// AcceptDirect confirms a direct order against its pre-chosen provider. The
// fare comes from the pricing strategy since no competitive amount exists.
func (s *Service) AcceptDirect(orderID, providerID int64) (*models.Order, error) {
	p, ok := s.Directory.Get(providerID)
	if !ok || !p.Online {
		return nil, &InvalidProviderError{ProviderID: providerID}
	}

	s.mu.Lock()
	o, exists := s.orders[orderID]
	if !exists {
		s.mu.Unlock()
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if o.Mode != models.ModeDirect {
		s.mu.Unlock()
		return nil, &InvalidOrderError{Reason: "order is not in direct mode"}
	}
	if o.State != models.StatePending {
		state := o.State
		s.mu.Unlock()
		return nil, &InvalidOrderError{Reason: "direct order is " + string(state) + ", not pending"}
	}
	if o.DirectProvider != providerID {
		s.mu.Unlock()
		return nil, &InvalidProviderError{ProviderID: providerID}
	}
	quote := s.Quoter.Quote(o)
	prov := p.Snapshot()
	o.State = models.StateAccepted
	o.Assigned = &prov
	o.FinalFare = quote.Fare
	snap := o.Clone()
	s.mu.Unlock()

	_ = s.Store.UpdateOrder(snap)
	observability.OrdersAccepted.Inc()
	s.holdFare(snap)
	s.notify(snap.RequesterID, dispatch.Event{Type: dispatch.EventOrderAccepted, OrderID: orderID, Order: snap})
	s.Logger.Info("direct order accepted", "order_id", orderID, "provider_id", providerID, "fare", snap.FinalFare)
	return snap, nil
}

// CompleteOrder transitions an accepted order to completed, stamps the
// completion time and credits the requester's loyalty points once.
func (s *Service) CompleteOrder(orderID int64) (*models.Order, error) {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if o.State != models.StateAccepted {
		state := o.State
		s.mu.Unlock()
		return nil, &OrderNotActiveError{OrderID: orderID, State: state}
	}
	now := time.Now()
	o.State = models.StateCompleted
	o.CompletedAt = &now
	snap := o.Clone()
	s.history = append(s.history, snap)
	holdID := s.holds[orderID]
	delete(s.holds, orderID)
	s.mu.Unlock()

	_ = s.Store.UpdateOrder(snap)
	observability.OrdersCompleted.Inc()
	if s.Escrow != nil && holdID != "" {
		if err := s.Escrow.Capture(context.Background(), holdID); err != nil {
			s.Logger.Warn("escrow capture failed", "order_id", orderID, "error", err)
		}
	}
	if s.Profiles != nil {
		if err := s.Profiles.CreditCompletion(context.Background(), snap.RequesterID, s.PointsPerRun); err != nil {
			s.Logger.Warn("points credit failed", "user_id", snap.RequesterID, "error", err)
		}
	}
	s.notify(snap.RequesterID, dispatch.Event{Type: dispatch.EventOrderCompleted, OrderID: orderID, Order: snap})
	s.Logger.Info("order completed", "order_id", orderID, "fare", snap.FinalFare)
	return snap, nil
}

// CancelOrder moves a pending or bidding order to the cancelled terminal
// state and cancels any scheduled bid-feed work for it.
func (s *Service) CancelOrder(orderID int64) (*models.Order, error) {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if o.State != models.StatePending && o.State != models.StateBidding {
		state := o.State
		s.mu.Unlock()
		return nil, &OrderNotCancellableError{OrderID: orderID, State: state}
	}
	o.State = models.StateCancelled
	snap := o.Clone()
	holdID := s.holds[orderID]
	delete(s.holds, orderID)
	s.mu.Unlock()

	s.closeBids(orderID)
	_ = s.Store.UpdateOrder(snap)
	observability.OrdersCancelled.Inc()
	if s.Escrow != nil && holdID != "" {
		if err := s.Escrow.Release(context.Background(), holdID); err != nil {
			s.Logger.Warn("escrow release failed", "order_id", orderID, "error", err)
		}
	}
	s.notify(snap.RequesterID, dispatch.Event{Type: dispatch.EventOrderCancelled, OrderID: orderID, Order: snap})
	s.Logger.Info("order cancelled", "order_id", orderID)
	return snap, nil
}

// GetOrder returns a snapshot of one order.
func (s *Service) GetOrder(orderID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	return o.Clone(), nil
}

// ListOrdersByState returns snapshots of all orders in the given state,
// oldest first.
func (s *Service) ListOrdersByState(state models.OrderState) []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for id := int64(1); id <= s.seq; id++ {
		if o, ok := s.orders[id]; ok && o.State == state {
			out = append(out, o.Clone())
		}
	}
	return out
}

// ListOffers returns the order's offers in arrival order.
func (s *Service) ListOffers(orderID int64) ([]*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	out := make([]*models.Offer, len(o.Offers))
	for i, of := range o.Offers {
		cp := *of
		out[i] = &cp
	}
	return out, nil
}

// History returns completed orders, oldest first. A zero requester id returns
// everything. History lives for the session only.
func (s *Service) History(requesterID int64) []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.history {
		if requesterID != 0 && o.RequesterID != requesterID {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}

func (s *Service) closeBids(orderID int64) {
	if s.Bids != nil {
		s.Bids.Close(orderID)
	}
}

func (s *Service) holdFare(o *models.Order) {
	if s.Escrow == nil || o.FinalFare <= 0 {
		return
	}
	holdID, err := s.Escrow.Hold(context.Background(), o.FinalFare, "", strconv.FormatInt(o.RequesterID, 10))
	if err != nil {
		s.Logger.Warn("escrow hold failed", "order_id", o.ID, "error", err)
		return
	}
	if holdID == "" {
		return
	}
	s.mu.Lock()
	s.holds[o.ID] = holdID
	s.mu.Unlock()
}

func (s *Service) notify(userID int64, ev dispatch.Event) {
	if s.Notify == nil {
		return
	}
	_ = s.Notify.Notify(userID, ev) // best-effort
}
