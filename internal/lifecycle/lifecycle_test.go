package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/peekop/internal/bidsource"
	"github.com/example/peekop/internal/directory"
	"github.com/example/peekop/internal/dispatch"
	"github.com/example/peekop/internal/models"
	"github.com/example/peekop/internal/pricing"
	"github.com/example/peekop/internal/session"
)

// manualFeed implements bidsource.BidSource without timers so tests control
// exactly when offers arrive.
type manualFeed struct {
	mu     sync.Mutex
	sinks  map[int64]bidsource.Sink
	closed []int64
}

func newManualFeed() *manualFeed { return &manualFeed{sinks: make(map[int64]bidsource.Sink)} }

func (f *manualFeed) Open(o *models.Order, sink bidsource.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[o.ID] = sink
}

func (f *manualFeed) Close(orderID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, orderID)
}

func (f *manualFeed) deliver(orderID int64, provider models.ProviderSnapshot, amount int64, etaMin int) {
	f.mu.Lock()
	sink := f.sinks[orderID]
	f.mu.Unlock()
	if sink != nil {
		sink(orderID, provider, amount, etaMin, "")
	}
}

func (f *manualFeed) closedCount(orderID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.closed {
		if id == orderID {
			n++
		}
	}
	return n
}

func newTestService() (*Service, *manualFeed, *directory.Index) {
	dir := directory.NewIndex()
	dir.Upsert(models.Provider{ID: 1, Name: "Tunde", Rating: 4.7, Loc: models.Coord{Lat: 6.501, Lng: 3.4}, Online: true})
	dir.Upsert(models.Provider{ID: 2, Name: "Amaka", Rating: 4.9, Loc: models.Coord{Lat: 6.502, Lng: 3.4}, Online: true})
	dir.Upsert(models.Provider{ID: 3, Name: "Segun", Rating: 4.2, Loc: models.Coord{Lat: 6.503, Lng: 3.4}, Online: false})

	svc := NewService(dir, pricing.NewStandardQuoter(pricing.DefaultTariff()), nil, slog.Default())
	feed := newManualFeed()
	svc.Bids = feed
	return svc, feed, dir
}

func marketplaceReq() CreateRequest {
	drop := models.Coord{Lat: 6.52, Lng: 3.41}
	return CreateRequest{
		Kind:        models.KindPickup,
		Mode:        models.ModeMarketplace,
		RequesterID: 10,
		Pickup:      models.Coord{Lat: 6.5, Lng: 3.4},
		Dropoff:     &drop,
	}
}

func TestMarketplaceFullLifecycle(t *testing.T) {
	svc, _, _ := newTestService()

	o, err := svc.CreateOrder(marketplaceReq())
	if err != nil {
		t.Fatal(err)
	}
	if o.State != models.StateBidding {
		t.Fatalf("marketplace order should open in bidding, got %s", o.State)
	}
	if len(o.Offers) != 0 {
		t.Fatalf("expected empty offer list, got %d", len(o.Offers))
	}

	providerX := models.ProviderSnapshot{ID: 2, Name: "Amaka", Rating: 4.9}
	of, err := svc.PlaceOffer(o.ID, providerX, 1200, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if of == nil {
		t.Fatal("offer unexpectedly dropped")
	}
	offers, err := svc.ListOffers(o.ID)
	if err != nil || len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d err=%v", len(offers), err)
	}

	accepted, err := svc.AcceptOffer(o.ID, of.ID)
	if err != nil {
		t.Fatal(err)
	}
	if accepted.State != models.StateAccepted {
		t.Fatalf("expected accepted, got %s", accepted.State)
	}
	if accepted.Assigned == nil || accepted.Assigned.ID != 2 {
		t.Fatalf("expected provider 2 assigned, got %+v", accepted.Assigned)
	}
	if accepted.FinalFare != 1200 {
		t.Fatalf("expected final fare 1200, got %d", accepted.FinalFare)
	}

	done, err := svc.CompleteOrder(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s", done.State)
	}
	if done.CompletedAt == nil {
		t.Fatal("completion time not stamped")
	}
	if h := svc.History(10); len(h) != 1 || h[0].ID != o.ID {
		t.Fatalf("expected order in history, got %v", h)
	}
}

func TestDirectOrderUnavailableProvider(t *testing.T) {
	svc, _, _ := newTestService()
	req := CreateRequest{
		Kind:           models.KindErrand,
		Mode:           models.ModeDirect,
		RequesterID:    10,
		Pickup:         models.Coord{Lat: 6.5, Lng: 3.4},
		DirectProvider: 3, // offline
	}
	_, err := svc.CreateOrder(req)
	var ipe *InvalidProviderError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected InvalidProviderError, got %v", err)
	}
}

func TestDirectOrderAcceptAndComplete(t *testing.T) {
	svc, _, _ := newTestService()
	drop := models.Coord{Lat: 6.51, Lng: 3.4}
	o, err := svc.CreateOrder(CreateRequest{
		Kind:           models.KindPickup,
		Mode:           models.ModeDirect,
		RequesterID:    10,
		Pickup:         models.Coord{Lat: 6.5, Lng: 3.4},
		Dropoff:        &drop,
		PassengerCount: 1,
		DirectProvider: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.State != models.StatePending {
		t.Fatalf("direct order should start pending, got %s", o.State)
	}

	accepted, err := svc.AcceptDirect(o.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if accepted.State != models.StateAccepted || accepted.Assigned == nil || accepted.Assigned.ID != 1 {
		t.Fatalf("unexpected accept result: %+v", accepted)
	}
	if accepted.FinalFare <= 0 {
		t.Fatalf("expected quoted fare, got %d", accepted.FinalFare)
	}

	if _, err := svc.CompleteOrder(o.ID); err != nil {
		t.Fatal(err)
	}
}

func TestAcceptDirectWrongProvider(t *testing.T) {
	svc, _, _ := newTestService()
	o, err := svc.CreateOrder(CreateRequest{
		Kind:           models.KindPickup,
		Mode:           models.ModeDirect,
		RequesterID:    10,
		Pickup:         models.Coord{Lat: 6.5, Lng: 3.4},
		DirectProvider: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.AcceptDirect(o.ID, 2)
	var ipe *InvalidProviderError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected InvalidProviderError for mismatched provider, got %v", err)
	}
}

func TestBidFloorRejection(t *testing.T) {
	svc, _, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())

	_, err := svc.PlaceOffer(o.ID, models.ProviderSnapshot{ID: 1}, 0, 10, "")
	var ibe *InvalidBidAmountError
	if !errors.As(err, &ibe) {
		t.Fatalf("expected InvalidBidAmountError for 0, got %v", err)
	}
	if _, err := svc.PlaceOffer(o.ID, models.ProviderSnapshot{ID: 1}, 99, 10, ""); !errors.As(err, &ibe) {
		t.Fatalf("expected InvalidBidAmountError below floor, got %v", err)
	}
	offers, _ := svc.ListOffers(o.ID)
	if len(offers) != 0 {
		t.Fatalf("offer list should be unchanged, got %d", len(offers))
	}
}

func TestLateFeedOfferIsDropped(t *testing.T) {
	svc, feed, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())

	provider := models.ProviderSnapshot{ID: 1, Name: "Tunde"}
	feed.deliver(o.ID, provider, 900, 8)
	offers, _ := svc.ListOffers(o.ID)
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}

	if _, err := svc.AcceptOffer(o.ID, offers[0].ID); err != nil {
		t.Fatal(err)
	}
	if feed.closedCount(o.ID) != 1 {
		t.Fatal("accept should close the bid feed")
	}

	// a late timer fire must not mutate the frozen offer list
	feed.deliver(o.ID, provider, 700, 5)
	offers, _ = svc.ListOffers(o.ID)
	if len(offers) != 1 {
		t.Fatalf("late offer mutated a non-bidding order: %d offers", len(offers))
	}
}

func TestAcceptOfferOnNonBiddingOrder(t *testing.T) {
	svc, feed, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 1}, 900, 8)
	offers, _ := svc.ListOffers(o.ID)
	if _, err := svc.AcceptOffer(o.ID, offers[0].ID); err != nil {
		t.Fatal(err)
	}

	_, err := svc.AcceptOffer(o.ID, offers[0].ID)
	var nbe *OrderNotBiddableError
	if !errors.As(err, &nbe) {
		t.Fatalf("expected OrderNotBiddableError, got %v", err)
	}
	got, _ := svc.GetOrder(o.ID)
	if got.State != models.StateAccepted {
		t.Fatalf("failed accept must not change state, got %s", got.State)
	}
}

func TestAcceptUnknownOffer(t *testing.T) {
	svc, _, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())
	_, err := svc.AcceptOffer(o.ID, 9999)
	var onf *OfferNotFoundError
	if !errors.As(err, &onf) {
		t.Fatalf("expected OfferNotFoundError, got %v", err)
	}
}

func TestDoubleCompleteFailsAndCreditsOnce(t *testing.T) {
	svc, feed, _ := newTestService()
	profiles := session.NewProfiles(session.NewMemoryStore())
	svc.Profiles = profiles

	o, _ := svc.CreateOrder(marketplaceReq())
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 2}, 1500, 12)
	offers, _ := svc.ListOffers(o.ID)
	if _, err := svc.AcceptOffer(o.ID, offers[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteOrder(o.ID); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CompleteOrder(o.ID)
	var nae *OrderNotActiveError
	if !errors.As(err, &nae) {
		t.Fatalf("expected OrderNotActiveError on second complete, got %v", err)
	}

	prof, err := profiles.Get(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if prof.Points != svc.PointsPerRun {
		t.Fatalf("expected single points credit %d, got %d", svc.PointsPerRun, prof.Points)
	}
	if len(svc.History(10)) != 1 {
		t.Fatal("history must record the completion once")
	}
}

func TestCancelBiddingOrder(t *testing.T) {
	svc, feed, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())

	cancelled, err := svc.CancelOrder(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.State != models.StateCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.State)
	}
	if feed.closedCount(o.ID) != 1 {
		t.Fatal("cancel should close the bid feed")
	}

	// terminal: nothing moves it again
	if _, err := svc.CancelOrder(o.ID); err == nil {
		t.Fatal("expected error cancelling a cancelled order")
	}
	var nbe *OrderNotBiddableError
	if _, err := svc.AcceptOffer(o.ID, 1); !errors.As(err, &nbe) {
		t.Fatalf("expected OrderNotBiddableError on cancelled order, got %v", err)
	}
}

func TestCancelAcceptedOrderFails(t *testing.T) {
	svc, feed, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 2}, 1100, 9)
	offers, _ := svc.ListOffers(o.ID)
	if _, err := svc.AcceptOffer(o.ID, offers[0].ID); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CancelOrder(o.ID)
	var nce *OrderNotCancellableError
	if !errors.As(err, &nce) {
		t.Fatalf("expected OrderNotCancellableError, got %v", err)
	}
}

func TestListOrdersByState(t *testing.T) {
	svc, _, _ := newTestService()
	a, _ := svc.CreateOrder(marketplaceReq())
	b, _ := svc.CreateOrder(marketplaceReq())
	if _, err := svc.CancelOrder(b.ID); err != nil {
		t.Fatal(err)
	}

	bidding := svc.ListOrdersByState(models.StateBidding)
	if len(bidding) != 1 || bidding[0].ID != a.ID {
		t.Fatalf("expected only order %d bidding, got %v", a.ID, bidding)
	}
	cancelled := svc.ListOrdersByState(models.StateCancelled)
	if len(cancelled) != 1 || cancelled[0].ID != b.ID {
		t.Fatalf("expected only order %d cancelled, got %v", b.ID, cancelled)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateOrder(CreateRequest{Kind: "teleport", Mode: models.ModeMarketplace, Pickup: models.Coord{Lat: 1, Lng: 1}})
	var ioe *InvalidOrderError
	if !errors.As(err, &ioe) {
		t.Fatalf("expected InvalidOrderError for bad kind, got %v", err)
	}
	_, err = svc.CreateOrder(CreateRequest{Kind: models.KindPickup, Mode: models.ModeMarketplace})
	if !errors.As(err, &ioe) {
		t.Fatalf("expected InvalidOrderError for missing pickup, got %v", err)
	}
}

func TestOffersArriveInDeliveryOrder(t *testing.T) {
	svc, feed, _ := newTestService()
	o, _ := svc.CreateOrder(marketplaceReq())
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 1}, 2000, 10)
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 2}, 800, 6)
	offers, _ := svc.ListOffers(o.ID)
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	// arrival order, no monetary ordering
	if offers[0].Provider.ID != 1 || offers[1].Provider.ID != 2 {
		t.Fatalf("offers out of arrival order: %v", offers)
	}
	if offers[0].ID >= offers[1].ID {
		t.Fatal("offer ids must be monotonically increasing")
	}
}

func TestNotifierReceivesLifecycleEvents(t *testing.T) {
	svc, feed, _ := newTestService()
	var mu sync.Mutex
	var events []string
	svc.Notify = notifierFunc(func(userID int64, ev dispatch.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Type)
		return nil
	})

	o, _ := svc.CreateOrder(marketplaceReq())
	feed.deliver(o.ID, models.ProviderSnapshot{ID: 2}, 1000, 7)
	offers, _ := svc.ListOffers(o.ID)
	_, _ = svc.AcceptOffer(o.ID, offers[0].ID)
	_, _ = svc.CompleteOrder(o.ID)

	mu.Lock()
	defer mu.Unlock()
	want := []string{dispatch.EventOfferPlaced, dispatch.EventOrderAccepted, dispatch.EventOrderCompleted}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

type notifierFunc func(userID int64, ev dispatch.Event) error

func (f notifierFunc) Notify(userID int64, ev dispatch.Event) error { return f(userID, ev) }
