package pricing

import (
	"testing"

	"github.com/example/peekop/internal/models"
)

func TestPickupQuoteBaseOnly(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	o := &models.Order{Kind: models.KindPickup, Pickup: models.Coord{Lat: 6.5, Lng: 3.4}, PassengerCount: 1}
	quote := q.Quote(o)
	if quote.Fare != 300 {
		t.Fatalf("expected base fare 300 with no dropoff, got %d", quote.Fare)
	}
}

func TestPickupQuoteSurcharges(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	o := &models.Order{
		Kind:            models.KindPickup,
		Pickup:          models.Coord{Lat: 6.5, Lng: 3.4},
		PassengerCount:  3,
		SpecialRequests: 2,
	}
	// no distance: 300 + 2*100 = 500, plus 2*200 special requests
	quote := q.Quote(o)
	if quote.Fare != 900 {
		t.Fatalf("expected 900, got %d", quote.Fare)
	}
}

func TestPickupExpressMultiplierBeforeSpecialRequests(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	o := &models.Order{
		Kind:            models.KindPickup,
		Pickup:          models.Coord{Lat: 6.5, Lng: 3.4},
		PassengerCount:  1,
		Urgency:         models.UrgencyExpress,
		SpecialRequests: 1,
	}
	// 300*1.3 + 200 = 590
	quote := q.Quote(o)
	if quote.Fare != 590 {
		t.Fatalf("expected 590, got %d", quote.Fare)
	}
}

func TestErrandQuoteFragileLarge(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	o := &models.Order{
		Kind:    models.KindErrand,
		Pickup:  models.Coord{Lat: 6.5, Lng: 3.4},
		Package: models.PackageDetails{Size: models.PackageLarge, Fragile: true},
	}
	// 500 + 700 large, then +500 fragile
	quote := q.Quote(o)
	if quote.Fare != 1700 {
		t.Fatalf("expected 1700, got %d", quote.Fare)
	}
}

func TestErrandExpressAppliesBeforeFragile(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	o := &models.Order{
		Kind:    models.KindErrand,
		Pickup:  models.Coord{Lat: 6.5, Lng: 3.4},
		Urgency: models.UrgencyExpress,
		Package: models.PackageDetails{Fragile: true},
	}
	// 500*1.5 + 500 = 1250
	quote := q.Quote(o)
	if quote.Fare != 1250 {
		t.Fatalf("expected 1250, got %d", quote.Fare)
	}
}

func TestErrandETAScalesWithDistance(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	drop := models.Coord{Lat: 6.52, Lng: 3.4} // ~2.2km north
	o := &models.Order{
		Kind:    models.KindErrand,
		Pickup:  models.Coord{Lat: 6.5, Lng: 3.4},
		Dropoff: &drop,
	}
	quote := q.Quote(o)
	if quote.ETAMinutes < 10 || quote.ETAMinutes > 13 {
		t.Fatalf("expected ~11 minutes at 5 min/km, got %d", quote.ETAMinutes)
	}
}

func TestSuggestedBid(t *testing.T) {
	q := NewStandardQuoter(DefaultTariff())
	if got := q.SuggestedBid(2.5); got != 1000 {
		t.Fatalf("expected 1000 for 2.5km, got %d", got)
	}
}
