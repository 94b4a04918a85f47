package pricing

import (
	"math"

	"github.com/example/peekop/internal/eta"
	"github.com/example/peekop/internal/geo"
	"github.com/example/peekop/internal/models"
)

// Quote is the outcome of pricing a prospective order.
type Quote struct {
	Fare       int64 `json:"fare"` // smallest currency unit
	ETAMinutes int   `json:"eta_minutes"`
}

// Quoter prices an order. The tariff is a business parameter, so callers
// depend on this interface rather than on any particular arithmetic.
type Quoter interface {
	Quote(o *models.Order) Quote
}

// Tariff holds the coefficients for StandardQuoter. Defaults mirror the
// launch-market (Naira) rate card.
type Tariff struct {
	PickupBase       int64   // flat base for pickups
	PickupPerKm      int64   // per-km rate for pickups
	PerPassenger     int64   // per extra passenger beyond the first
	PerSpecialReq    int64   // per selected special request
	PickupExpress    float64 // multiplier for express pickups
	PickupMinsPerKm  float64
	ErrandBase       int64
	ErrandPerKm      int64
	MediumPackage    int64
	LargePackage     int64
	FragileSurcharge int64
	ErrandExpress    float64
	ErrandMinsPerKm  float64
	BidFloor         int64 // minimum user-supplied bid
}

func DefaultTariff() Tariff {
	return Tariff{
		PickupBase:       300,
		PickupPerKm:      150,
		PerPassenger:     100,
		PerSpecialReq:    200,
		PickupExpress:    1.3,
		PickupMinsPerKm:  3,
		ErrandBase:       500,
		ErrandPerKm:      200,
		MediumPackage:    300,
		LargePackage:     700,
		FragileSurcharge: 500,
		ErrandExpress:    1.5,
		ErrandMinsPerKm:  5,
		BidFloor:         100,
	}
}

// StandardQuoter implements the rate card: base + distance*rate adjusted by
// urgency and package/trip attributes. When a routing client is set, its
// durations replace the per-km minute estimate; failures fall back silently.
type StandardQuoter struct {
	Tariff    Tariff
	ETAClient eta.Client // optional OSRM client
	ETACache  *eta.Cache // optional ETA cache
}

func NewStandardQuoter(t Tariff) *StandardQuoter { return &StandardQuoter{Tariff: t} }

func (q *StandardQuoter) Quote(o *models.Order) Quote {
	dist := tripDistanceKm(o)
	var out Quote
	switch o.Kind {
	case models.KindErrand:
		out = q.quoteErrand(o, dist)
	default:
		out = q.quotePickup(o, dist)
	}
	if o.Dropoff != nil {
		if sec, ok := q.routedSeconds(o.Pickup, *o.Dropoff); ok {
			out.ETAMinutes = int(math.Ceil(sec / 60))
		}
	}
	return out
}

func (q *StandardQuoter) routedSeconds(from, to models.Coord) (float64, bool) {
	if q.ETAClient == nil {
		return 0, false
	}
	if q.ETACache != nil {
		if v, ok := q.ETACache.Get(from, to); ok {
			return v, true
		}
	}
	v, err := q.ETAClient.EstimateSeconds(from, to)
	if err != nil {
		return 0, false
	}
	if q.ETACache != nil {
		q.ETACache.Set(from, to, v)
	}
	return v, true
}

func (q *StandardQuoter) quotePickup(o *models.Order, distKm float64) Quote {
	t := q.Tariff
	price := float64(t.PickupBase) + distKm*float64(t.PickupPerKm)
	if o.PassengerCount > 1 {
		price += float64(o.PassengerCount-1) * float64(t.PerPassenger)
	}
	if o.Urgency == models.UrgencyExpress {
		price *= t.PickupExpress
	}
	price += float64(o.SpecialRequests) * float64(t.PerSpecialReq)
	return Quote{
		Fare:       int64(math.Round(price)),
		ETAMinutes: int(math.Ceil(distKm * t.PickupMinsPerKm)),
	}
}

func (q *StandardQuoter) quoteErrand(o *models.Order, distKm float64) Quote {
	t := q.Tariff
	price := float64(t.ErrandBase) + distKm*float64(t.ErrandPerKm)
	switch o.Package.Size {
	case models.PackageMedium:
		price += float64(t.MediumPackage)
	case models.PackageLarge:
		price += float64(t.LargePackage)
	}
	if o.Urgency == models.UrgencyExpress {
		price *= t.ErrandExpress
	}
	if o.Package.Fragile {
		price += float64(t.FragileSurcharge)
	}
	return Quote{
		Fare:       int64(math.Round(price)),
		ETAMinutes: int(math.Ceil(distKm * t.ErrandMinsPerKm)),
	}
}

// SuggestedBid is the anchor amount a provider would open with for an order at
// the given distance from their position: errand base plus the errand per-km
// rate, matching what the rider app pre-fills.
func (q *StandardQuoter) SuggestedBid(distKm float64) int64 {
	return int64(math.Round(float64(q.Tariff.ErrandBase) + distKm*float64(q.Tariff.ErrandPerKm)))
}

func tripDistanceKm(o *models.Order) float64 {
	if o.Dropoff == nil {
		return 0
	}
	return geo.DistanceKm(o.Pickup, *o.Dropoff)
}
