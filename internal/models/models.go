package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero coords are treated as unset; the service never operates at Null Island.
func (c Coord) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

type OrderKind string

const (
	KindPickup OrderKind = "pickup"
	KindErrand OrderKind = "errand"
)

func ValidOrderKind(k OrderKind) bool { return k == KindPickup || k == KindErrand }

type FulfillMode string

const (
	ModeDirect      FulfillMode = "direct"
	ModeMarketplace FulfillMode = "marketplace"
)

func ValidFulfillMode(m FulfillMode) bool { return m == ModeDirect || m == ModeMarketplace }

type OrderState string

const (
	StatePending   OrderState = "pending"
	StateBidding   OrderState = "bidding"
	StateAccepted  OrderState = "accepted"
	StateCompleted OrderState = "completed"
	StateCancelled OrderState = "cancelled"
)

func ValidOrderState(s OrderState) bool {
	switch s {
	case StatePending, StateBidding, StateAccepted, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s OrderState) Terminal() bool { return s == StateCompleted || s == StateCancelled }

type VehicleType string

const (
	VehicleBike     VehicleType = "bike"
	VehicleTricycle VehicleType = "tricycle"
)

// Provider is a fulfilling actor (rider) as tracked by the directory.
type Provider struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Photo     string      `json:"photo"`
	Rating    float64     `json:"rating"` // 0..5
	Vehicle   VehicleType `json:"vehicle_type"`
	Loc       Coord       `json:"loc"`
	Online    bool        `json:"online"`
	Completed int         `json:"completed_rides"`
	Updated   time.Time   `json:"updated"`
}

// ProviderSnapshot is the denormalized view embedded in offers and accepted
// orders. Copied at offer time, not joined live.
type ProviderSnapshot struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Photo  string  `json:"photo"`
	Rating float64 `json:"rating"`
}

func (p Provider) Snapshot() ProviderSnapshot {
	return ProviderSnapshot{ID: p.ID, Name: p.Name, Photo: p.Photo, Rating: p.Rating}
}

type PackageSize string

const (
	PackageSmall  PackageSize = "small"
	PackageMedium PackageSize = "medium"
	PackageLarge  PackageSize = "large"
)

// PackageDetails carries errand package attributes; zero value for pickups.
type PackageDetails struct {
	Size    PackageSize `json:"size,omitempty"`
	Weight  string      `json:"weight,omitempty"`
	Fragile bool        `json:"fragile,omitempty"`
}

type Urgency string

const (
	UrgencyNormal  Urgency = "normal"
	UrgencyExpress Urgency = "express"
)

// Offer is a provider's proposal to fulfill a marketplace order.
type Offer struct {
	ID         int64            `json:"id"`
	OrderID    int64            `json:"order_id"`
	Provider   ProviderSnapshot `json:"provider"`
	Amount     int64            `json:"amount"` // smallest currency unit
	ETAMinutes int              `json:"eta_minutes"`
	Note       string           `json:"note,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Order is one pickup/errand request moving through the lifecycle.
// Offers are kept in arrival order.
type Order struct {
	ID              int64             `json:"id"`
	Kind            OrderKind         `json:"kind"`
	Mode            FulfillMode       `json:"mode"`
	State           OrderState        `json:"state"`
	RequesterID     int64             `json:"requester_id"`
	Pickup          Coord             `json:"pickup"`
	Dropoff         *Coord            `json:"dropoff,omitempty"`
	Note            string            `json:"note,omitempty"`
	Package         PackageDetails    `json:"package,omitempty"`
	Urgency         Urgency           `json:"urgency,omitempty"`
	PassengerCount  int               `json:"passenger_count,omitempty"`
	SpecialRequests int               `json:"special_requests,omitempty"`
	DirectProvider  int64             `json:"direct_provider_id,omitempty"`
	Assigned        *ProviderSnapshot `json:"assigned_provider,omitempty"`
	FinalFare       int64             `json:"final_fare,omitempty"`
	Offers          []*Offer          `json:"offers,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a snapshot safe to hand outside the lifecycle's lock.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Dropoff != nil {
		d := *o.Dropoff
		cp.Dropoff = &d
	}
	if o.Assigned != nil {
		a := *o.Assigned
		cp.Assigned = &a
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	if o.Offers != nil {
		cp.Offers = make([]*Offer, len(o.Offers))
		for i, of := range o.Offers {
			oc := *of
			cp.Offers[i] = &oc
		}
	}
	return &cp
}
