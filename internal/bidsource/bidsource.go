package bidsource

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/example/peekop/internal/directory"
	"github.com/example/peekop/internal/geo"
	"github.com/example/peekop/internal/models"
)

// Sink receives one offer attempt. The lifecycle re-validates order state at
// delivery time, so a sink call for an order that has moved on is a no-op.
type Sink func(orderID int64, provider models.ProviderSnapshot, amount int64, etaMinutes int, note string)

// BidSource feeds offers into bidding orders. The synthetic implementation
// below stands in for real provider traffic; a network-backed feed can
// replace it without touching the lifecycle.
type BidSource interface {
	Open(order *models.Order, sink Sink)
	Close(orderID int64)
}

// Suggester provides the anchor amount for a synthetic offer.
type Suggester interface {
	SuggestedBid(distKm float64) int64
}

var cannedNotes = []string{
	"I'm close by, can start right away",
	"On a bike, quick through traffic",
	"Happy to handle this one",
	"Will call you when I arrive",
}

// Synthetic schedules a burst of pseudo-random offers spread evenly across
// the window. Close cancels anything still pending.
type Synthetic struct {
	Directory   directory.Directory
	Suggest     Suggester
	Window      time.Duration
	MinOffers   int
	MaxOffers   int
	NearbyLimit int

	mu     sync.Mutex
	timers map[int64][]*time.Timer
}

func NewSynthetic(dir directory.Directory, suggest Suggester, window time.Duration, minOffers, maxOffers, nearbyLimit int) *Synthetic {
	return &Synthetic{
		Directory:   dir,
		Suggest:     suggest,
		Window:      window,
		MinOffers:   minOffers,
		MaxOffers:   maxOffers,
		NearbyLimit: nearbyLimit,
		timers:      make(map[int64][]*time.Timer),
	}
}

func (s *Synthetic) Open(order *models.Order, sink Sink) {
	candidates := s.Directory.Available(order.Pickup, s.NearbyLimit)
	if len(candidates) == 0 {
		return
	}
	n := s.MinOffers
	if s.MaxOffers > s.MinOffers {
		n += rand.Intn(s.MaxOffers - s.MinOffers + 1)
	}
	step := s.Window / time.Duration(n)
	orderID := order.ID
	pickup := order.Pickup

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		delay := step * time.Duration(i+1)
		t := time.AfterFunc(delay, func() {
			p := candidates[rand.Intn(len(candidates))]
			amount, etaMin, note := s.compose(p, pickup)
			sink(orderID, p.Snapshot(), amount, etaMin, note)
		})
		s.timers[orderID] = append(s.timers[orderID], t)
	}
}

func (s *Synthetic) Close(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers[orderID] {
		t.Stop()
	}
	delete(s.timers, orderID)
}

// compose invents an amount, ETA and occasional note for a provider bidding
// on a pickup at the given coord.
func (s *Synthetic) compose(p models.Provider, pickup models.Coord) (int64, int, string) {
	distKm := geo.DistanceKm(p.Loc, pickup)
	anchor := s.Suggest.SuggestedBid(distKm)
	// jitter the anchor by -15%..+30% so offers actually compete
	amount := int64(math.Round(float64(anchor) * (0.85 + 0.45*rand.Float64())))
	if amount < 1 {
		amount = 1
	}
	etaMin := int(math.Ceil(distKm*5)) + rand.Intn(5)
	if etaMin < 1 {
		etaMin = 1
	}
	note := ""
	if rand.Float64() > 0.7 {
		note = cannedNotes[rand.Intn(len(cannedNotes))]
	}
	return amount, etaMin, note
}
