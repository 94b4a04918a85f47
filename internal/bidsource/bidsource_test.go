package bidsource

import (
	"sync"
	"testing"
	"time"

	"github.com/example/peekop/internal/directory"
	"github.com/example/peekop/internal/models"
)

type fixedSuggest struct{ v int64 }

func (f fixedSuggest) SuggestedBid(distKm float64) int64 { return f.v }

func seedDirectory(n int) *directory.Index {
	idx := directory.NewIndex()
	for i := 0; i < n; i++ {
		idx.Upsert(models.Provider{
			ID:     int64(i + 1),
			Name:   "rider",
			Rating: 4.5,
			Loc:    models.Coord{Lat: 6.5 + float64(i)*0.001, Lng: 3.4},
			Online: true,
		})
	}
	return idx
}

func TestSyntheticDeliversOffersWithinWindow(t *testing.T) {
	src := NewSynthetic(seedDirectory(4), fixedSuggest{1000}, 100*time.Millisecond, 2, 2, 8)

	var mu sync.Mutex
	var got []int64
	done := make(chan struct{})
	sink := func(orderID int64, p models.ProviderSnapshot, amount int64, etaMin int, note string) {
		mu.Lock()
		got = append(got, amount)
		n := len(got)
		mu.Unlock()
		if amount <= 0 {
			t.Errorf("non-positive amount %d", amount)
		}
		if etaMin <= 0 {
			t.Errorf("non-positive eta %d", etaMin)
		}
		if n == 2 {
			close(done)
		}
	}

	src.Open(&models.Order{ID: 1, Pickup: models.Coord{Lat: 6.5, Lng: 3.4}}, sink)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected 2 offers within the window")
	}
}

func TestSyntheticCloseCancelsPendingTimers(t *testing.T) {
	src := NewSynthetic(seedDirectory(4), fixedSuggest{1000}, 500*time.Millisecond, 3, 3, 8)

	var mu sync.Mutex
	count := 0
	sink := func(orderID int64, p models.ProviderSnapshot, amount int64, etaMin int, note string) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	src.Open(&models.Order{ID: 2, Pickup: models.Coord{Lat: 6.5, Lng: 3.4}}, sink)
	src.Close(2)

	time.Sleep(700 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no offers after immediate close, got %d", count)
	}
}

func TestSyntheticNoProvidersNoTimers(t *testing.T) {
	src := NewSynthetic(directory.NewIndex(), fixedSuggest{1000}, 50*time.Millisecond, 2, 5, 8)
	fired := false
	src.Open(&models.Order{ID: 3, Pickup: models.Coord{Lat: 6.5, Lng: 3.4}}, func(int64, models.ProviderSnapshot, int64, int, string) {
		fired = true
	})
	time.Sleep(120 * time.Millisecond)
	if fired {
		t.Fatal("no offers expected with an empty directory")
	}
}
