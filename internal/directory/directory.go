package directory

import (
	"sync"
	"time"

	"github.com/example/peekop/internal/geo"
	"github.com/example/peekop/internal/models"
)

// Directory is the provider lookup surface used by the lifecycle and the
// synthetic bid feed.
type Directory interface {
	Get(id int64) (models.Provider, bool)
	Upsert(p models.Provider)
	// Nearby returns up to limit providers ordered by distance from the coord.
	Nearby(at models.Coord, limit int) []models.Provider
	// Available is Nearby restricted to online providers.
	Available(at models.Coord, limit int) []models.Provider
}

// Index is the in-memory Directory used when Redis is not configured.
type Index struct {
	mu        sync.RWMutex
	providers map[int64]models.Provider
}

func NewIndex() *Index {
	return &Index{providers: make(map[int64]models.Provider)}
}

func (x *Index) Get(id int64) (models.Provider, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	p, ok := x.providers[id]
	return p, ok
}

func (x *Index) Upsert(p models.Provider) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p.Updated = time.Now()
	x.providers[p.ID] = p
}

func (x *Index) Nearby(at models.Coord, limit int) []models.Provider {
	return x.scan(at, limit, false)
}

func (x *Index) Available(at models.Coord, limit int) []models.Provider {
	return x.scan(at, limit, true)
}

// metersPerRatingPoint trades distance against rating when ordering
// candidates: a provider rated one point higher wins against one 200m closer.
const metersPerRatingPoint = 200.0

// naive scan; in prod use geo-hash or H3
func (x *Index) scan(at models.Coord, limit int, onlineOnly bool) []models.Provider {
	x.mu.RLock()
	defer x.mu.RUnlock()
	type pair struct {
		p    models.Provider
		dist float64
	}
	arr := make([]pair, 0, len(x.providers))
	for _, p := range x.providers {
		if onlineOnly && !p.Online {
			continue
		}
		dist := geo.Haversine(at.Lat, at.Lng, p.Loc.Lat, p.Loc.Lng)
		dist += metersPerRatingPoint * (5.0 - p.Rating)
		arr = append(arr, pair{p, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Provider, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].p)
	}
	return out
}
