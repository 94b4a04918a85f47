package storage

import (
	"sync"

	"github.com/example/peekop/internal/models"
)

// OrderStore defines persistence operations for orders and offers.
// The lifecycle treats persistence as best-effort; the in-memory maps stay
// canonical for the session.
type OrderStore interface {
	SaveOrder(o *models.Order) error
	UpdateOrder(o *models.Order) error
	SaveOffer(of *models.Offer) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	orders map[int64]*models.Order
	offers map[int64][]*models.Offer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]*models.Order),
		offers: make(map[int64][]*models.Offer),
	}
}

func (m *MemoryStore) SaveOrder(o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) UpdateOrder(o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) SaveOffer(of *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *of
	m.offers[of.OrderID] = append(m.offers[of.OrderID], &cp)
	return nil
}

func (m *MemoryStore) Get(id int64) (*models.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}
