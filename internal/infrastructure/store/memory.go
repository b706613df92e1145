package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/vault"
)

// Memory is an in-memory repository for listings, orders, returns, owed
// credits and the ledger. It is used in tests and when no database is
// configured.
type Memory struct {
	mu       sync.RWMutex
	listings map[string]listing.Listing
	orders   map[string]buyorder.Order
	returns  []vault.Return
	credits  []credits.Credit
	entries  map[string][]ledger.Entry // ownerID -> entries, oldest first

	// SaveErr, when set, fails every write.
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{
		listings: make(map[string]listing.Listing),
		orders:   make(map[string]buyorder.Order),
		entries:  make(map[string][]ledger.Entry),
	}
}

func (m *Memory) SaveListing(ctx context.Context, l listing.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.listings[l.ID] = l
	return nil
}

func (m *Memory) SaveOrder(ctx context.Context, o buyorder.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) ActiveListings(ctx context.Context) ([]listing.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []listing.Listing
	for _, l := range m.listings {
		if l.Status == listing.StatusActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ActiveOrders(ctx context.Context) ([]buyorder.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []buyorder.Order
	for _, o := range m.orders {
		if o.Status == buyorder.StatusActive {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Listing returns the last saved version of a listing.
func (m *Memory) Listing(id string) (listing.Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	return l, ok
}

// Order returns the last saved version of an order.
func (m *Memory) Order(id string) (buyorder.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *Memory) InsertReturn(ctx context.Context, r vault.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.returns = append(m.returns, r)
	return nil
}

func (m *Memory) DeleteReturn(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for i, r := range m.returns {
		if r.ID == id {
			m.returns = append(m.returns[:i], m.returns[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) UpdateReturnQuantity(ctx context.Context, id string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for i, r := range m.returns {
		if r.ID == id {
			m.returns[i].Item = r.Item.WithQuantity(quantity)
			return nil
		}
	}
	return fmt.Errorf("return %s not found", id)
}

func (m *Memory) LoadReturns(ctx context.Context) ([]vault.Return, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]vault.Return(nil), m.returns...), nil
}

func (m *Memory) AppendEntry(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.entries[e.OwnerID] = append(m.entries[e.OwnerID], e)
	return nil
}

func (m *Memory) TrimEntries(ctx context.Context, ownerID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[ownerID]
	if len(entries) > keep {
		m.entries[ownerID] = append([]ledger.Entry(nil), entries[len(entries)-keep:]...)
	}
	return nil
}

func (m *Memory) History(ctx context.Context, ownerID string, limit int) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entries[ownerID]
	out := make([]ledger.Entry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *Memory) InsertCredit(ctx context.Context, c credits.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.credits = append(m.credits, c)
	return nil
}

func (m *Memory) DeleteCredit(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for i, c := range m.credits {
		if c.ID == id {
			m.credits = append(m.credits[:i], m.credits[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) LoadCredits(ctx context.Context) ([]credits.Credit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]credits.Credit(nil), m.credits...), nil
}
