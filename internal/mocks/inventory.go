package mocks

import (
	"context"
	"math"
	"sync"

	"github.com/example/market-engine/internal/domain/item"
)

// Delivery records a successful TryDeliver call.
type Delivery struct {
	PlayerID string
	Item     item.Stack
}

// MockInventory keeps player inventories in memory. Players marked full
// reject every delivery; players given a room limit accept items until it is
// used up. Everyone else has unlimited space.
type MockInventory struct {
	mu    sync.Mutex
	items map[string][]item.Stack
	full  map[string]bool
	room  map[string]int

	Delivered  []Delivery
	Removed    []Delivery
	DeliverErr error
}

func NewMockInventory() *MockInventory {
	return &MockInventory{
		items: make(map[string][]item.Stack),
		full:  make(map[string]bool),
		room:  make(map[string]int),
	}
}

// Give puts a stack into the player's inventory without recording a delivery.
func (m *MockInventory) Give(playerID string, stack item.Stack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[playerID] = append(m.items[playerID], stack)
}

func (m *MockInventory) SetFull(playerID string, full bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.full[playerID] = full
}

// SetRoom limits how many more items the player can take.
func (m *MockInventory) SetRoom(playerID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.room[playerID] = n
}

func (m *MockInventory) Capacity(ctx context.Context, playerID string, stack item.Stack) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full[playerID] {
		return 0, nil
	}
	if n, ok := m.room[playerID]; ok {
		return n, nil
	}
	return math.MaxInt32, nil
}

// Count sums the quantity of stacks similar to stack held by the player.
func (m *MockInventory) Count(playerID string, stack item.Stack) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.items[playerID] {
		if s.Similar(stack) {
			n += s.Quantity
		}
	}
	return n
}

func (m *MockInventory) TryDeliver(ctx context.Context, playerID string, stack item.Stack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeliverErr != nil {
		return m.DeliverErr
	}
	if m.full[playerID] {
		return item.ErrInsufficientSpace
	}
	if n, ok := m.room[playerID]; ok {
		if stack.Quantity > n {
			return item.ErrInsufficientSpace
		}
		m.room[playerID] = n - stack.Quantity
	}
	m.items[playerID] = append(m.items[playerID], stack)
	m.Delivered = append(m.Delivered, Delivery{PlayerID: playerID, Item: stack})
	return nil
}

func (m *MockInventory) RemoveExact(ctx context.Context, playerID string, stack item.Stack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	have := 0
	for _, s := range m.items[playerID] {
		if s.Similar(stack) {
			have += s.Quantity
		}
	}
	if have < stack.Quantity {
		return item.ErrInsufficientQuantity
	}

	need := stack.Quantity
	kept := m.items[playerID][:0]
	for _, s := range m.items[playerID] {
		if need > 0 && s.Similar(stack) {
			take := min(need, s.Quantity)
			need -= take
			s.Quantity -= take
			if s.Quantity == 0 {
				continue
			}
		}
		kept = append(kept, s)
	}
	m.items[playerID] = kept
	m.Removed = append(m.Removed, Delivery{PlayerID: playerID, Item: stack})
	return nil
}
