package mocks

import (
	"context"
	"sync"

	"github.com/example/market-engine/internal/domain/listing"
)

type Notification struct {
	PlayerID string
	Key      string
	Params   map[string]string
}

// MockNotifier records notifications and announcements.
type MockNotifier struct {
	mu            sync.Mutex
	Notifications []Notification
	Announced     []listing.Listing
	AnnounceErr   error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, playerID, key string, params map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, Notification{PlayerID: playerID, Key: key, Params: params})
}

func (m *MockNotifier) Announce(ctx context.Context, l listing.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnnounceErr != nil {
		return m.AnnounceErr
	}
	m.Announced = append(m.Announced, l)
	return nil
}

// Keys returns the notification keys sent to playerID, in order.
func (m *MockNotifier) Keys(playerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, n := range m.Notifications {
		if n.PlayerID == playerID {
			keys = append(keys, n.Key)
		}
	}
	return keys
}
