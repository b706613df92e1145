package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockJournal records appended events in memory.
type MockJournal struct {
	mu     sync.RWMutex
	events []store.Event

	AppendCalls []AppendCall
	AppendErr   error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (m *MockJournal) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	version := 1
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			version++
		}
	}
	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}
	m.events = append(m.events, event)
	return &event, nil
}

// EventTypes lists the recorded event types of an aggregate in order.
func (m *MockJournal) EventTypes(aggregateID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e.EventType)
		}
	}
	return out
}

// Count returns the number of recorded events of the given type.
func (m *MockJournal) Count(eventType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func (m *MockJournal) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockJournal) GetAllEvents(ctx context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.events...), nil
}
