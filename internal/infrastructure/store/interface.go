package store

import "context"

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
}

// Publisher forwards stored events to a broker. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
