package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLEventStore stores events in the market database and publishes them
// to the broker.
type SQLEventStore struct {
	db        *DB
	publisher Publisher
}

func NewSQLEventStore(db *DB, publisher Publisher) *SQLEventStore {
	return &SQLEventStore{
		db:        db,
		publisher: publisher,
	}
}

// Append stores an event and publishes it. The event is durable once the
// insert commits; a publish failure is returned alongside it.
func (es *SQLEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now().UTC(),
	}

	err = es.db.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		if err := es.db.queryRow(ctx, tx,
			`SELECT COALESCE(MAX(version), 0) FROM market_events WHERE aggregate_id = ?`,
			aggregateID,
		).Scan(&current); err != nil {
			return err
		}
		event.Version = current + 1

		_, err := es.db.exec(ctx, tx, `
			INSERT INTO market_events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.AggregateID, event.AggregateType, event.EventType,
			string(event.Data), event.Version, toNanos(event.Timestamp),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append %s event: %w", eventType, err)
	}

	if es.publisher != nil {
		if err := es.publisher.Publish(ctx, aggregateID, event); err != nil {
			return &event, err
		}
	}
	return &event, nil
}

// GetEvents returns all events for an aggregate in version order
func (es *SQLEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.load(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		FROM market_events WHERE aggregate_id = ? ORDER BY version`, aggregateID)
}

// GetAllEvents returns all events in append order
func (es *SQLEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.load(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		FROM market_events ORDER BY seq`)
}

func (es *SQLEventStore) load(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.query(ctx, es.db.sql, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			data    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &created); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.Timestamp = fromNanos(created)
		events = append(events, e)
	}
	return events, rows.Err()
}
