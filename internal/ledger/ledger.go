// Package ledger keeps a bounded, append-only history of settled trades per
// player.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

const (
	defaultLimit  = 50
	writeAttempts = 2
)

type Entry struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Direction     Direction       `json:"direction"`
	Item          item.Stack      `json:"item"`
	Price         decimal.Decimal `json:"price"`
	CounterpartID string          `json:"counterpart_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

type Repository interface {
	AppendEntry(ctx context.Context, e Entry) error
	// TrimEntries drops all but the keep newest entries of ownerID.
	TrimEntries(ctx context.Context, ownerID string, keep int) error
	// History returns up to limit entries of ownerID, newest first.
	History(ctx context.Context, ownerID string, limit int) ([]Entry, error)
}

type Service struct {
	repo  Repository
	clock clock.Clock
	limit int
}

type Option func(*Service)

// WithLimit sets how many entries are kept per player.
func WithLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewService(repo Repository, clk clock.Clock, opts ...Option) *Service {
	s := &Service{repo: repo, clock: clk, limit: defaultLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends e to its owner's history. It never fails the caller: a
// write that still fails after a retry is logged and dropped.
func (s *Service) Record(ctx context.Context, e Entry) {
	e.ID = uuid.New().String()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}

	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = s.repo.AppendEntry(ctx, e); err == nil {
			break
		}
	}
	if err != nil {
		log.Printf("[Ledger] Dropped %s entry for %s (%s x%d @ %s): %v",
			e.Direction, e.OwnerID, e.Item.Material, e.Item.Quantity, e.Price, err)
		return
	}

	if err := s.repo.TrimEntries(ctx, e.OwnerID, s.limit); err != nil {
		log.Printf("[Ledger] Failed to trim history of %s: %v", e.OwnerID, err)
	}
}

// History returns the player's most recent trades, newest first.
func (s *Service) History(ctx context.Context, ownerID string) ([]Entry, error) {
	entries, err := s.repo.History(ctx, ownerID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", ownerID, err)
	}
	return entries, nil
}
