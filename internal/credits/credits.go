// Package credits remembers money the engine owes a player but could not pay
// at the time, so a later sweep can pay it.
package credits

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonDeposit     Reason = "listing_deposit"
	ReasonPayment     Reason = "purchase_payment"
	ReasonReservation Reason = "order_reservation"
)

type Credit struct {
	ID        string          `json:"id"`
	PlayerID  string          `json:"player_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    Reason          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repository interface {
	InsertCredit(ctx context.Context, c Credit) error
	DeleteCredit(ctx context.Context, id string) error
	LoadCredits(ctx context.Context) ([]Credit, error)
}

// PayFunc pays amount to playerID.
type PayFunc func(ctx context.Context, playerID string, amount decimal.Decimal) error

type Book struct {
	repo  Repository
	clock clock.Clock

	settling sync.Mutex
	mu       sync.Mutex
	owed     []Credit
}

func New(repo Repository, clk clock.Clock) *Book {
	return &Book{repo: repo, clock: clk}
}

// Load restores unpaid credits after a restart.
func (b *Book) Load(ctx context.Context) error {
	loaded, err := b.repo.LoadCredits(ctx)
	if err != nil {
		return fmt.Errorf("load credits: %w", err)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].CreatedAt.Before(loaded[j].CreatedAt) })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.owed = loaded
	return nil
}

// Owe records a debt to playerID. The credit is kept in memory even when it
// cannot be persisted, so it is still paid while the process lives.
func (b *Book) Owe(ctx context.Context, playerID string, amount decimal.Decimal, reason Reason) error {
	c := Credit{
		ID:        uuid.New().String(),
		PlayerID:  playerID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: b.clock.Now(),
	}
	b.mu.Lock()
	b.owed = append(b.owed, c)
	b.mu.Unlock()

	if err := b.repo.InsertCredit(ctx, c); err != nil {
		return fmt.Errorf("persist credit %s for %s: %w", c.ID, playerID, err)
	}
	return nil
}

// Owed sums what is still owed to playerID.
func (b *Book) Owed(playerID string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := decimal.Zero
	for _, c := range b.owed {
		if c.PlayerID == playerID {
			total = total.Add(c.Amount)
		}
	}
	return total
}

func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.owed)
}

// Settle tries to pay every owed credit once and returns how many were paid.
// Unpaid credits stay for the next call.
func (b *Book) Settle(ctx context.Context, pay PayFunc) int {
	b.settling.Lock()
	defer b.settling.Unlock()

	b.mu.Lock()
	pending := append([]Credit(nil), b.owed...)
	b.mu.Unlock()

	paid := 0
	for _, c := range pending {
		if err := pay(ctx, c.PlayerID, c.Amount); err != nil {
			log.Printf("[Credits] Paying %s to %s (%s) failed, will retry: %v", c.Amount, c.PlayerID, c.Reason, err)
			continue
		}
		paid++
		b.forget(c.ID)
		if err := b.repo.DeleteCredit(ctx, c.ID); err != nil {
			// a leftover row would pay the player twice after a restart
			log.Printf("[Credits] Paid credit %s to %s but could not delete it: %v", c.ID, c.PlayerID, err)
		}
	}
	return paid
}

func (b *Book) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.owed {
		if c.ID == id {
			b.owed = append(b.owed[:i:i], b.owed[i+1:]...)
			return
		}
	}
}
