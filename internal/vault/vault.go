// Package vault keeps items that could not be delivered to their owner.
// Entries are durable, FIFO per owner, and leave the vault only through an
// explicit claim.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/keylock"
	"github.com/google/uuid"
)

type Reason string

const (
	ReasonPurchase  Reason = "purchase"
	ReasonOrder     Reason = "order"
	ReasonCancelled Reason = "cancelled"
	ReasonExpired   Reason = "expired"
	ReasonReturned  Reason = "returned"
)

var ErrInvalidCapacity = errors.New("claim capacity must be positive")

type Return struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Item      item.Stack `json:"item"`
	Reason    Reason     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}

// Repository is the durable side of the vault.
type Repository interface {
	InsertReturn(ctx context.Context, r Return) error
	DeleteReturn(ctx context.Context, id string) error
	UpdateReturnQuantity(ctx context.Context, id string, quantity int) error
	// LoadReturns returns every stored entry ordered by creation time.
	LoadReturns(ctx context.Context) ([]Return, error)
}

type Vault struct {
	repo  Repository
	clock clock.Clock
	locks *keylock.Locker

	mu      sync.RWMutex
	byOwner map[string][]Return
}

func New(repo Repository, clk clock.Clock) *Vault {
	return &Vault{
		repo:    repo,
		clock:   clk,
		locks:   keylock.New(),
		byOwner: make(map[string][]Return),
	}
}

// Load restores the vault from the repository.
func (v *Vault) Load(ctx context.Context) error {
	returns, err := v.repo.LoadReturns(ctx)
	if err != nil {
		return fmt.Errorf("load pending returns: %w", err)
	}
	sort.SliceStable(returns, func(i, j int) bool {
		return returns[i].CreatedAt.Before(returns[j].CreatedAt)
	})

	byOwner := make(map[string][]Return)
	for _, r := range returns {
		byOwner[r.OwnerID] = append(byOwner[r.OwnerID], r)
	}

	v.mu.Lock()
	v.byOwner = byOwner
	v.mu.Unlock()
	log.Printf("[Vault] Restored %d pending returns for %d players", len(returns), len(byOwner))
	return nil
}

// Deposit stores stack for ownerID. The entry is durable once this returns nil.
func (v *Vault) Deposit(ctx context.Context, ownerID string, stack item.Stack, reason Reason) (Return, error) {
	if err := stack.Validate(); err != nil {
		return Return{}, err
	}
	unlock := v.locks.Lock(ownerID)
	defer unlock()

	r := Return{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Item:      stack,
		Reason:    reason,
		CreatedAt: v.clock.Now(),
	}
	if err := v.repo.InsertReturn(ctx, r); err != nil {
		return Return{}, fmt.Errorf("store pending return for %s: %w", ownerID, err)
	}

	v.mu.Lock()
	v.byOwner[ownerID] = append(v.byOwner[ownerID], r)
	v.mu.Unlock()
	return r, nil
}

// Count sums the item quantity waiting for ownerID.
func (v *Vault) Count(ownerID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, r := range v.byOwner[ownerID] {
		n += r.Item.Quantity
	}
	return n
}

// Pending lists ownerID's entries, oldest first.
func (v *Vault) Pending(ownerID string) []Return {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Return(nil), v.byOwner[ownerID]...)
}

// Claim takes up to capacity items, oldest first. The last entry taken may
// be split; its remainder stays queued.
func (v *Vault) Claim(ctx context.Context, ownerID string, capacity int) ([]item.Stack, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	unlock := v.locks.Lock(ownerID)
	defer unlock()

	var claimed []item.Stack
	for _, r := range v.Pending(ownerID) {
		if capacity == 0 {
			break
		}
		if r.Item.Quantity <= capacity {
			if err := v.remove(ctx, r); err != nil {
				return claimed, err
			}
			claimed = append(claimed, r.Item)
			capacity -= r.Item.Quantity
			continue
		}

		left := r.Item.Quantity - capacity
		if err := v.shrink(ctx, r, left); err != nil {
			return claimed, err
		}
		claimed = append(claimed, r.Item.WithQuantity(capacity))
		capacity = 0
	}
	return claimed, nil
}

func (v *Vault) remove(ctx context.Context, r Return) error {
	if err := v.repo.DeleteReturn(ctx, r.ID); err != nil {
		return fmt.Errorf("delete pending return %s: %w", r.ID, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entries := v.byOwner[r.OwnerID]
	for i, e := range entries {
		if e.ID == r.ID {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(v.byOwner, r.OwnerID)
	} else {
		v.byOwner[r.OwnerID] = entries
	}
	return nil
}

func (v *Vault) shrink(ctx context.Context, r Return, quantity int) error {
	if err := v.repo.UpdateReturnQuantity(ctx, r.ID, quantity); err != nil {
		return fmt.Errorf("update pending return %s: %w", r.ID, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entries := v.byOwner[r.OwnerID]
	for i := range entries {
		if entries[i].ID == r.ID {
			entries[i].Item.Quantity = quantity
			break
		}
	}
	return nil
}
