// Package market is the marketplace engine: the listing and buy order
// lifecycle, escrow around it, and the expiry sweep.
package market

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/example/market-engine/internal/keylock"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/livequeue"
	"github.com/example/market-engine/internal/vault"
	"github.com/shopspring/decimal"
)

type Config struct {
	MinimumPrice      decimal.Decimal
	MinimumOrderPrice decimal.Decimal
	DepositFraction   decimal.Decimal
	ListingLimit      int
	OrderLimit        int
	DefaultDuration   time.Duration
	MaxDuration       time.Duration
	// Retention is how long resolved entities stay in memory.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinimumPrice:      decimal.NewFromInt(1),
		MinimumOrderPrice: decimal.NewFromInt(1),
		DepositFraction:   decimal.RequireFromString("0.05"),
		ListingLimit:      10,
		OrderLimit:        10,
		DefaultDuration:   48 * time.Hour,
		MaxDuration:       7 * 24 * time.Hour,
		Retention:         24 * time.Hour,
	}
}

type Escrow interface {
	Reserve(ctx context.Context, playerID string, amount decimal.Decimal) error
	Release(ctx context.Context, playerID string, amount decimal.Decimal) error
	Settle(ctx context.Context, from, to string, amount decimal.Decimal) error
	Credit(ctx context.Context, playerID string, amount decimal.Decimal) error
}

// Inventory is the game-side item storage. TryDeliver fails with
// item.ErrInsufficientSpace when the stack does not fit; RemoveExact fails
// with item.ErrInsufficientQuantity when the player holds too few. Capacity
// reports how many items similar to stack still fit.
type Inventory interface {
	TryDeliver(ctx context.Context, playerID string, stack item.Stack) error
	RemoveExact(ctx context.Context, playerID string, stack item.Stack) error
	Capacity(ctx context.Context, playerID string, stack item.Stack) (int, error)
}

type Vault interface {
	Deposit(ctx context.Context, ownerID string, stack item.Stack, reason vault.Reason) (vault.Return, error)
	Count(ownerID string) int
	Pending(ownerID string) []vault.Return
	Claim(ctx context.Context, ownerID string, capacity int) ([]item.Stack, error)
}

// Credits keeps refunds that could not be paid right away until Settle
// manages to pay them.
type Credits interface {
	Owe(ctx context.Context, playerID string, amount decimal.Decimal, reason credits.Reason) error
	Settle(ctx context.Context, pay credits.PayFunc) int
}

type Ledger interface {
	Record(ctx context.Context, e ledger.Entry)
	History(ctx context.Context, ownerID string) ([]ledger.Entry, error)
}

type LiveQueue interface {
	Enqueue(listingID, sellerID string)
	Remove(listingID string) bool
	Entries() []livequeue.Entry
}

type Notifier interface {
	Notify(ctx context.Context, playerID, key string, params map[string]string)
}

// Journal receives every lifecycle event.
type Journal interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error)
}

// LimitResolver decides how many active entries a player may hold.
type LimitResolver interface {
	ResolveLimit(playerID string, base int) int
}

type LimitResolverFunc func(playerID string, base int) int

func (f LimitResolverFunc) ResolveLimit(playerID string, base int) int { return f(playerID, base) }

// Appraiser suggests a price for an item. It is optional.
type Appraiser interface {
	Appraise(stack item.Stack) (decimal.Decimal, bool)
}

// Deps are the Manager's collaborators. Store, Escrow, Inventory, Vault and
// Ledger are required.
type Deps struct {
	Store     *Store
	Escrow    Escrow
	Inventory Inventory
	Vault     Vault
	Credits   Credits
	Ledger    Ledger
	Queue     LiveQueue
	Notifier  Notifier
	Journal   Journal
	Limits    LimitResolver
	Appraiser Appraiser
	Clock     clock.Clock
}

type Manager struct {
	cfg       Config
	store     *Store
	escrow    Escrow
	inventory Inventory
	vault     Vault
	credits   Credits
	ledger    Ledger
	queue     LiveQueue
	notifier  Notifier
	journal   Journal
	limits    LimitResolver
	appraiser Appraiser
	clock     clock.Clock
	owners    *keylock.Locker
}

func NewManager(cfg Config, deps Deps) *Manager {
	m := &Manager{
		cfg:       cfg,
		store:     deps.Store,
		escrow:    deps.Escrow,
		inventory: deps.Inventory,
		vault:     deps.Vault,
		credits:   deps.Credits,
		ledger:    deps.Ledger,
		queue:     deps.Queue,
		notifier:  deps.Notifier,
		journal:   deps.Journal,
		limits:    deps.Limits,
		appraiser: deps.Appraiser,
		clock:     deps.Clock,
		owners:    keylock.New(),
	}
	if m.limits == nil {
		m.limits = LimitResolverFunc(func(_ string, base int) int { return base })
	}
	if m.clock == nil {
		m.clock = clock.NewSystem()
	}
	return m
}

// Store exposes the backing store for read-only collaborators such as the
// live queue.
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) duration(requested time.Duration) time.Duration {
	if requested <= 0 {
		return m.cfg.DefaultDuration
	}
	if m.cfg.MaxDuration > 0 && requested > m.cfg.MaxDuration {
		return m.cfg.MaxDuration
	}
	return requested
}

// deliver hands stack to the player, falling back to the vault. Only a vault
// failure is reported.
func (m *Manager) deliver(ctx context.Context, playerID string, stack item.Stack, reason vault.Reason) error {
	err := m.inventory.TryDeliver(ctx, playerID, stack)
	if err == nil {
		return nil
	}
	if !errors.Is(err, item.ErrInsufficientSpace) {
		log.Printf("[Market] Delivery to %s failed, storing in vault: %v", playerID, err)
	}

	if _, err := m.vault.Deposit(ctx, playerID, stack, reason); err != nil {
		log.Printf("[Market] Could not store %s x%d for %s in vault: %v", stack.Material, stack.Quantity, playerID, err)
		return err
	}
	m.notify(ctx, playerID, NoteReturnsPending, map[string]string{
		"count": strconv.Itoa(m.vault.Count(playerID)),
	})
	return nil
}

func (m *Manager) notify(ctx context.Context, playerID, key string, params map[string]string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, playerID, key, params)
}

func (m *Manager) record(ctx context.Context, aggregateID, aggregateType, eventType string, data any) {
	if m.journal == nil {
		return
	}
	if _, err := m.journal.Append(ctx, aggregateID, aggregateType, eventType, data); err != nil {
		log.Printf("[Market] Failed to journal %s for %s: %v", eventType, aggregateID, err)
	}
}

func (m *Manager) dequeue(listingID string) {
	if m.queue != nil {
		m.queue.Remove(listingID)
	}
}

// CountPendingReturnItems is the number of items waiting in the player's vault.
func (m *Manager) CountPendingReturnItems(playerID string) int {
	return m.vault.Count(playerID)
}

type ClaimResult struct {
	Result
	Items     []item.Stack `json:"items,omitempty"`
	Remaining int          `json:"remaining"`
}

// Claim moves pending returns into the player's inventory, oldest first.
// An entry that only partly fits is split and its remainder stays queued;
// nothing behind it is claimed in that call.
func (m *Manager) Claim(ctx context.Context, playerID string) (ClaimResult, error) {
	if m.vault.Count(playerID) == 0 {
		return ClaimResult{Result: failed(KindNotFound, MsgReturnsNone)}, nil
	}
	unlock := m.owners.Lock("returns:" + playerID)
	defer unlock()

	claimed, err := m.claimPending(ctx, playerID)
	res := ClaimResult{Items: claimed, Remaining: m.vault.Count(playerID)}
	switch {
	case err != nil:
		res.Result = internalFailure()
	case len(claimed) == 0:
		res.Result = failed(KindValidation, MsgReturnsInventoryFull)
	default:
		res.Result = succeeded(MsgReturnsClaimed, "")
	}
	return res, err
}

func (m *Manager) claimPending(ctx context.Context, playerID string) ([]item.Stack, error) {
	var claimed []item.Stack
	for _, r := range m.vault.Pending(playerID) {
		room, err := m.inventory.Capacity(ctx, playerID, r.Item)
		if err != nil {
			return claimed, err
		}
		if room <= 0 {
			return claimed, nil
		}

		part := r.Item.WithQuantity(min(room, r.Item.Quantity))
		if err := m.inventory.TryDeliver(ctx, playerID, part); err != nil {
			if errors.Is(err, item.ErrInsufficientSpace) {
				return claimed, nil
			}
			return claimed, err
		}
		// r is the head of the queue while the returns lock is held, so this
		// takes exactly the delivered part
		if _, err := m.vault.Claim(ctx, playerID, part.Quantity); err != nil {
			log.Printf("[Market] Delivered %s x%d to %s but could not remove it from the vault: %v",
				part.Material, part.Quantity, playerID, err)
			return claimed, err
		}
		claimed = append(claimed, part)
		if part.Quantity < r.Item.Quantity {
			return claimed, nil
		}
	}
	return claimed, nil
}

// owe parks a refund that could not be paid so the sweeper pays it later.
func (m *Manager) owe(ctx context.Context, playerID string, amount decimal.Decimal, reason credits.Reason) {
	if m.credits == nil {
		log.Printf("[Market] Lost %s owed to %s (%s): no credit book", amount, playerID, reason)
		return
	}
	if err := m.credits.Owe(ctx, playerID, amount, reason); err != nil {
		log.Printf("[Market] Credit of %s to %s kept in memory only: %v", amount, playerID, err)
	}
}

type SortMode string

const (
	SortNewest    SortMode = "newest"
	SortOldest    SortMode = "oldest"
	SortPriceAsc  SortMode = "price_asc"
	SortPriceDesc SortMode = "price_desc"
)

// Query is the browse state of one session; it is passed per call and
// never kept by the Manager.
type Query struct {
	Search string
	Sort   SortMode
	Owner  string
}

// ListActiveListings returns listings that can currently be bought.
func (m *Manager) ListActiveListings(q Query) []listing.Listing {
	now := m.clock.Now()
	var out []listing.Listing
	for _, l := range m.store.ActiveListings() {
		if l.ExpiredAt(now) || !l.Item.Matches(q.Search) {
			continue
		}
		if q.Owner != "" && l.SellerID != q.Owner {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.Sort {
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortPriceAsc:
			return a.Price.LessThan(b.Price)
		case SortPriceDesc:
			return a.Price.GreaterThan(b.Price)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

// ListActiveOrders returns orders that can currently be fulfilled.
func (m *Manager) ListActiveOrders(q Query) []buyorder.Order {
	now := m.clock.Now()
	var out []buyorder.Order
	for _, o := range m.store.ActiveOrders() {
		if o.ExpiredAt(now) || !o.Template.Matches(q.Search) {
			continue
		}
		if q.Owner != "" && o.BuyerID != q.Owner {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.Sort {
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortPriceAsc:
			return a.PricePerItem.LessThan(b.PricePerItem)
		case SortPriceDesc:
			return a.PricePerItem.GreaterThan(b.PricePerItem)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

func (m *Manager) ListQueuedLiveAuctions() []livequeue.Entry {
	if m.queue == nil {
		return nil
	}
	return m.queue.Entries()
}

func (m *Manager) GetHistory(ctx context.Context, playerID string) ([]ledger.Entry, error) {
	return m.ledger.History(ctx, playerID)
}

// Appraise asks the optional appraiser for a suggested price.
func (m *Manager) Appraise(stack item.Stack) (decimal.Decimal, bool) {
	if m.appraiser == nil {
		return decimal.Zero, false
	}
	return m.appraiser.Appraise(stack)
}
