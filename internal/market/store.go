package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/listing"
)

var ErrDuplicateID = errors.New("entity id already exists")

// Repository persists listings and orders. Save is an upsert keyed by id.
type Repository interface {
	SaveListing(ctx context.Context, l listing.Listing) error
	SaveOrder(ctx context.Context, o buyorder.Order) error
	ActiveListings(ctx context.Context) ([]listing.Listing, error)
	ActiveOrders(ctx context.Context) ([]buyorder.Order, error)
}

// row guards a single entity; its mutex is the serialization point for
// every status change of that entity.
type row[T any] struct {
	mu  sync.Mutex
	val T
}

type table[T any, S comparable] struct {
	terminal  func(S) bool
	id        func(T) string
	owner     func(T) string
	status    func(T) S
	updatedAt func(T) time.Time
	withState func(T, S, time.Time) T
	validate  func(from, to S) error
	save      func(context.Context, T) error

	mu      sync.RWMutex
	rows    map[string]*row[T]
	byOwner map[string]map[string]struct{}
}

func (t *table[T, S]) init() {
	t.rows = make(map[string]*row[T])
	t.byOwner = make(map[string]map[string]struct{})
}

func (t *table[T, S]) put(v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(v)
	if _, exists := t.rows[id]; exists {
		return ErrDuplicateID
	}
	t.rows[id] = &row[T]{val: v}
	owner := t.owner(v)
	if t.byOwner[owner] == nil {
		t.byOwner[owner] = make(map[string]struct{})
	}
	t.byOwner[owner][id] = struct{}{}
	return nil
}

func (t *table[T, S]) insert(ctx context.Context, v T) error {
	t.mu.RLock()
	_, exists := t.rows[t.id(v)]
	t.mu.RUnlock()
	if exists {
		return ErrDuplicateID
	}
	if err := t.save(ctx, v); err != nil {
		return err
	}
	return t.put(v)
}

func (t *table[T, S]) row(id string) (*row[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

func (t *table[T, S]) get(id string) (T, bool) {
	r, ok := t.row(id)
	if !ok {
		var zero T
		return zero, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.val, true
}

// transition moves id from `from` to `to` if and only if its current status
// is `from`. The new state is persisted before it becomes visible; a
// persistence error leaves the entity untouched.
func (t *table[T, S]) transition(ctx context.Context, id string, from, to S, now time.Time) (T, bool, error) {
	var zero T
	if err := t.validate(from, to); err != nil {
		return zero, false, err
	}
	r, ok := t.row(id)
	if !ok {
		return zero, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t.status(r.val) != from {
		return r.val, false, nil
	}
	next := t.withState(r.val, to, now)
	if err := t.save(ctx, next); err != nil {
		return r.val, false, err
	}
	r.val = next
	return next, true, nil
}

func (t *table[T, S]) snapshot() []*row[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]*row[T], 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	return rows
}

func (t *table[T, S]) listActive() []T {
	var out []T
	for _, r := range t.snapshot() {
		r.mu.Lock()
		v := r.val
		r.mu.Unlock()
		if !t.terminal(t.status(v)) {
			out = append(out, v)
		}
	}
	return out
}

func (t *table[T, S]) countActive(owner string) int {
	t.mu.RLock()
	ids := make([]string, 0, len(t.byOwner[owner]))
	for id := range t.byOwner[owner] {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if v, ok := t.get(id); ok && !t.terminal(t.status(v)) {
			n++
		}
	}
	return n
}

// prune forgets terminal rows last updated before cutoff.
func (t *table[T, S]) prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, r := range t.rows {
		r.mu.Lock()
		v := r.val
		r.mu.Unlock()
		if !t.terminal(t.status(v)) || !t.updatedAt(v).Before(cutoff) {
			continue
		}
		delete(t.rows, id)
		owner := t.owner(v)
		delete(t.byOwner[owner], id)
		if len(t.byOwner[owner]) == 0 {
			delete(t.byOwner, owner)
		}
		n++
	}
	return n
}

// Store holds every active (and recently resolved) listing and order. It
// is the only place their status changes.
type Store struct {
	repo     Repository
	listings *table[listing.Listing, listing.Status]
	orders   *table[buyorder.Order, buyorder.Status]
}

func NewStore(repo Repository) *Store {
	s := &Store{repo: repo}
	s.listings = &table[listing.Listing, listing.Status]{
		terminal:  listing.Status.Terminal,
		id:        listing.Listing.GetID,
		owner:     listing.Listing.OwnerID,
		status:    listing.Listing.CurrentStatus,
		updatedAt: func(l listing.Listing) time.Time { return l.UpdatedAt },
		withState: func(l listing.Listing, st listing.Status, now time.Time) listing.Listing {
			l.Status = st
			l.UpdatedAt = now
			return l
		},
		validate: listing.ValidateTransition,
		save:     repo.SaveListing,
	}
	s.orders = &table[buyorder.Order, buyorder.Status]{
		terminal:  buyorder.Status.Terminal,
		id:        buyorder.Order.GetID,
		owner:     buyorder.Order.OwnerID,
		status:    buyorder.Order.CurrentStatus,
		updatedAt: func(o buyorder.Order) time.Time { return o.UpdatedAt },
		withState: func(o buyorder.Order, st buyorder.Status, now time.Time) buyorder.Order {
			o.Status = st
			o.UpdatedAt = now
			return o
		},
		validate: buyorder.ValidateTransition,
		save:     repo.SaveOrder,
	}
	s.listings.init()
	s.orders.init()
	return s
}

// Load restores active entities from the repository.
func (s *Store) Load(ctx context.Context) error {
	listings, err := s.repo.ActiveListings(ctx)
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}
	orders, err := s.repo.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	for _, l := range listings {
		if err := s.listings.put(l); err != nil {
			return fmt.Errorf("restore listing %s: %w", l.ID, err)
		}
	}
	for _, o := range orders {
		if err := s.orders.put(o); err != nil {
			return fmt.Errorf("restore order %s: %w", o.ID, err)
		}
	}
	log.Printf("[Store] Restored %d listings and %d orders", len(listings), len(orders))
	return nil
}

func (s *Store) InsertListing(ctx context.Context, l listing.Listing) error {
	return s.listings.insert(ctx, l)
}

func (s *Store) Listing(id string) (listing.Listing, bool) {
	return s.listings.get(id)
}

// TransitionListing is the compare-and-set primitive for listings. The
// boolean is false when the current status is not `from`.
func (s *Store) TransitionListing(ctx context.Context, id string, from, to listing.Status, now time.Time) (listing.Listing, bool, error) {
	return s.listings.transition(ctx, id, from, to, now)
}

func (s *Store) ActiveListings() []listing.Listing {
	return s.listings.listActive()
}

func (s *Store) CountActiveListings(sellerID string) int {
	return s.listings.countActive(sellerID)
}

func (s *Store) InsertOrder(ctx context.Context, o buyorder.Order) error {
	return s.orders.insert(ctx, o)
}

func (s *Store) Order(id string) (buyorder.Order, bool) {
	return s.orders.get(id)
}

// TransitionOrder is the compare-and-set primitive for orders.
func (s *Store) TransitionOrder(ctx context.Context, id string, from, to buyorder.Status, now time.Time) (buyorder.Order, bool, error) {
	return s.orders.transition(ctx, id, from, to, now)
}

func (s *Store) ActiveOrders() []buyorder.Order {
	return s.orders.listActive()
}

func (s *Store) CountActiveOrders(buyerID string) int {
	return s.orders.countActive(buyerID)
}

// Prune drops resolved entities last touched before cutoff from memory.
// Their durable rows are kept.
func (s *Store) Prune(cutoff time.Time) int {
	return s.listings.prune(cutoff) + s.orders.prune(cutoff)
}
