// Package livequeue broadcasts listings flagged as live, one per tick, in
// the order they were created.
package livequeue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/domain/listing"
)

type Entry struct {
	ListingID  string    `json:"listing_id"`
	SellerID   string    `json:"seller_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Lookup resolves the current state of a listing.
type Lookup interface {
	Listing(id string) (listing.Listing, bool)
}

type Announcer interface {
	Announce(ctx context.Context, l listing.Listing) error
}

type Queue struct {
	lookup    Lookup
	announcer Announcer
	clock     clock.Clock

	mu      sync.Mutex
	entries []Entry
}

func New(lookup Lookup, announcer Announcer, clk clock.Clock) *Queue {
	return &Queue{lookup: lookup, announcer: announcer, clock: clk}
}

func (q *Queue) Enqueue(listingID, sellerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, Entry{
		ListingID:  listingID,
		SellerID:   sellerID,
		EnqueuedAt: q.clock.Now(),
	})
}

// Remove drops the entry for listingID, if queued.
func (q *Queue) Remove(listingID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ListingID == listingID {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns the queue in broadcast order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain pops entries until one still-active listing has been broadcast or
// the queue is empty. Entries whose listing is gone, resolved or past its
// expiry are dropped silently. It reports whether a broadcast happened.
func (q *Queue) Drain(ctx context.Context) bool {
	for {
		e, ok := q.pop()
		if !ok {
			return false
		}

		l, found := q.lookup.Listing(e.ListingID)
		if !found || l.Status != listing.StatusActive || l.ExpiredAt(q.clock.Now()) {
			continue
		}

		if err := q.announcer.Announce(ctx, l); err != nil {
			log.Printf("[LiveQueue] Failed to announce listing %s: %v", l.ID, err)
		}
		return true
	}
}

// Run drains one broadcast per interval until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[LiveQueue] Broadcasting every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

func (q *Queue) pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}
