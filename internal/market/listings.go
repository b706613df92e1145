package market

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/vault"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateListing struct {
	SellerID string          `json:"seller_id"`
	Item     item.Stack      `json:"item"`
	Price    decimal.Decimal `json:"price"`
	Duration time.Duration   `json:"duration"`
	Live     bool            `json:"live"`
}

// Deposit is the escrow a seller pays to list at price.
func (m *Manager) Deposit(price decimal.Decimal) decimal.Decimal {
	return price.Mul(m.cfg.DepositFraction).Round(2)
}

// CreateListing escrows the deposit, takes the item from the seller and
// publishes the listing.
func (m *Manager) CreateListing(ctx context.Context, cmd CreateListing) (Result, error) {
	if err := cmd.Item.Validate(); err != nil {
		return failed(KindValidation, MsgListingInvalidItem), nil
	}
	if cmd.Price.LessThan(m.cfg.MinimumPrice) || !cmd.Price.IsPositive() {
		return failed(KindValidation, MsgListingPriceTooLow), nil
	}

	unlock := m.owners.Lock("listing:" + cmd.SellerID)
	defer unlock()

	limit := m.limits.ResolveLimit(cmd.SellerID, m.cfg.ListingLimit)
	if m.store.CountActiveListings(cmd.SellerID) >= limit {
		return failed(KindPermission, MsgListingLimitReached), nil
	}

	deposit := m.Deposit(cmd.Price)
	if err := m.escrow.Reserve(ctx, cmd.SellerID, deposit); err != nil {
		return economyFailure(err), nil
	}

	if err := m.inventory.RemoveExact(ctx, cmd.SellerID, cmd.Item); err != nil {
		m.releaseOrOwe(ctx, cmd.SellerID, deposit, credits.ReasonDeposit)
		return failed(KindValidation, MsgListingItemMissing), nil
	}

	now := m.clock.Now()
	l := listing.Listing{
		ID:        uuid.New().String(),
		SellerID:  cmd.SellerID,
		Item:      cmd.Item,
		Price:     cmd.Price,
		Deposit:   deposit,
		Live:      cmd.Live,
		Status:    listing.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(m.duration(cmd.Duration)),
		UpdatedAt: now,
	}
	if err := m.store.InsertListing(ctx, l); err != nil {
		log.Printf("[Market] Failed to store listing for %s: %v", cmd.SellerID, err)
		if derr := m.deliver(ctx, cmd.SellerID, cmd.Item, vault.ReasonReturned); derr != nil {
			log.Printf("[Market] Item of failed listing for %s could not be returned: %v", cmd.SellerID, derr)
		}
		m.releaseOrOwe(ctx, cmd.SellerID, deposit, credits.ReasonDeposit)
		return internalFailure(), err
	}

	if l.Live && m.queue != nil {
		m.queue.Enqueue(l.ID, l.SellerID)
	}
	m.record(ctx, l.ID, listing.AggregateType, listing.EventListingCreated, listing.ListingCreated{
		ListingID: l.ID,
		SellerID:  l.SellerID,
		Item:      l.Item,
		Price:     l.Price,
		Deposit:   l.Deposit,
		Live:      l.Live,
		ExpiresAt: l.ExpiresAt,
		CreatedAt: l.CreatedAt,
	})
	return succeeded(MsgListingCreated, l.ID), nil
}

// PurchaseListing sells the listing to buyerID. Exactly one of any number
// of concurrent purchases, cancels and expiries can win the listing.
func (m *Manager) PurchaseListing(ctx context.Context, buyerID, listingID string) (Result, error) {
	l, ok := m.store.Listing(listingID)
	if !ok {
		return failed(KindNotFound, MsgListingNotFound), nil
	}
	if l.SellerID == buyerID {
		return failed(KindPermission, MsgListingOwnListing), nil
	}
	if l.Status == listing.StatusActive && l.ExpiredAt(m.clock.Now()) {
		if _, err := m.expireListing(ctx, l); err != nil {
			log.Printf("[Market] Lazy expiry of listing %s failed: %v", l.ID, err)
		}
		return failed(KindNotFound, MsgListingNotFound), nil
	}

	sold, won, err := m.store.TransitionListing(ctx, listingID, listing.StatusActive, listing.StatusSold, m.clock.Now())
	if err != nil {
		return internalFailure(), err
	}
	if !won {
		return failed(KindConflict, MsgListingUnavailable), nil
	}

	if err := m.escrow.Reserve(ctx, buyerID, sold.Price); err != nil {
		m.revertListing(ctx, sold.ID, listing.StatusSold)
		return economyFailure(err), nil
	}
	if err := m.escrow.Settle(ctx, buyerID, sold.SellerID, sold.Price); err != nil {
		m.releaseOrOwe(ctx, buyerID, sold.Price, credits.ReasonPayment)
		m.revertListing(ctx, sold.ID, listing.StatusSold)
		return economyFailure(err), nil
	}

	// the sale stands from here on; remaining failures are logged, not rolled back
	m.refundDeposit(ctx, sold)
	deliverErr := m.deliver(ctx, buyerID, sold.Item, vault.ReasonPurchase)
	m.dequeue(sold.ID)

	now := m.clock.Now()
	m.ledger.Record(ctx, ledger.Entry{
		OwnerID:       buyerID,
		Direction:     ledger.DirectionBuy,
		Item:          sold.Item,
		Price:         sold.Price,
		CounterpartID: sold.SellerID,
		Timestamp:     now,
	})
	m.ledger.Record(ctx, ledger.Entry{
		OwnerID:       sold.SellerID,
		Direction:     ledger.DirectionSell,
		Item:          sold.Item,
		Price:         sold.Price,
		CounterpartID: buyerID,
		Timestamp:     now,
	})
	m.notify(ctx, sold.SellerID, NoteListingSold, map[string]string{
		"listing_id": sold.ID,
		"item":       sold.Item.Name(),
		"quantity":   strconv.Itoa(sold.Item.Quantity),
		"price":      sold.Price.String(),
		"buyer_id":   buyerID,
	})
	m.record(ctx, sold.ID, listing.AggregateType, listing.EventListingSold, listing.ListingSold{
		ListingID: sold.ID,
		SellerID:  sold.SellerID,
		BuyerID:   buyerID,
		Price:     sold.Price,
		SoldAt:    now,
	})
	return succeeded(MsgListingPurchased, sold.ID), deliverErr
}

// CancelListing withdraws a listing, refunding the deposit and returning
// the item to its seller.
func (m *Manager) CancelListing(ctx context.Context, sellerID, listingID string) (Result, error) {
	l, ok := m.store.Listing(listingID)
	if !ok {
		return failed(KindNotFound, MsgListingNotFound), nil
	}
	if l.SellerID != sellerID {
		return failed(KindPermission, MsgListingNotOwner), nil
	}

	cancelled, won, err := m.store.TransitionListing(ctx, listingID, listing.StatusActive, listing.StatusCancelled, m.clock.Now())
	if err != nil {
		return internalFailure(), err
	}
	if !won {
		return failed(KindConflict, MsgListingUnavailable), nil
	}

	if err := m.escrow.Credit(ctx, sellerID, cancelled.Deposit); err != nil {
		m.revertListing(ctx, cancelled.ID, listing.StatusCancelled)
		return economyFailure(err), nil
	}
	deliverErr := m.deliver(ctx, sellerID, cancelled.Item, vault.ReasonCancelled)
	m.dequeue(cancelled.ID)

	m.record(ctx, cancelled.ID, listing.AggregateType, listing.EventListingCancelled, listing.ListingCancelled{
		ListingID:   cancelled.ID,
		SellerID:    sellerID,
		CancelledAt: cancelled.UpdatedAt,
	})
	return succeeded(MsgListingCancelled, cancelled.ID), deliverErr
}

// expireListing resolves an overdue listing the way a cancel would. It
// reports whether this call won the transition.
func (m *Manager) expireListing(ctx context.Context, l listing.Listing) (bool, error) {
	expired, won, err := m.store.TransitionListing(ctx, l.ID, listing.StatusActive, listing.StatusExpired, m.clock.Now())
	if err != nil || !won {
		return false, err
	}

	if err := m.escrow.Credit(ctx, expired.SellerID, expired.Deposit); err != nil {
		log.Printf("[Market] Deposit refund for expired listing %s failed, keeping it active: %v", expired.ID, err)
		m.revertListing(ctx, expired.ID, listing.StatusExpired)
		return false, nil
	}
	deliverErr := m.deliver(ctx, expired.SellerID, expired.Item, vault.ReasonExpired)
	m.dequeue(expired.ID)

	m.notify(ctx, expired.SellerID, NoteListingExpired, map[string]string{
		"listing_id": expired.ID,
		"item":       expired.Item.Name(),
		"quantity":   strconv.Itoa(expired.Item.Quantity),
	})
	m.record(ctx, expired.ID, listing.AggregateType, listing.EventListingExpired, listing.ListingExpired{
		ListingID: expired.ID,
		SellerID:  expired.SellerID,
		ExpiredAt: expired.UpdatedAt,
	})
	return true, deliverErr
}

// revertListing undoes a transition won by the caller.
func (m *Manager) revertListing(ctx context.Context, id string, from listing.Status) {
	_, ok, err := m.store.TransitionListing(ctx, id, from, listing.StatusActive, m.clock.Now())
	if err != nil || !ok {
		log.Printf("[Market] Failed to revert listing %s from %s: ok=%v err=%v", id, from, ok, err)
	}
}

// refundDeposit credits the seller's deposit after a sale, retrying once.
// If both attempts fail the deposit is owed and paid by a later sweep.
func (m *Manager) refundDeposit(ctx context.Context, l listing.Listing) {
	err := m.escrow.Credit(ctx, l.SellerID, l.Deposit)
	if err == nil {
		return
	}
	if err = m.escrow.Credit(ctx, l.SellerID, l.Deposit); err != nil {
		log.Printf("[Market] Deposit refund of %s to %s for sold listing %s failed, owing it: %v", l.Deposit, l.SellerID, l.ID, err)
		m.owe(ctx, l.SellerID, l.Deposit, credits.ReasonDeposit)
	}
}

// releaseOrOwe hands reserved money back, owing it when the release fails.
func (m *Manager) releaseOrOwe(ctx context.Context, playerID string, amount decimal.Decimal, reason credits.Reason) {
	if err := m.escrow.Release(ctx, playerID, amount); err != nil {
		log.Printf("[Market] Failed to release %s to %s (%s), owing it: %v", amount, playerID, reason, err)
		m.owe(ctx, playerID, amount, reason)
	}
}
