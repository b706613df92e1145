package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireDue_ExpiresOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lid := h.list(t, "seller", diamond, "100")
	oid := h.order(t, "buyer", diamond, "10", 20)

	assert.Equal(t, market.SweepStats{}, h.m.ExpireDue(ctx))

	h.clk.Advance(48 * time.Hour)
	stats := h.m.ExpireDue(ctx)
	assert.Equal(t, 1, stats.Listings)
	assert.Equal(t, 1, stats.Orders)

	l, _ := h.store.Listing(lid)
	assert.Equal(t, listing.StatusExpired, l.Status)
	o, _ := h.store.Order(oid)
	assert.Equal(t, buyorder.StatusExpired, o.Status)

	assertMoney(t, "5", h.econ.Balance("seller"))
	assert.Equal(t, 3, h.inv.Count("seller", diamond))
	assertMoney(t, "200", h.econ.Balance("buyer"))
	assert.Equal(t, []string{market.NoteListingExpired}, h.notes.Keys("seller"))
	assert.Equal(t, []string{market.NoteOrderExpired}, h.notes.Keys("buyer"))

	again := h.m.ExpireDue(ctx)
	assert.Zero(t, again.Listings)
	assert.Zero(t, again.Orders)
	assertMoney(t, "5", h.econ.Balance("seller"))
	assert.Equal(t, 1, h.journal.Count(listing.EventListingExpired))
}

func TestExpireDue_RefundFailureRetriesNextSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lid := h.list(t, "seller", diamond, "100")
	h.clk.Advance(49 * time.Hour)
	h.econ.FailDeposit("seller", errors.New("economy offline"))

	assert.Zero(t, h.m.ExpireDue(ctx).Listings)
	l, _ := h.store.Listing(lid)
	assert.Equal(t, listing.StatusActive, l.Status)

	h.econ.FailDeposit("seller", nil)
	assert.Equal(t, 1, h.m.ExpireDue(ctx).Listings)
}

func TestExpireDue_FullInventorySendsItemToVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lid := h.list(t, "seller", diamond, "100")
	h.inv.SetFull("seller", true)
	h.clk.Advance(49 * time.Hour)

	assert.Equal(t, 1, h.m.ExpireDue(ctx).Listings)

	l, _ := h.store.Listing(lid)
	assert.Equal(t, listing.StatusExpired, l.Status)
	assertMoney(t, "5", h.econ.Balance("seller"))
	assert.Zero(t, h.inv.Count("seller", diamond))
	assert.Equal(t, 3, h.m.CountPendingReturnItems("seller"))
	assert.Equal(t, []string{market.NoteReturnsPending, market.NoteListingExpired}, h.notes.Keys("seller"))

	h.inv.SetFull("seller", false)
	claim, err := h.m.Claim(ctx, "seller")
	require.NoError(t, err)
	require.True(t, claim.Success, claim.Message)
	assert.Equal(t, 3, h.inv.Count("seller", diamond))
	assert.Zero(t, h.m.CountPendingReturnItems("seller"))
}

func TestExpireDue_PrunesAfterRetention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lid := h.list(t, "seller", diamond, "100")
	_, err := h.m.CancelListing(ctx, "seller", lid)
	require.NoError(t, err)

	h.clk.Advance(23 * time.Hour)
	assert.Zero(t, h.m.ExpireDue(ctx).Pruned)
	_, ok := h.store.Listing(lid)
	assert.True(t, ok)

	h.clk.Advance(2 * time.Hour)
	assert.Equal(t, 1, h.m.ExpireDue(ctx).Pruned)
	_, ok = h.store.Listing(lid)
	assert.False(t, ok)
}

func TestPurchaseListing_ExpiredBeforeSweep(t *testing.T) {
	h := newHarness(t)
	lid := h.list(t, "seller", diamond, "100")
	h.econ.SetBalance("buyer", money("100"))
	h.clk.Advance(48 * time.Hour)

	assert.Empty(t, h.m.ListActiveListings(market.Query{}))

	res, err := h.m.PurchaseListing(context.Background(), "buyer", lid)
	require.NoError(t, err)
	assert.Equal(t, market.KindNotFound, res.Kind)
	assertMoney(t, "100", h.econ.Balance("buyer"))

	l, _ := h.store.Listing(lid)
	assert.Equal(t, listing.StatusExpired, l.Status)
	assert.Equal(t, 3, h.inv.Count("seller", diamond))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- market.NewSweeper(h.m, 10*time.Millisecond).Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
