package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/escrow"
	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/livequeue"
	"github.com/example/market-engine/internal/market"
	"github.com/example/market-engine/internal/mocks"
	"github.com/example/market-engine/internal/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	diamond = item.Stack{Material: "DIAMOND", DisplayName: "Diamond", Quantity: 3}
	stone   = item.Stack{Material: "STONE", Quantity: 1}
)

type harness struct {
	m       *market.Manager
	store   *market.Store
	repo    *store.Memory
	econ    *mocks.MockEconomy
	inv     *mocks.MockInventory
	notes   *mocks.MockNotifier
	journal *mocks.MockJournal
	vault   *vault.Vault
	credits *credits.Book
	ledger  *ledger.Service
	queue   *livequeue.Queue
	clk     *clock.Manual
}

type option func(*market.Config, *market.Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		repo:    store.NewMemory(),
		econ:    mocks.NewMockEconomy(),
		inv:     mocks.NewMockInventory(),
		notes:   mocks.NewMockNotifier(),
		journal: mocks.NewMockJournal(),
		clk:     clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
	}
	h.store = market.NewStore(h.repo)
	h.vault = vault.New(h.repo, h.clk)
	h.credits = credits.New(h.repo, h.clk)
	h.ledger = ledger.NewService(h.repo, h.clk)
	h.queue = livequeue.New(h.store, h.notes, h.clk)

	cfg := market.DefaultConfig()
	deps := market.Deps{
		Store:     h.store,
		Escrow:    escrow.NewAdapter(h.econ, escrow.WithTimeout(200*time.Millisecond)),
		Inventory: h.inv,
		Vault:     h.vault,
		Credits:   h.credits,
		Ledger:    h.ledger,
		Queue:     h.queue,
		Notifier:  h.notes,
		Journal:   h.journal,
		Clock:     h.clk,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.m = market.NewManager(cfg, deps)
	return h
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// list gives the seller the item and enough money for the deposit, then
// lists it.
func (h *harness) list(t *testing.T, sellerID string, stack item.Stack, price string) string {
	t.Helper()
	h.inv.Give(sellerID, stack)
	p := money(price)
	h.econ.SetBalance(sellerID, h.econ.Balance(sellerID).Add(h.m.Deposit(p)))
	res, err := h.m.CreateListing(context.Background(), market.CreateListing{
		SellerID: sellerID,
		Item:     stack,
		Price:    p,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	return res.ID
}

// order funds the buyer and opens a buy order.
func (h *harness) order(t *testing.T, buyerID string, template item.Stack, price string, qty int) string {
	t.Helper()
	p := money(price)
	h.econ.SetBalance(buyerID, h.econ.Balance(buyerID).Add(p.Mul(decimal.NewFromInt(int64(qty)))))
	res, err := h.m.CreateOrder(context.Background(), market.CreateOrder{
		BuyerID:      buyerID,
		Template:     template,
		PricePerItem: p,
		Quantity:     qty,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	return res.ID
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, money(want).Equal(got), "want %s, got %s", want, got)
}
