package market_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_ReservesTotal(t *testing.T) {
	h := newHarness(t)
	h.econ.SetBalance("buyer", money("250"))

	res, err := h.m.CreateOrder(context.Background(), market.CreateOrder{
		BuyerID:      "buyer",
		Template:     diamond,
		PricePerItem: money("10"),
		Quantity:     20,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	assertMoney(t, "50", h.econ.Balance("buyer"))
	o, ok := h.store.Order(res.ID)
	require.True(t, ok)
	assertMoney(t, "200", o.TotalReserved)
	assert.Equal(t, 1, o.Template.Quantity)
	assert.Equal(t, 20, o.Requested().Quantity)
	assert.Equal(t, []string{buyorder.EventOrderCreated}, h.journal.EventTypes(res.ID))
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		cmd     market.CreateOrder
		message string
	}{
		{"zero quantity", market.CreateOrder{BuyerID: "buyer", Template: diamond, PricePerItem: money("10")}, market.MsgOrderInvalidQuantity},
		{"negative price", market.CreateOrder{BuyerID: "buyer", Template: diamond, PricePerItem: money("-1"), Quantity: 1}, market.MsgOrderInvalidPrice},
		{"price below minimum", market.CreateOrder{BuyerID: "buyer", Template: diamond, PricePerItem: money("0.5"), Quantity: 1}, market.MsgOrderPriceTooLow},
		{"no funds", market.CreateOrder{BuyerID: "buyer", Template: diamond, PricePerItem: money("10"), Quantity: 1}, market.MsgEconomyInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res, err := h.m.CreateOrder(context.Background(), tt.cmd)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.message, res.Message)
			assert.Empty(t, h.m.ListActiveOrders(market.Query{}))
		})
	}
}

func TestCreateOrder_LimitPerBuyer(t *testing.T) {
	h := newHarness(t, func(cfg *market.Config, _ *market.Deps) {
		cfg.OrderLimit = 1
	})
	h.order(t, "buyer", diamond, "1", 1)
	h.econ.SetBalance("buyer", money("100"))

	res, err := h.m.CreateOrder(context.Background(), market.CreateOrder{BuyerID: "buyer", Template: diamond, PricePerItem: money("1"), Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, market.MsgOrderLimitReached, res.Message)
	assertMoney(t, "100", h.econ.Balance("buyer"))
}

func TestFulfillOrder_PaysFulfillerAndDeliversItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.order(t, "buyer", diamond, "10", 20)
	h.inv.Give("miner", diamond.WithQuantity(25))

	res, err := h.m.FulfillOrder(ctx, "miner", id)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	assertMoney(t, "200", h.econ.Balance("miner"))
	assert.Equal(t, 5, h.inv.Count("miner", diamond))
	assert.Equal(t, 20, h.inv.Count("buyer", diamond))

	o, _ := h.store.Order(id)
	assert.Equal(t, buyorder.StatusFulfilled, o.Status)
	assert.Equal(t, []string{market.NoteOrderFulfilled}, h.notes.Keys("buyer"))

	hist, err := h.m.GetHistory(ctx, "miner")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 20, hist[0].Item.Quantity)

	res, err = h.m.FulfillOrder(ctx, "other", id)
	require.NoError(t, err)
	assert.Equal(t, market.KindConflict, res.Kind)
}

func TestFulfillOrder_FullBuyerInventoryGoesToVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.order(t, "buyer", diamond, "10", 4)
	h.inv.Give("miner", diamond.WithQuantity(4))
	h.inv.SetFull("buyer", true)

	res, err := h.m.FulfillOrder(ctx, "miner", id)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	assertMoney(t, "40", h.econ.Balance("miner"))
	assert.Zero(t, h.inv.Count("buyer", diamond))
	assert.Equal(t, 4, h.m.CountPendingReturnItems("buyer"))
	assert.Equal(t, []string{market.NoteReturnsPending, market.NoteOrderFulfilled}, h.notes.Keys("buyer"))

	o, _ := h.store.Order(id)
	assert.Equal(t, buyorder.StatusFulfilled, o.Status)
}

func TestFulfillOrder_MissingItemsKeepsOrder(t *testing.T) {
	h := newHarness(t)
	id := h.order(t, "buyer", diamond, "10", 20)
	h.inv.Give("miner", diamond.WithQuantity(19))

	res, err := h.m.FulfillOrder(context.Background(), "miner", id)
	require.NoError(t, err)
	assert.Equal(t, market.MsgOrderMissingItems, res.Message)
	assert.Equal(t, 19, h.inv.Count("miner", diamond))
	assert.True(t, h.econ.Balance("miner").IsZero())

	o, _ := h.store.Order(id)
	assert.Equal(t, buyorder.StatusActive, o.Status)
}

func TestFulfillOrder_PaymentFailureReturnsItems(t *testing.T) {
	h := newHarness(t)
	id := h.order(t, "buyer", diamond, "10", 2)
	h.inv.Give("miner", diamond.WithQuantity(2))
	h.econ.FailDeposit("miner", errors.New("economy offline"))

	res, err := h.m.FulfillOrder(context.Background(), "miner", id)
	require.NoError(t, err)
	assert.Equal(t, market.KindEconomy, res.Kind)
	assert.Equal(t, 2, h.inv.Count("miner", diamond))
	assert.Zero(t, h.inv.Count("buyer", diamond))

	o, _ := h.store.Order(id)
	assert.Equal(t, buyorder.StatusActive, o.Status)
}

func TestFulfillOrder_OwnOrder(t *testing.T) {
	h := newHarness(t)
	id := h.order(t, "buyer", diamond, "10", 1)

	res, err := h.m.FulfillOrder(context.Background(), "buyer", id)
	require.NoError(t, err)
	assert.Equal(t, market.MsgOrderOwnOrder, res.Message)
}

func TestCancelOrder_ReleasesReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.order(t, "buyer", diamond, "10", 20)

	res, err := h.m.CancelOrder(ctx, "thief", id)
	require.NoError(t, err)
	assert.Equal(t, market.MsgOrderNotOwner, res.Message)

	res, err = h.m.CancelOrder(ctx, "buyer", id)
	require.NoError(t, err)
	require.True(t, res.Success)
	assertMoney(t, "200", h.econ.Balance("buyer"))

	res, err = h.m.CancelOrder(ctx, "buyer", id)
	require.NoError(t, err)
	assert.Equal(t, market.KindConflict, res.Kind)
	assertMoney(t, "200", h.econ.Balance("buyer"))
}
