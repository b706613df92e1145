package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/escrow"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var diamond = item.Stack{Material: "DIAMOND", DisplayName: "Shiny", Meta: `{"ench":1}`, Quantity: 5}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestSQLRepository_Listings(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))
	now := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	l := listing.Listing{
		ID:        "l-1",
		SellerID:  "seller",
		Item:      diamond,
		Price:     decimal.RequireFromString("100.50"),
		Deposit:   decimal.RequireFromString("5.03"),
		Live:      true,
		Status:    listing.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(48 * time.Hour),
		UpdatedAt: now,
	}
	require.NoError(t, repo.SaveListing(ctx, l))

	active, err := repo.ActiveListings(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	got := active[0]
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, diamond, got.Item)
	assert.True(t, got.Price.Equal(l.Price))
	assert.True(t, got.Deposit.Equal(l.Deposit))
	assert.True(t, got.Live)
	assert.True(t, got.ExpiresAt.Equal(l.ExpiresAt))

	l.Status = listing.StatusSold
	l.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.SaveListing(ctx, l))

	active, err = repo.ActiveListings(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// compensation puts it back
	l.Status = listing.StatusActive
	require.NoError(t, repo.SaveListing(ctx, l))
	active, err = repo.ActiveListings(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLRepository_Orders(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))
	now := time.Now().UTC()

	o := buyorder.Order{
		ID:            "o-1",
		BuyerID:       "buyer",
		Template:      diamond.WithQuantity(1),
		PricePerItem:  decimal.NewFromInt(10),
		Quantity:      20,
		TotalReserved: decimal.NewFromInt(200),
		Status:        buyorder.StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
		UpdatedAt:     now,
	}
	require.NoError(t, repo.SaveOrder(ctx, o))

	active, err := repo.ActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 20, active[0].Quantity)
	assert.True(t, active[0].TotalReserved.Equal(decimal.NewFromInt(200)))

	o.Status = buyorder.StatusCancelled
	require.NoError(t, repo.SaveOrder(ctx, o))
	active, err = repo.ActiveOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSQLRepository_Returns(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))
	now := time.Now().UTC()

	for i, id := range []string{"r-1", "r-2", "r-3"} {
		require.NoError(t, repo.InsertReturn(ctx, vault.Return{
			ID:        id,
			OwnerID:   "p1",
			Item:      diamond.WithQuantity(i + 1),
			Reason:    vault.ReasonPurchase,
			CreatedAt: now,
		}))
	}
	require.NoError(t, repo.DeleteReturn(ctx, "r-1"))
	require.NoError(t, repo.UpdateReturnQuantity(ctx, "r-2", 1))

	got, err := repo.LoadReturns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r-2", got[0].ID)
	assert.Equal(t, 1, got[0].Item.Quantity)
	assert.Equal(t, "r-3", got[1].ID)
	assert.Equal(t, vault.ReasonPurchase, got[1].Reason)
}

func TestSQLRepository_Ledger(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))

	for _, id := range []string{"e-1", "e-2", "e-3", "e-4"} {
		require.NoError(t, repo.AppendEntry(ctx, ledger.Entry{
			ID:            id,
			OwnerID:       "p1",
			Direction:     ledger.DirectionBuy,
			Item:          diamond,
			Price:         decimal.NewFromInt(1),
			CounterpartID: "p2",
			Timestamp:     time.Now().UTC(),
		}))
	}
	require.NoError(t, repo.AppendEntry(ctx, ledger.Entry{ID: "other", OwnerID: "p2", Direction: ledger.DirectionSell, Item: diamond, Price: decimal.NewFromInt(1)}))

	require.NoError(t, repo.TrimEntries(ctx, "p1", 2))

	got, err := repo.History(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-4", got[0].ID)
	assert.Equal(t, "e-3", got[1].ID)

	other, err := repo.History(ctx, "p2", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLEventStore(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	es := NewSQLEventStore(openTestDB(t), pub)

	_, err := es.Append(ctx, "l-1", listing.AggregateType, listing.EventListingCreated, map[string]string{"a": "b"})
	require.NoError(t, err)
	e2, err := es.Append(ctx, "l-1", listing.AggregateType, listing.EventListingSold, map[string]string{"c": "d"})
	require.NoError(t, err)
	assert.Equal(t, 2, e2.Version)
	_, err = es.Append(ctx, "l-2", listing.AggregateType, listing.EventListingCreated, nil)
	require.NoError(t, err)

	events, err := es.GetEvents(ctx, "l-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, listing.EventListingSold, events[1].EventType)
	assert.JSONEq(t, `{"c":"d"}`, string(events[1].Data))

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, []string{"l-1", "l-1", "l-2"}, pub.keys)
}

func TestWallet(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(openTestDB(t))

	bal, err := w.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, w.SetBalance(ctx, "p1", decimal.NewFromInt(100)))
	require.NoError(t, w.Withdraw(ctx, "p1", decimal.RequireFromString("30.25")))
	assert.ErrorIs(t, w.Withdraw(ctx, "p1", decimal.NewFromInt(100)), escrow.ErrInsufficientFunds)
	require.NoError(t, w.Deposit(ctx, "p2", decimal.NewFromInt(5)))

	bal, err = w.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("69.75")), bal.String())

	bal, err = w.Balance(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(5)))
}

func TestWallet_ConcurrentFirstDeposits(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(openTestDB(t))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Deposit(ctx, "fresh", decimal.NewFromInt(5)))
		}()
	}
	wg.Wait()

	bal, err := w.Balance(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)), bal.String())
}

func TestWallet_FailedWithdrawLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	w := NewWallet(db)

	assert.ErrorIs(t, w.Withdraw(ctx, "nobody", decimal.NewFromInt(1)), escrow.ErrInsufficientFunds)

	var n int
	require.NoError(t, db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_balances`).Scan(&n))
	assert.Zero(t, n)
}

func TestInventory_Capacity(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory(openTestDB(t), 2)

	room, err := inv.Capacity(ctx, "p1", diamond)
	require.NoError(t, err)
	assert.Equal(t, 2*MaxStackSize, room)

	require.NoError(t, inv.TryDeliver(ctx, "p1", diamond.WithQuantity(60)))
	room, err = inv.Capacity(ctx, "p1", diamond)
	require.NoError(t, err)
	assert.Equal(t, 4+MaxStackSize, room)

	stone := item.Stack{Material: "STONE", Quantity: 1}
	room, err = inv.Capacity(ctx, "p1", stone)
	require.NoError(t, err)
	assert.Equal(t, MaxStackSize, room)

	require.NoError(t, inv.TryDeliver(ctx, "p1", stone))
	room, err = inv.Capacity(ctx, "p1", diamond)
	require.NoError(t, err)
	assert.Equal(t, 4, room)
}

func TestSQLRepository_Credits(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	first := credits.Credit{ID: "c1", PlayerID: "p1", Amount: decimal.RequireFromString("5.25"), Reason: credits.ReasonDeposit, CreatedAt: now}
	second := credits.Credit{ID: "c2", PlayerID: "p2", Amount: decimal.NewFromInt(7), Reason: credits.ReasonPayment, CreatedAt: now.Add(time.Second)}
	require.NoError(t, repo.InsertCredit(ctx, first))
	require.NoError(t, repo.InsertCredit(ctx, second))

	loaded, err := repo.LoadCredits(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "c1", loaded[0].ID)
	assert.True(t, loaded[0].Amount.Equal(first.Amount))
	assert.Equal(t, credits.ReasonDeposit, loaded[0].Reason)
	assert.True(t, loaded[0].CreatedAt.Equal(now))

	require.NoError(t, repo.DeleteCredit(ctx, "c1"))
	loaded, err = repo.LoadCredits(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "p2", loaded[0].PlayerID)
}

func TestInventory_DeliverMergesAndSpills(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory(openTestDB(t), 2)

	require.NoError(t, inv.TryDeliver(ctx, "p1", diamond.WithQuantity(60)))
	require.NoError(t, inv.TryDeliver(ctx, "p1", diamond.WithQuantity(10)))

	items, err := inv.Items(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 64, items[0].Quantity)
	assert.Equal(t, 6, items[1].Quantity)

	// only 58 units of room left
	assert.ErrorIs(t, inv.TryDeliver(ctx, "p1", diamond.WithQuantity(59)), item.ErrInsufficientSpace)
	assert.ErrorIs(t, inv.TryDeliver(ctx, "p1", item.Stack{Material: "STONE", Quantity: 1}), item.ErrInsufficientSpace)

	items, err = inv.Items(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, items[1].Quantity)
}

func TestInventory_RemoveExact(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory(openTestDB(t), 0)

	require.NoError(t, inv.TryDeliver(ctx, "p1", diamond.WithQuantity(70)))
	assert.ErrorIs(t, inv.RemoveExact(ctx, "p1", diamond.WithQuantity(71)), item.ErrInsufficientQuantity)

	// a different meta is a different item
	other := diamond
	other.Meta = ""
	assert.ErrorIs(t, inv.RemoveExact(ctx, "p1", other.WithQuantity(1)), item.ErrInsufficientQuantity)

	require.NoError(t, inv.RemoveExact(ctx, "p1", diamond.WithQuantity(66)))
	items, err := inv.Items(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
}

func TestMemory_Ledger(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.AppendEntry(ctx, ledger.Entry{ID: id, OwnerID: "p1"}))
	}
	require.NoError(t, m.TrimEntries(ctx, "p1", 2))

	got, err := m.History(ctx, "p1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.keys = append(p.keys, key)
	return nil
}
