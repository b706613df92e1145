package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payments struct {
	fail map[string]bool
	paid map[string]decimal.Decimal
}

func newPayments() *payments {
	return &payments{fail: map[string]bool{}, paid: map[string]decimal.Decimal{}}
}

func (p *payments) pay(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if p.fail[playerID] {
		return errors.New("economy offline")
	}
	p.paid[playerID] = p.paid[playerID].Add(amount)
	return nil
}

func newBook(t *testing.T) (*credits.Book, *store.Memory, *clock.Manual) {
	t.Helper()
	repo := store.NewMemory()
	clk := clock.NewManual(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	return credits.New(repo, clk), repo, clk
}

func TestBook_SettlePaysAndForgets(t *testing.T) {
	ctx := context.Background()
	b, repo, _ := newBook(t)
	require.NoError(t, b.Owe(ctx, "p1", decimal.NewFromInt(5), credits.ReasonDeposit))
	require.NoError(t, b.Owe(ctx, "p2", decimal.NewFromInt(7), credits.ReasonPayment))
	assert.True(t, b.Owed("p1").Equal(decimal.NewFromInt(5)))

	p := newPayments()
	p.fail["p2"] = true
	assert.Equal(t, 1, b.Settle(ctx, p.pay))
	assert.True(t, p.paid["p1"].Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Owed("p1").IsZero())
	assert.Equal(t, 1, b.Len())

	stored, err := repo.LoadCredits(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "p2", stored[0].PlayerID)

	p.fail["p2"] = false
	assert.Equal(t, 1, b.Settle(ctx, p.pay))
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Settle(ctx, p.pay))
}

func TestBook_LoadRestoresOwedCredits(t *testing.T) {
	ctx := context.Background()
	b, repo, clk := newBook(t)
	require.NoError(t, b.Owe(ctx, "p1", decimal.NewFromInt(3), credits.ReasonReservation))
	clk.Advance(time.Minute)
	require.NoError(t, b.Owe(ctx, "p1", decimal.NewFromInt(4), credits.ReasonDeposit))

	restored := credits.New(repo, clk)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 2, restored.Len())
	assert.True(t, restored.Owed("p1").Equal(decimal.NewFromInt(7)))
}

func TestBook_PersistFailureStillPaysInProcess(t *testing.T) {
	ctx := context.Background()
	b, repo, _ := newBook(t)
	repo.SaveErr = errors.New("disk full")

	assert.Error(t, b.Owe(ctx, "p1", decimal.NewFromInt(5), credits.ReasonDeposit))
	assert.True(t, b.Owed("p1").Equal(decimal.NewFromInt(5)))

	repo.SaveErr = nil
	p := newPayments()
	assert.Equal(t, 1, b.Settle(ctx, p.pay))
	assert.True(t, p.paid["p1"].Equal(decimal.NewFromInt(5)))
}
