package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/market-engine/internal/escrow"
	"github.com/shopspring/decimal"
)

// Transfer records a single provider call.
type Transfer struct {
	PlayerID string
	Amount   decimal.Decimal
}

// MockEconomy is an in-memory escrow.Provider for tests
type MockEconomy struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal

	// For tracking calls in tests
	Withdrawals []Transfer
	Deposits    []Transfer

	// Per-player failure injection
	WithdrawErr map[string]error
	DepositErr  map[string]error
	// depositsLeft lets that many deposits through before DepositErr applies
	depositsLeft map[string]int
	// Delay is applied before every call; calls honour ctx while waiting
	Delay time.Duration
}

func NewMockEconomy() *MockEconomy {
	return &MockEconomy{
		balances:    make(map[string]decimal.Decimal),
		WithdrawErr: make(map[string]error),
		DepositErr:  make(map[string]error),

		depositsLeft: make(map[string]int),
	}
}

func (m *MockEconomy) SetBalance(playerID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = amount
}

func (m *MockEconomy) Balance(playerID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[playerID]
}

// FailWithdraw makes every withdrawal for playerID return err.
func (m *MockEconomy) FailWithdraw(playerID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.WithdrawErr, playerID)
		return
	}
	m.WithdrawErr[playerID] = err
}

// FailDeposit makes every deposit for playerID return err.
func (m *MockEconomy) FailDeposit(playerID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.depositsLeft, playerID)
	if err == nil {
		delete(m.DepositErr, playerID)
		return
	}
	m.DepositErr[playerID] = err
}

// FailDepositAfter lets ok more deposits for playerID succeed, then fails
// every following one with err.
func (m *MockEconomy) FailDepositAfter(playerID string, ok int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DepositErr[playerID] = err
	m.depositsLeft[playerID] = ok
}

func (m *MockEconomy) Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.WithdrawErr[playerID]; err != nil {
		return err
	}
	if m.balances[playerID].LessThan(amount) {
		return escrow.ErrInsufficientFunds
	}
	m.balances[playerID] = m.balances[playerID].Sub(amount)
	m.Withdrawals = append(m.Withdrawals, Transfer{PlayerID: playerID, Amount: amount})
	return nil
}

func (m *MockEconomy) Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.DepositErr[playerID]; err != nil {
		left, ok := m.depositsLeft[playerID]
		if !ok || left == 0 {
			return err
		}
		m.depositsLeft[playerID] = left - 1
	}
	m.balances[playerID] = m.balances[playerID].Add(amount)
	m.Deposits = append(m.Deposits, Transfer{PlayerID: playerID, Amount: amount})
	return nil
}

// DepositsTo sums every successful deposit made to playerID.
func (m *MockEconomy) DepositsTo(playerID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, d := range m.Deposits {
		if d.PlayerID == playerID {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// WithdrawalsFrom sums every successful withdrawal made from playerID.
func (m *MockEconomy) WithdrawalsFrom(playerID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, w := range m.Withdrawals {
		if w.PlayerID == playerID {
			total = total.Add(w.Amount)
		}
	}
	return total
}

func (m *MockEconomy) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
