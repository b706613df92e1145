// Package escrow moves marketplace money through an external balance
// provider. No balance is cached here; every call goes to the provider and
// is bounded by a hard timeout.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrTimeout           = errors.New("economy provider timed out")
)

const defaultTimeout = 3 * time.Second

// Provider is the external balance provider.
type Provider interface {
	Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error
	Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error
}

type Adapter struct {
	provider Provider
	timeout  time.Duration
}

type Option func(*Adapter)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAdapter(p Provider, opts ...Option) *Adapter {
	a := &Adapter{provider: p, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reserve debits amount from the player and holds it as escrow.
func (a *Adapter) Reserve(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return a.call(ctx, "reserve", playerID, amount, a.provider.Withdraw)
}

// Release credits back an escrow that was never spent.
func (a *Adapter) Release(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return a.call(ctx, "release", playerID, amount, a.provider.Deposit)
}

// Settle converts escrow held on behalf of from into a payment to to.
func (a *Adapter) Settle(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if err := a.call(ctx, "settle", to, amount, a.provider.Deposit); err != nil {
		return fmt.Errorf("settle escrow of %s: %w", from, err)
	}
	return nil
}

// Credit pays amount out to the player directly.
func (a *Adapter) Credit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return a.call(ctx, "credit", playerID, amount, a.provider.Deposit)
}

type providerFunc func(ctx context.Context, playerID string, amount decimal.Decimal) error

func (a *Adapter) call(ctx context.Context, op, playerID string, amount decimal.Decimal, fn providerFunc) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx, playerID, amount)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return fmt.Errorf("%s %s for %s: %w", op, amount, playerID, err)
	case <-ctx.Done():
		log.Printf("[Escrow] %s %s for %s abandoned: %v", op, amount, playerID, ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s for %s: %w", op, amount, playerID, ErrTimeout)
		}
		return fmt.Errorf("%s %s for %s: %w", op, amount, playerID, ctx.Err())
	}
}
