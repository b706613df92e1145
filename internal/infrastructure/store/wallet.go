package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/market-engine/internal/escrow"
	"github.com/shopspring/decimal"
)

// Wallet is a balance provider backed by the player_balances table. It
// stands in for the game economy when the engine runs standalone.
type Wallet struct {
	db *DB
}

func NewWallet(db *DB) *Wallet {
	return &Wallet{db: db}
}

func (w *Wallet) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := w.db.queryRow(ctx, w.db.sql, `SELECT balance FROM player_balances WHERE player_id = ?`, playerID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load balance of %s: %w", playerID, err)
	}
	return bal, nil
}

// SetBalance overwrites a player's balance.
func (w *Wallet) SetBalance(ctx context.Context, playerID string, amount decimal.Decimal) error {
	_, err := w.db.exec(ctx, w.db.sql, `
		INSERT INTO player_balances (player_id, balance) VALUES (?, ?)
		ON CONFLICT (player_id) DO UPDATE SET balance = excluded.balance`,
		playerID, amount.String())
	if err != nil {
		return fmt.Errorf("set balance of %s: %w", playerID, err)
	}
	return nil
}

func (w *Wallet) Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return w.adjust(ctx, playerID, amount.Neg())
}

func (w *Wallet) Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return w.adjust(ctx, playerID, amount)
}

// adjust creates the balance row first so that the row lock taken by the
// following select also covers a player's very first movement.
func (w *Wallet) adjust(ctx context.Context, playerID string, delta decimal.Decimal) error {
	return w.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := w.db.exec(ctx, tx, `
			INSERT INTO player_balances (player_id, balance) VALUES (?, '0')
			ON CONFLICT (player_id) DO NOTHING`, playerID); err != nil {
			return fmt.Errorf("open balance of %s: %w", playerID, err)
		}

		var bal decimal.Decimal
		err := w.db.queryRow(ctx, tx,
			`SELECT balance FROM player_balances WHERE player_id = ?`+w.db.forUpdate(), playerID,
		).Scan(&bal)
		if err != nil {
			return fmt.Errorf("load balance of %s: %w", playerID, err)
		}
		next := bal.Add(delta)
		if next.IsNegative() {
			return escrow.ErrInsufficientFunds
		}
		if _, err := w.db.exec(ctx, tx,
			`UPDATE player_balances SET balance = ? WHERE player_id = ?`,
			next.String(), playerID); err != nil {
			return fmt.Errorf("store balance of %s: %w", playerID, err)
		}
		return nil
	})
}
