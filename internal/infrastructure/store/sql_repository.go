package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/domain/listing"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/vault"
)

// SQLRepository persists listings, buy orders, pending returns, owed
// credits and the trade ledger.
type SQLRepository struct {
	db *DB
}

func NewSQLRepository(db *DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func encodeStack(s item.Stack) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStack(raw string) (item.Stack, error) {
	var s item.Stack
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

func (r *SQLRepository) SaveListing(ctx context.Context, l listing.Listing) error {
	stack, err := encodeStack(l.Item)
	if err != nil {
		return fmt.Errorf("encode listing item: %w", err)
	}
	live := 0
	if l.Live {
		live = 1
	}
	_, err = r.db.exec(ctx, r.db.sql, `
		INSERT INTO listings (id, seller_id, item, price, deposit, live, status, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		l.ID, l.SellerID, stack, l.Price.String(), l.Deposit.String(), live, string(l.Status),
		toNanos(l.CreatedAt), toNanos(l.ExpiresAt), toNanos(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save listing %s: %w", l.ID, err)
	}
	return nil
}

func (r *SQLRepository) ActiveListings(ctx context.Context) ([]listing.Listing, error) {
	rows, err := r.db.query(ctx, r.db.sql, `
		SELECT id, seller_id, item, price, deposit, live, status, created_at, expires_at, updated_at
		FROM listings WHERE status = ? ORDER BY created_at`, string(listing.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		var (
			l                             listing.Listing
			stack, status                 string
			live                          int
			created, expires, updatedNano int64
		)
		if err := rows.Scan(&l.ID, &l.SellerID, &stack, &l.Price, &l.Deposit, &live, &status, &created, &expires, &updatedNano); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if l.Item, err = decodeStack(stack); err != nil {
			return nil, fmt.Errorf("decode listing %s item: %w", l.ID, err)
		}
		l.Live = live != 0
		l.Status = listing.Status(status)
		l.CreatedAt = fromNanos(created)
		l.ExpiresAt = fromNanos(expires)
		l.UpdatedAt = fromNanos(updatedNano)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLRepository) SaveOrder(ctx context.Context, o buyorder.Order) error {
	tmpl, err := encodeStack(o.Template)
	if err != nil {
		return fmt.Errorf("encode order template: %w", err)
	}
	_, err = r.db.exec(ctx, r.db.sql, `
		INSERT INTO buy_orders (id, buyer_id, template, price_per_item, quantity, total_reserved, status, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		o.ID, o.BuyerID, tmpl, o.PricePerItem.String(), o.Quantity, o.TotalReserved.String(), string(o.Status),
		toNanos(o.CreatedAt), toNanos(o.ExpiresAt), toNanos(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (r *SQLRepository) ActiveOrders(ctx context.Context) ([]buyorder.Order, error) {
	rows, err := r.db.query(ctx, r.db.sql, `
		SELECT id, buyer_id, template, price_per_item, quantity, total_reserved, status, created_at, expires_at, updated_at
		FROM buy_orders WHERE status = ? ORDER BY created_at`, string(buyorder.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []buyorder.Order
	for rows.Next() {
		var (
			o                             buyorder.Order
			tmpl, status                  string
			created, expires, updatedNano int64
		)
		if err := rows.Scan(&o.ID, &o.BuyerID, &tmpl, &o.PricePerItem, &o.Quantity, &o.TotalReserved, &status, &created, &expires, &updatedNano); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Template, err = decodeStack(tmpl); err != nil {
			return nil, fmt.Errorf("decode order %s template: %w", o.ID, err)
		}
		o.Status = buyorder.Status(status)
		o.CreatedAt = fromNanos(created)
		o.ExpiresAt = fromNanos(expires)
		o.UpdatedAt = fromNanos(updatedNano)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLRepository) InsertReturn(ctx context.Context, ret vault.Return) error {
	stack, err := encodeStack(ret.Item)
	if err != nil {
		return fmt.Errorf("encode return item: %w", err)
	}
	_, err = r.db.exec(ctx, r.db.sql, `
		INSERT INTO pending_returns (id, owner_id, item, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		ret.ID, ret.OwnerID, stack, string(ret.Reason), toNanos(ret.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert return %s: %w", ret.ID, err)
	}
	return nil
}

func (r *SQLRepository) DeleteReturn(ctx context.Context, id string) error {
	if _, err := r.db.exec(ctx, r.db.sql, `DELETE FROM pending_returns WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete return %s: %w", id, err)
	}
	return nil
}

// UpdateReturnQuantity rewrites the stored stack with a new quantity.
func (r *SQLRepository) UpdateReturnQuantity(ctx context.Context, id string, quantity int) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := r.db.queryRow(ctx, tx, `SELECT item FROM pending_returns WHERE id = ?`+r.db.forUpdate(), id).Scan(&raw)
		if err != nil {
			return fmt.Errorf("load return %s: %w", id, err)
		}
		stack, err := decodeStack(raw)
		if err != nil {
			return fmt.Errorf("decode return %s: %w", id, err)
		}
		encoded, err := encodeStack(stack.WithQuantity(quantity))
		if err != nil {
			return err
		}
		if _, err := r.db.exec(ctx, tx, `UPDATE pending_returns SET item = ? WHERE id = ?`, encoded, id); err != nil {
			return fmt.Errorf("update return %s: %w", id, err)
		}
		return nil
	})
}

func (r *SQLRepository) LoadReturns(ctx context.Context) ([]vault.Return, error) {
	rows, err := r.db.query(ctx, r.db.sql, `
		SELECT id, owner_id, item, reason, created_at FROM pending_returns ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query returns: %w", err)
	}
	defer rows.Close()

	var out []vault.Return
	for rows.Next() {
		var (
			ret           vault.Return
			stack, reason string
			created       int64
		)
		if err := rows.Scan(&ret.ID, &ret.OwnerID, &stack, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		if ret.Item, err = decodeStack(stack); err != nil {
			return nil, fmt.Errorf("decode return %s: %w", ret.ID, err)
		}
		ret.Reason = vault.Reason(reason)
		ret.CreatedAt = fromNanos(created)
		out = append(out, ret)
	}
	return out, rows.Err()
}

func (r *SQLRepository) AppendEntry(ctx context.Context, e ledger.Entry) error {
	stack, err := encodeStack(e.Item)
	if err != nil {
		return fmt.Errorf("encode ledger item: %w", err)
	}
	_, err = r.db.exec(ctx, r.db.sql, `
		INSERT INTO ledger_entries (id, owner_id, direction, item, price, counterpart_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, string(e.Direction), stack, e.Price.String(), e.CounterpartID, toNanos(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append ledger entry %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLRepository) TrimEntries(ctx context.Context, ownerID string, keep int) error {
	_, err := r.db.exec(ctx, r.db.sql, `
		DELETE FROM ledger_entries WHERE owner_id = ? AND seq NOT IN (
			SELECT seq FROM ledger_entries WHERE owner_id = ? ORDER BY seq DESC LIMIT ?
		)`, ownerID, ownerID, keep)
	if err != nil {
		return fmt.Errorf("trim ledger of %s: %w", ownerID, err)
	}
	return nil
}

func (r *SQLRepository) History(ctx context.Context, ownerID string, limit int) ([]ledger.Entry, error) {
	rows, err := r.db.query(ctx, r.db.sql, `
		SELECT id, owner_id, direction, item, price, counterpart_id, created_at
		FROM ledger_entries WHERE owner_id = ? ORDER BY seq DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                ledger.Entry
			direction, stack string
			created          int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &direction, &stack, &e.Price, &e.CounterpartID, &created); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Item, err = decodeStack(stack); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", e.ID, err)
		}
		e.Direction = ledger.Direction(direction)
		e.Timestamp = fromNanos(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLRepository) InsertCredit(ctx context.Context, c credits.Credit) error {
	_, err := r.db.exec(ctx, r.db.sql, `
		INSERT INTO pending_credits (id, player_id, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PlayerID, c.Amount.String(), string(c.Reason), toNanos(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert credit %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLRepository) DeleteCredit(ctx context.Context, id string) error {
	if _, err := r.db.exec(ctx, r.db.sql, `DELETE FROM pending_credits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete credit %s: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) LoadCredits(ctx context.Context) ([]credits.Credit, error) {
	rows, err := r.db.query(ctx, r.db.sql, `
		SELECT id, player_id, amount, reason, created_at FROM pending_credits ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query credits: %w", err)
	}
	defer rows.Close()

	var out []credits.Credit
	for rows.Next() {
		var (
			c       credits.Credit
			reason  string
			created int64
		)
		if err := rows.Scan(&c.ID, &c.PlayerID, &c.Amount, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		c.Reason = credits.Reason(reason)
		c.CreatedAt = fromNanos(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
