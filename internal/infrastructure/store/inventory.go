package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/market-engine/internal/domain/item"
)

const (
	DefaultInventorySlots = 36
	MaxStackSize          = 64
)

// Inventory is a slot-based item storage backed by player_items. Similar
// stacks merge up to MaxStackSize per slot.
type Inventory struct {
	db    *DB
	slots int
}

func NewInventory(db *DB, slots int) *Inventory {
	if slots <= 0 {
		slots = DefaultInventorySlots
	}
	return &Inventory{db: db, slots: slots}
}

type slotRow struct {
	slot  int
	stack item.Stack
}

func (inv *Inventory) loadSlots(ctx context.Context, tx *sql.Tx, playerID string) ([]slotRow, error) {
	rows, err := inv.db.query(ctx, tx, `
		SELECT slot, material, display_name, meta, quantity FROM player_items
		WHERE player_id = ? ORDER BY slot`+inv.db.forUpdate(), playerID)
	if err != nil {
		return nil, fmt.Errorf("load inventory of %s: %w", playerID, err)
	}
	defer rows.Close()

	var out []slotRow
	for rows.Next() {
		var r slotRow
		if err := rows.Scan(&r.slot, &r.stack.Material, &r.stack.DisplayName, &r.stack.Meta, &r.stack.Quantity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items returns the player's stacks in slot order.
func (inv *Inventory) Items(ctx context.Context, playerID string) ([]item.Stack, error) {
	var out []item.Stack
	err := inv.db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := inv.loadSlots(ctx, tx, playerID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out = append(out, r.stack)
		}
		return nil
	})
	return out, err
}

// Capacity is how many items similar to stack the player can still take:
// the headroom of similar stacks plus every free slot.
func (inv *Inventory) Capacity(ctx context.Context, playerID string, stack item.Stack) (int, error) {
	room := 0
	err := inv.db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := inv.loadSlots(ctx, tx, playerID)
		if err != nil {
			return err
		}
		free := inv.slots
		for _, r := range rows {
			if r.slot >= inv.slots {
				continue
			}
			free--
			if r.stack.Similar(stack) && r.stack.Quantity < MaxStackSize {
				room += MaxStackSize - r.stack.Quantity
			}
		}
		room += free * MaxStackSize
		return nil
	})
	return room, err
}

// TryDeliver puts the whole stack into the inventory or nothing at all.
func (inv *Inventory) TryDeliver(ctx context.Context, playerID string, stack item.Stack) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	return inv.db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := inv.loadSlots(ctx, tx, playerID)
		if err != nil {
			return err
		}

		remaining := stack.Quantity
		used := make(map[int]bool, len(rows))
		var merges []slotRow
		for _, r := range rows {
			used[r.slot] = true
			if remaining == 0 || !r.stack.Similar(stack) || r.stack.Quantity >= MaxStackSize {
				continue
			}
			add := min(MaxStackSize-r.stack.Quantity, remaining)
			remaining -= add
			r.stack.Quantity += add
			merges = append(merges, r)
		}

		var fresh []slotRow
		for slot := 0; slot < inv.slots && remaining > 0; slot++ {
			if used[slot] {
				continue
			}
			n := min(MaxStackSize, remaining)
			remaining -= n
			fresh = append(fresh, slotRow{slot: slot, stack: stack.WithQuantity(n)})
		}
		if remaining > 0 {
			return item.ErrInsufficientSpace
		}

		for _, r := range merges {
			if _, err := inv.db.exec(ctx, tx,
				`UPDATE player_items SET quantity = ? WHERE player_id = ? AND slot = ?`,
				r.stack.Quantity, playerID, r.slot); err != nil {
				return fmt.Errorf("merge slot %d: %w", r.slot, err)
			}
		}
		for _, r := range fresh {
			if _, err := inv.db.exec(ctx, tx, `
				INSERT INTO player_items (player_id, slot, material, display_name, meta, quantity)
				VALUES (?, ?, ?, ?, ?, ?)`,
				playerID, r.slot, r.stack.Material, r.stack.DisplayName, r.stack.Meta, r.stack.Quantity); err != nil {
				return fmt.Errorf("fill slot %d: %w", r.slot, err)
			}
		}
		return nil
	})
}

// RemoveExact takes stack.Quantity similar items out of the inventory, or
// nothing if the player holds fewer.
func (inv *Inventory) RemoveExact(ctx context.Context, playerID string, stack item.Stack) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	return inv.db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := inv.loadSlots(ctx, tx, playerID)
		if err != nil {
			return err
		}
		held := 0
		for _, r := range rows {
			if r.stack.Similar(stack) {
				held += r.stack.Quantity
			}
		}
		if held < stack.Quantity {
			return item.ErrInsufficientQuantity
		}

		remaining := stack.Quantity
		for _, r := range rows {
			if remaining == 0 {
				break
			}
			if !r.stack.Similar(stack) {
				continue
			}
			take := min(r.stack.Quantity, remaining)
			remaining -= take
			if take == r.stack.Quantity {
				_, err = inv.db.exec(ctx, tx, `DELETE FROM player_items WHERE player_id = ? AND slot = ?`, playerID, r.slot)
			} else {
				_, err = inv.db.exec(ctx, tx, `UPDATE player_items SET quantity = ? WHERE player_id = ? AND slot = ?`,
					r.stack.Quantity-take, playerID, r.slot)
			}
			if err != nil {
				return fmt.Errorf("remove from slot %d: %w", r.slot, err)
			}
		}
		return nil
	})
}
