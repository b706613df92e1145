package market

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/domain/buyorder"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/vault"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrder struct {
	BuyerID      string          `json:"buyer_id"`
	Template     item.Stack      `json:"template"`
	PricePerItem decimal.Decimal `json:"price_per_item"`
	Quantity     int             `json:"quantity"`
	Duration     time.Duration   `json:"duration"`
}

// CreateOrder escrows pricePerItem × quantity and opens a buy order.
func (m *Manager) CreateOrder(ctx context.Context, cmd CreateOrder) (Result, error) {
	template := cmd.Template.WithQuantity(1)
	if err := template.Validate(); err != nil {
		return failed(KindValidation, MsgOrderInvalidItem), nil
	}
	if cmd.Quantity < 1 {
		return failed(KindValidation, MsgOrderInvalidQuantity), nil
	}
	if !cmd.PricePerItem.IsPositive() {
		return failed(KindValidation, MsgOrderInvalidPrice), nil
	}
	if cmd.PricePerItem.LessThan(m.cfg.MinimumOrderPrice) {
		return failed(KindValidation, MsgOrderPriceTooLow), nil
	}

	unlock := m.owners.Lock("order:" + cmd.BuyerID)
	defer unlock()

	limit := m.limits.ResolveLimit(cmd.BuyerID, m.cfg.OrderLimit)
	if m.store.CountActiveOrders(cmd.BuyerID) >= limit {
		return failed(KindPermission, MsgOrderLimitReached), nil
	}

	total := buyorder.Total(cmd.PricePerItem, cmd.Quantity)
	if err := m.escrow.Reserve(ctx, cmd.BuyerID, total); err != nil {
		return economyFailure(err), nil
	}

	now := m.clock.Now()
	o := buyorder.Order{
		ID:            uuid.New().String(),
		BuyerID:       cmd.BuyerID,
		Template:      template,
		PricePerItem:  cmd.PricePerItem,
		Quantity:      cmd.Quantity,
		TotalReserved: total,
		Status:        buyorder.StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.duration(cmd.Duration)),
		UpdatedAt:     now,
	}
	if err := m.store.InsertOrder(ctx, o); err != nil {
		log.Printf("[Market] Failed to store order for %s: %v", cmd.BuyerID, err)
		m.releaseOrOwe(ctx, cmd.BuyerID, total, credits.ReasonReservation)
		return internalFailure(), err
	}

	m.record(ctx, o.ID, buyorder.AggregateType, buyorder.EventOrderCreated, buyorder.OrderCreated{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		Template:      o.Template,
		PricePerItem:  o.PricePerItem,
		Quantity:      o.Quantity,
		TotalReserved: o.TotalReserved,
		ExpiresAt:     o.ExpiresAt,
		CreatedAt:     o.CreatedAt,
	})
	return succeeded(MsgOrderCreated, o.ID), nil
}

// FulfillOrder takes the requested items from the fulfiller, pays them the
// whole reservation and delivers the items to the buyer.
func (m *Manager) FulfillOrder(ctx context.Context, fulfillerID, orderID string) (Result, error) {
	o, ok := m.store.Order(orderID)
	if !ok {
		return failed(KindNotFound, MsgOrderNotFound), nil
	}
	if o.BuyerID == fulfillerID {
		return failed(KindPermission, MsgOrderOwnOrder), nil
	}
	if o.Status == buyorder.StatusActive && o.ExpiredAt(m.clock.Now()) {
		if _, err := m.expireOrder(ctx, o); err != nil {
			log.Printf("[Market] Lazy expiry of order %s failed: %v", o.ID, err)
		}
		return failed(KindNotFound, MsgOrderNotFound), nil
	}

	done, won, err := m.store.TransitionOrder(ctx, orderID, buyorder.StatusActive, buyorder.StatusFulfilled, m.clock.Now())
	if err != nil {
		return internalFailure(), err
	}
	if !won {
		return failed(KindConflict, MsgOrderUnavailable), nil
	}

	requested := done.Requested()
	if err := m.inventory.RemoveExact(ctx, fulfillerID, requested); err != nil {
		m.revertOrder(ctx, done.ID, buyorder.StatusFulfilled)
		return failed(KindValidation, MsgOrderMissingItems), nil
	}

	if err := m.escrow.Settle(ctx, done.BuyerID, fulfillerID, done.TotalReserved); err != nil {
		if derr := m.deliver(ctx, fulfillerID, requested, vault.ReasonReturned); derr != nil {
			log.Printf("[Market] Items of failed fulfillment %s could not be returned to %s: %v", done.ID, fulfillerID, derr)
		}
		m.revertOrder(ctx, done.ID, buyorder.StatusFulfilled)
		return economyFailure(err), nil
	}

	deliverErr := m.deliver(ctx, done.BuyerID, requested, vault.ReasonOrder)

	now := m.clock.Now()
	m.ledger.Record(ctx, ledger.Entry{
		OwnerID:       done.BuyerID,
		Direction:     ledger.DirectionBuy,
		Item:          requested,
		Price:         done.TotalReserved,
		CounterpartID: fulfillerID,
		Timestamp:     now,
	})
	m.ledger.Record(ctx, ledger.Entry{
		OwnerID:       fulfillerID,
		Direction:     ledger.DirectionSell,
		Item:          requested,
		Price:         done.TotalReserved,
		CounterpartID: done.BuyerID,
		Timestamp:     now,
	})
	m.notify(ctx, done.BuyerID, NoteOrderFulfilled, map[string]string{
		"order_id":     done.ID,
		"item":         requested.Name(),
		"quantity":     strconv.Itoa(requested.Quantity),
		"price":        done.TotalReserved.String(),
		"fulfiller_id": fulfillerID,
	})
	m.record(ctx, done.ID, buyorder.AggregateType, buyorder.EventOrderFulfilled, buyorder.OrderFulfilled{
		OrderID:     done.ID,
		BuyerID:     done.BuyerID,
		FulfillerID: fulfillerID,
		Paid:        done.TotalReserved,
		FulfilledAt: now,
	})
	return succeeded(MsgOrderFulfilled, done.ID), deliverErr
}

// CancelOrder closes the buyer's order and releases the reservation.
func (m *Manager) CancelOrder(ctx context.Context, buyerID, orderID string) (Result, error) {
	o, ok := m.store.Order(orderID)
	if !ok {
		return failed(KindNotFound, MsgOrderNotFound), nil
	}
	if o.BuyerID != buyerID {
		return failed(KindPermission, MsgOrderNotOwner), nil
	}

	cancelled, won, err := m.store.TransitionOrder(ctx, orderID, buyorder.StatusActive, buyorder.StatusCancelled, m.clock.Now())
	if err != nil {
		return internalFailure(), err
	}
	if !won {
		return failed(KindConflict, MsgOrderUnavailable), nil
	}

	if err := m.escrow.Release(ctx, buyerID, cancelled.TotalReserved); err != nil {
		m.revertOrder(ctx, cancelled.ID, buyorder.StatusCancelled)
		return economyFailure(err), nil
	}

	m.record(ctx, cancelled.ID, buyorder.AggregateType, buyorder.EventOrderCancelled, buyorder.OrderCancelled{
		OrderID:     cancelled.ID,
		BuyerID:     buyerID,
		CancelledAt: cancelled.UpdatedAt,
	})
	return succeeded(MsgOrderCancelled, cancelled.ID), nil
}

func (m *Manager) expireOrder(ctx context.Context, o buyorder.Order) (bool, error) {
	expired, won, err := m.store.TransitionOrder(ctx, o.ID, buyorder.StatusActive, buyorder.StatusExpired, m.clock.Now())
	if err != nil || !won {
		return false, err
	}

	if err := m.escrow.Release(ctx, expired.BuyerID, expired.TotalReserved); err != nil {
		log.Printf("[Market] Release for expired order %s failed, keeping it active: %v", expired.ID, err)
		m.revertOrder(ctx, expired.ID, buyorder.StatusExpired)
		return false, nil
	}

	m.notify(ctx, expired.BuyerID, NoteOrderExpired, map[string]string{
		"order_id": expired.ID,
		"item":     expired.Template.Name(),
		"quantity": strconv.Itoa(expired.Quantity),
		"refund":   expired.TotalReserved.String(),
	})
	m.record(ctx, expired.ID, buyorder.AggregateType, buyorder.EventOrderExpired, buyorder.OrderExpired{
		OrderID:   expired.ID,
		BuyerID:   expired.BuyerID,
		ExpiredAt: expired.UpdatedAt,
	})
	return true, nil
}

func (m *Manager) revertOrder(ctx context.Context, id string, from buyorder.Status) {
	_, ok, err := m.store.TransitionOrder(ctx, id, from, buyorder.StatusActive, m.clock.Now())
	if err != nil || !ok {
		log.Printf("[Market] Failed to revert order %s from %s: ok=%v err=%v", id, from, ok, err)
	}
}
