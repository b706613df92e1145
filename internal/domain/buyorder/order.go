package buyorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

const AggregateType = "BuyOrder"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

var ErrInvalidStatus = errors.New("invalid order status transition")

// validTransitions mirrors listing: reverse edges are compensation only.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusFulfilled, StatusCancelled, StatusExpired},
	StatusFulfilled: {StatusActive},
	StatusCancelled: {StatusActive},
	StatusExpired:   {StatusActive},
}

func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	return nil
}

func (s Status) Terminal() bool {
	return s != StatusActive
}

// Order is a standing request to buy Quantity items similar to Template.
// TotalReserved is escrowed in full at creation and paid out or released
// in full, never in part.
type Order struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id"`
	Template      item.Stack      `json:"template"`
	PricePerItem  decimal.Decimal `json:"price_per_item"`
	Quantity      int             `json:"quantity"`
	TotalReserved decimal.Decimal `json:"total_reserved"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (o Order) GetID() string         { return o.ID }
func (o Order) OwnerID() string       { return o.BuyerID }
func (o Order) CurrentStatus() Status { return o.Status }

func (o Order) ExpiredAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Requested is the exact stack a fulfiller has to hand over.
func (o Order) Requested() item.Stack {
	return o.Template.WithQuantity(o.Quantity)
}

// Total computes pricePerItem × quantity.
func Total(pricePerItem decimal.Decimal, quantity int) decimal.Decimal {
	return pricePerItem.Mul(decimal.NewFromInt(int64(quantity)))
}
