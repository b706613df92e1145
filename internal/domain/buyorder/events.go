package buyorder

import (
	"time"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderFulfilled = "OrderFulfilled"
	EventOrderCancelled = "OrderCancelled"
	EventOrderExpired   = "OrderExpired"
)

type OrderCreated struct {
	OrderID       string          `json:"order_id"`
	BuyerID       string          `json:"buyer_id"`
	Template      item.Stack      `json:"template"`
	PricePerItem  decimal.Decimal `json:"price_per_item"`
	Quantity      int             `json:"quantity"`
	TotalReserved decimal.Decimal `json:"total_reserved"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

type OrderFulfilled struct {
	OrderID     string          `json:"order_id"`
	BuyerID     string          `json:"buyer_id"`
	FulfillerID string          `json:"fulfiller_id"`
	Paid        decimal.Decimal `json:"paid"`
	FulfilledAt time.Time       `json:"fulfilled_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	BuyerID     string    `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type OrderExpired struct {
	OrderID   string    `json:"order_id"`
	BuyerID   string    `json:"buyer_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
