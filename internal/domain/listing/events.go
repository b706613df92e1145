package listing

import (
	"time"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

const (
	EventListingCreated   = "ListingCreated"
	EventListingSold      = "ListingSold"
	EventListingCancelled = "ListingCancelled"
	EventListingExpired   = "ListingExpired"
)

type ListingCreated struct {
	ListingID string          `json:"listing_id"`
	SellerID  string          `json:"seller_id"`
	Item      item.Stack      `json:"item"`
	Price     decimal.Decimal `json:"price"`
	Deposit   decimal.Decimal `json:"deposit"`
	Live      bool            `json:"live"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

type ListingSold struct {
	ListingID string          `json:"listing_id"`
	SellerID  string          `json:"seller_id"`
	BuyerID   string          `json:"buyer_id"`
	Price     decimal.Decimal `json:"price"`
	SoldAt    time.Time       `json:"sold_at"`
}

type ListingCancelled struct {
	ListingID   string    `json:"listing_id"`
	SellerID    string    `json:"seller_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type ListingExpired struct {
	ListingID string    `json:"listing_id"`
	SellerID  string    `json:"seller_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
