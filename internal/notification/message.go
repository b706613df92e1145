package notification

import (
	"time"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

const (
	KindNotification = "notification"
	KindAnnouncement = "announcement"
)

// Notification is a message for one player.
type Notification struct {
	PlayerID string            `json:"player_id"`
	Key      string            `json:"key"`
	Params   map[string]string `json:"params,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

func (Notification) MessageKind() string { return KindNotification }

// Announcement is a server-wide broadcast of a live listing.
type Announcement struct {
	ListingID string          `json:"listing_id"`
	SellerID  string          `json:"seller_id"`
	Item      item.Stack      `json:"item"`
	Price     decimal.Decimal `json:"price"`
	ExpiresAt time.Time       `json:"expires_at"`
	SentAt    time.Time       `json:"sent_at"`
}

func (Announcement) MessageKind() string { return KindAnnouncement }
