package notification

import (
	"context"
	"log"
	"time"

	"github.com/example/market-engine/internal/domain/listing"
)

// Sender writes a keyed message to the broker. kafka.Producer satisfies it.
type Sender interface {
	Publish(ctx context.Context, key string, event any) error
}

// Publisher turns market notifications and live announcements into broker
// messages for the notifier service.
type Publisher struct {
	sender Sender
	now    func() time.Time
}

func NewPublisher(sender Sender) *Publisher {
	return &Publisher{sender: sender, now: time.Now}
}

// Notify is fire-and-forget; failures are logged.
func (p *Publisher) Notify(ctx context.Context, playerID, key string, params map[string]string) {
	n := Notification{
		PlayerID: playerID,
		Key:      key,
		Params:   params,
		SentAt:   p.now().UTC(),
	}
	if err := p.sender.Publish(ctx, playerID, n); err != nil {
		log.Printf("[Notifier] Failed to publish %s for %s: %v", key, playerID, err)
	}
}

func (p *Publisher) Announce(ctx context.Context, l listing.Listing) error {
	return p.sender.Publish(ctx, l.ID, Announcement{
		ListingID: l.ID,
		SellerID:  l.SellerID,
		Item:      l.Item,
		Price:     l.Price,
		ExpiresAt: l.ExpiresAt,
		SentAt:    p.now().UTC(),
	})
}
