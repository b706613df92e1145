package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/example/market-engine/internal/infrastructure/kafka"
)

// Deliverer hands rendered messages to the game server.
type Deliverer interface {
	DeliverNotification(ctx context.Context, n Notification, text string) error
	DeliverAnnouncement(ctx context.Context, a Announcement, text string) error
}

// Handler processes notification messages consumed from the broker.
// Journal events on the same topic are ignored.
type Handler struct {
	deliverer Deliverer
}

func NewHandler(deliverer Deliverer) *Handler {
	return &Handler{deliverer: deliverer}
}

// HandleMessage is a kafka.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	switch msg.Kind {
	case KindNotification:
		var n Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			log.Printf("[Notifier] Failed to unmarshal notification: %v", err)
			return err
		}
		return h.handleNotification(ctx, n)
	case KindAnnouncement:
		var a Announcement
		if err := json.Unmarshal(msg.Value, &a); err != nil {
			log.Printf("[Notifier] Failed to unmarshal announcement: %v", err)
			return err
		}
		return h.handleAnnouncement(ctx, a)
	default:
		return nil
	}
}

func (h *Handler) handleNotification(ctx context.Context, n Notification) error {
	text, err := Render(n.Key, n.Params)
	if err != nil {
		return err
	}
	if err := h.deliverer.DeliverNotification(ctx, n, text); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", n.Key, n.PlayerID, err)
	}
	log.Printf("[Notifier] Sent %s to %s", n.Key, n.PlayerID)
	return nil
}

func (h *Handler) handleAnnouncement(ctx context.Context, a Announcement) error {
	text, err := Render("live.announce", map[string]string{
		"item":     a.Item.Name(),
		"quantity": strconv.Itoa(a.Item.Quantity),
		"price":    a.Price.String(),
	})
	if err != nil {
		return err
	}
	if err := h.deliverer.DeliverAnnouncement(ctx, a, text); err != nil {
		return fmt.Errorf("announce listing %s: %w", a.ListingID, err)
	}
	log.Printf("[Notifier] Announced listing %s", a.ListingID)
	return nil
}
