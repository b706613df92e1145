package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookDeliverer posts messages to the game server.
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

func NewWebhookDeliverer(url string) *WebhookDeliverer {
	return &WebhookDeliverer{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	Kind     string `json:"kind"`
	PlayerID string `json:"player_id,omitempty"`
	Text     string `json:"text"`
	Payload  any    `json:"payload"`
}

func (d *WebhookDeliverer) DeliverNotification(ctx context.Context, n Notification, text string) error {
	return d.post(ctx, webhookPayload{Kind: KindNotification, PlayerID: n.PlayerID, Text: text, Payload: n})
}

func (d *WebhookDeliverer) DeliverAnnouncement(ctx context.Context, a Announcement, text string) error {
	return d.post(ctx, webhookPayload{Kind: KindAnnouncement, Text: text, Payload: a})
}

func (d *WebhookDeliverer) post(ctx context.Context, body webhookPayload) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// LogDeliverer writes messages to the log. It is used when no webhook is
// configured.
type LogDeliverer struct{}

func (LogDeliverer) DeliverNotification(ctx context.Context, n Notification, text string) error {
	log.Printf("[Notifier] -> %s: %s", n.PlayerID, text)
	return nil
}

func (LogDeliverer) DeliverAnnouncement(ctx context.Context, a Announcement, text string) error {
	log.Printf("[Notifier] -> all: %s", text)
	return nil
}
