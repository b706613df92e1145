package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/market-engine/internal/config"
	"github.com/example/market-engine/internal/infrastructure/kafka"
	"github.com/example/market-engine/internal/notification"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadNotifier()
	if err != nil {
		log.Fatalf("[Notifier] %v", err)
	}

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Marketplace - Player Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.Kafka.Brokers)
	log.Printf("[Notifier] Topic: %s", cfg.Kafka.Topic)
	log.Printf("[Notifier] Group: %s", cfg.GroupID)

	var deliverer notification.Deliverer = notification.LogDeliverer{}
	if cfg.WebhookURL != "" {
		deliverer = notification.NewWebhookDeliverer(cfg.WebhookURL)
		log.Printf("[Notifier] Webhook: %s", cfg.WebhookURL)
	} else {
		log.Println("[Notifier] No webhook configured, logging messages")
	}
	handler := notification.NewHandler(deliverer)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.GroupID)
	defer consumer.Close()

	log.Println("[Notifier] Starting consumer...")
	if err := consumer.Consume(ctx, handler.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Notifier] Consumer error: %v", err)
	}
	log.Println("[Notifier] Shutting down...")
}
