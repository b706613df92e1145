package kafka

import (
	"context"
	"log"

	"github.com/segmentio/kafka-go"
)

// Message is a consumed record stripped to what handlers need.
type Message struct {
	Key   []byte
	Value []byte
	Kind  string
}

type MessageHandler func(ctx context.Context, msg Message) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume reads until ctx is cancelled. Handler errors are logged and the
// message is skipped.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			if err := handler(ctx, decode(msg)); err != nil {
				log.Printf("[Kafka] Error handling message at offset %d: %v", msg.Offset, err)
			}
		}
	}
}

func decode(msg kafka.Message) Message {
	out := Message{Key: msg.Key, Value: msg.Value, Kind: KindEvent}
	for _, h := range msg.Headers {
		if h.Key == KindHeader {
			out.Kind = string(h.Value)
		}
	}
	return out
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
