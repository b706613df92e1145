package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KindHeader carries the message kind so consumers can dispatch without
// decoding the payload.
const KindHeader = "kind"

// KindEvent is the kind of journal events, the default for payloads that
// do not name their own kind.
const KindEvent = "event"

// Kinded payloads name their message kind.
type Kinded interface {
	MessageKind() string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish writes event as JSON keyed by key. Messages with the same key
// land on the same partition and keep their order.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	kind := KindEvent
	if k, ok := event.(Kinded); ok {
		kind = k.MessageKind()
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: KindHeader, Value: []byte(kind)}},
		Time:    time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
