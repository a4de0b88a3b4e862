package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/youngleee/thesis/internal/realtime"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer relays realtime messages to the shared topic so other instances
// can deliver them to their own connections.
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

func (p *Producer) Name() string {
	return "kafka"
}

// Forward writes msg keyed by owner, so one owner's updates stay on one
// partition and keep their order.
func (p *Producer) Forward(ctx context.Context, msg realtime.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}

	key := msg.Owner
	if key == "" {
		key = string(msg.Kind)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  msg.SentAt,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
