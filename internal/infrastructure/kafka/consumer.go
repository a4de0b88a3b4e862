package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/youngleee/thesis/internal/realtime"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const (
	readBackoff    = 500 * time.Millisecond
	maxReadBackoff = 30 * time.Second
)

type Consumer struct {
	reader messageReader
	logger *zap.Logger
	// backoff is the first wait after a failed read; it doubles up to
	// maxReadBackoff and resets on success.
	backoff time.Duration
}

// NewConsumer reads the relay topic. Every instance needs every message, so
// groupID must be unique per instance.
func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:  reader,
		logger:  logger.With(zap.String("component", "kafka_consumer")),
		backoff: readBackoff,
	}
}

// Consume reads until ctx is cancelled. Handler errors are logged and the
// message is skipped; read errors are retried with backoff.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	wait := c.backoff
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// the reader reports io.EOF once closed
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("relay_read_failed", zap.Error(err), zap.Duration("retry_in", wait))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			wait = min(wait*2, maxReadBackoff)
			continue
		}
		wait = c.backoff

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Warn("relay_message_rejected",
				zap.String("key", string(msg.Key)),
				zap.Error(err),
			)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// RelayToHub returns a handler that delivers relayed messages to hub,
// skipping those published by this instance.
func RelayToHub(hub *realtime.Hub, origin string) MessageHandler {
	return func(_ context.Context, _, value []byte) error {
		msg, err := realtime.Decode(value)
		if err != nil {
			return err
		}
		if msg.Origin == origin {
			return nil
		}
		hub.Deliver(msg)
		return nil
	}
}
