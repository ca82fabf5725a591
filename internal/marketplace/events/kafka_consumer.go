package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// HandlerRetryWindow bounds how long a failing handler is retried before
// its message is dropped.
const HandlerRetryWindow = 2 * time.Minute

type Consumer struct {
	reader     KafkaReader
	logger     *zap.Logger
	handler    func(context.Context, Event) error
	newBackOff func() backoff.BackOff
}

func handlerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = HandlerRetryWindow
	return b
}

// NewConsumer reads topic as part of the groupID consumer group.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
			Dialer:  kafka.DefaultDialer,
		}),
		logger:     logger.Named("kafka_consumer"),
		newBackOff: handlerBackOff,
	}
}

// Run fetches, decodes and handles messages until ctx is cancelled. A failing
// handler is retried with exponential backoff. Once the retries are exhausted
// the message is logged and committed, so it is dropped. Cancellation during
// retries leaves it uncommitted for redelivery. Undecodable messages are
// committed and skipped.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error("Failed to parse event",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
			)
			c.commit(ctx, msg, "")
			continue
		}

		if err := c.handle(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Dropping event after retries",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.Int64("offset", msg.Offset),
			)
		}

		c.commit(ctx, msg, event.Type)
	}
}

func (c *Consumer) handle(ctx context.Context, event Event) error {
	newBackOff := c.newBackOff
	if newBackOff == nil {
		newBackOff = handlerBackOff
	}
	return backoff.RetryNotify(func() error {
		return c.handler(ctx, event)
	}, backoff.WithContext(newBackOff(), ctx), func(err error, wait time.Duration) {
		c.logger.Warn("Failed to handle event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Duration("retry_in", wait),
		)
	})
}

// Start runs the consumer in its own goroutine.
func (c *Consumer) Start(ctx context.Context) {
	go c.Run(ctx)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, eventType EventType) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message",
			zap.Error(err),
			zap.String("event_type", string(eventType)),
		)
	}
}

func (c *Consumer) RegisterHandler(fn func(context.Context, Event) error) {
	c.handler = fn
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
