package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries bounds handler attempts per message before the message is
// routed to the DLQ (or dropped) and its offset committed.
const maxHandlerRetries = 3

// Handler processes a single Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// Consumer wraps a kafka-go reader. Each message is handed to the handler
// with bounded retries; messages that exhaust all retries are published to
// the dead-letter queue (when configured) and committed so they cannot wedge
// the partition.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	handler   Handler
	dlq       *DLQProducer
	closeOnce sync.Once
}

// NewConsumer creates a consumer for a topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	return &Consumer{
		reader:  r,
		logger:  logger,
		handler: handler,
	}
}

// WithDLQ attaches a dead-letter producer for messages that exhaust retries.
func (c *Consumer) WithDLQ(dlq *DLQProducer) *Consumer {
	c.dlq = dlq
	return c
}

// Start consumes messages until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	topic := c.reader.Config().Topic
	group := c.reader.Config().GroupID

	c.logger.Info("consumer started",
		slog.String("topic", topic),
		slog.String("group", group),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("topic", topic))
			return c.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(topic, group).Inc()

		event, err := UnmarshalEvent(msg.Value)
		if err != nil {
			c.logger.Error("failed to unmarshal event",
				slog.String("error", err.Error()),
				slog.String("topic", msg.Topic),
			)
			c.sendToDLQ(ctx, msg, err, group)
			c.commit(ctx, msg, "bad")
			continue
		}

		lastErr := c.process(ctx, event, msg)
		if lastErr != nil {
			ConsumerMessagesFailed.WithLabelValues(topic, group).Inc()
			c.logger.Error("handler failed after all retries, skipping poison message",
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
				slog.String("error", lastErr.Error()),
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("retries", maxHandlerRetries),
			)
			c.sendToDLQ(ctx, msg, lastErr, group)
			c.commit(ctx, msg, "poison")
			continue
		}

		ConsumerMessagesProcessed.WithLabelValues(topic, group).Inc()
		c.commit(ctx, msg, "processed")
	}
}

// process runs the handler with bounded retries and exponential backoff.
func (c *Consumer) process(ctx context.Context, event *Event, msg kafka.Message) error {
	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		start := time.Now()
		err := c.handler(ctx, event)
		ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.reader.Config().GroupID).
			Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxHandlerRetries),
		)

		if attempt < maxHandlerRetries {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg kafka.Message, cause error, group string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, group); err == nil {
		ConsumerDLQPublished.WithLabelValues(msg.Topic, group).Inc()
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, kind string) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
