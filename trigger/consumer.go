package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the part of *kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	OnLog   func(format string, args ...any)
	// Permanent reports handler errors that a redelivery would repeat.
	// Those notifications are logged and committed. Optional.
	Permanent func(error) bool
}

// Consumer reads storage notifications from Kafka. Offsets are committed
// manually, and only after the handler succeeded.
type Consumer struct {
	r         Reader
	onLog     func(format string, args ...any)
	permanent func(error) bool
}

// NewConsumer creates a group consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka brokers, topic and group id are required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		CommitInterval: 0,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			if cfg.OnLog != nil {
				cfg.OnLog("kafka: "+msg, args...)
			}
		}),
	})
	return NewConsumerWithReader(r, cfg), nil
}

// NewConsumerWithReader wraps an existing reader. Only the OnLog and
// Permanent fields of cfg are used.
func NewConsumerWithReader(r Reader, cfg ConsumerConfig) *Consumer {
	return &Consumer{r: r, onLog: cfg.OnLog, permanent: cfg.Permanent}
}

func (c *Consumer) log(format string, args ...any) {
	if c.onLog != nil {
		c.onLog(format, args...)
	}
}

// Run fetches messages until ctx is done. Malformed notifications and
// permanent handler errors are logged and committed so they are not
// redelivered. Any other handler error stops the loop without committing,
// so the message is redelivered to the group after a restart.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, ev Event) error) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		ev, err := ParseEvent(m.Value)
		if err != nil {
			c.log("Skipping malformed notification partition=%d offset=%d: %v", m.Partition, m.Offset, err)
		} else if err := handle(ctx, ev); err != nil {
			if c.permanent == nil || !c.permanent(err) {
				return fmt.Errorf("handling notification partition=%d offset=%d: %w", m.Partition, m.Offset, err)
			}
			c.log("Dropping notification partition=%d offset=%d: %v", m.Partition, m.Offset, err)
		}

		if err := c.r.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.r.Close()
}
