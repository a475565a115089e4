// Package kafka carries the service's events over segmentio/kafka-go: import
// completion notices that invalidate lookup caches on every instance, and
// lookup analytics. Values are JSON; handlers decode them with Decode.
package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

// Handler processes one message. An error is logged and the message is
// skipped; it is not redelivered.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer feeds one topic to a Handler.
type Consumer struct {
	r      *kafka.Reader
	handle Handler
	commit bool
	log    *slog.Logger
}

// NewConsumer reads topic from the newest offset. An empty group gives
// every instance its own copy of the stream and disables offset commits.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handle Handler) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     group,
			MinBytes:    1,
			MaxBytes:    10 << 20,
			StartOffset: kafka.LastOffset,
		}),
		handle: handle,
		commit: group != "",
		log:    slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
	}
}

// Run consumes until ctx is cancelled, then closes the reader. Fetch errors
// are retried with backoff forever.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consuming")
	defer c.log.Info("consumer stopped")

	backoff := resilience.Policy{Initial: 200 * time.Millisecond, Max: 30 * time.Second}
	failures := 0
	for {
		msg, err := c.r.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			return c.r.Close()
		case errors.Is(err, kafka.ErrGroupClosed), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			failures++
			delay := backoff.Delay(failures)
			c.log.Error("fetch failed", "error", err, "retry_in", delay, "failures", failures)
			if resilience.Sleep(ctx, delay) != nil {
				return c.r.Close()
			}
			continue
		}
		failures = 0
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.log.With("partition", msg.Partition, "offset", msg.Offset)
	if err := c.handle(ctx, msg.Key, msg.Value); err != nil {
		log.Error("handler failed, message skipped", "key", string(msg.Key), "error", err)
	}
	if !c.commit {
		return
	}
	if err := c.r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("commit failed", "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
