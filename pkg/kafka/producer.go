package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
)

// Producer writes events to one topic and waits for every in-sync replica
// to acknowledge them.
type Producer struct {
	w   *kafka.Writer
	log *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
		log: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Send encodes events and writes them in one call. Nothing is written if any
// event fails to encode.
func (p *Producer) Send(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		m, err := e.message()
		if err != nil {
			return err
		}
		msgs[i] = m
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("write failed", "events", len(msgs), "error", err)
		return fmt.Errorf("writing %d events to %s: %w", len(msgs), p.w.Topic, err)
	}
	p.log.Debug("events written", "events", len(msgs))
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
