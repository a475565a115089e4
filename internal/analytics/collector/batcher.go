// Package collector ships lookup analytics to Kafka in batches.
package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

// Batcher queues events from request handlers and sends them from a single
// goroutine, either when size events are pending or every interval. Track
// never blocks: when the queue is full the event is dropped and counted.
type Batcher struct {
	pub      kafka.Publisher
	size     int
	interval time.Duration

	queue   chan kafka.Event
	pending []kafka.Event // owned by run
	dropped atomic.Int64
	done    chan struct{}
	log     *slog.Logger
}

func NewBatcher(pub kafka.Publisher, size int, interval time.Duration) *Batcher {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Batcher{
		pub:      pub,
		size:     size,
		interval: interval,
		queue:    make(chan kafka.Event, max(4*size, 64)),
		done:     make(chan struct{}),
		log:      slog.Default().With("component", "analytics-batcher"),
	}
}

// Start launches the send loop. Once ctx is cancelled the loop drains the
// queue, sends what is left and exits; Close waits for that.
func (b *Batcher) Start(ctx context.Context) {
	b.log.Info("batcher started", "size", b.size, "interval", b.interval)
	go b.run(ctx)
}

func (b *Batcher) Track(key string, value any) {
	select {
	case b.queue <- kafka.Event{Key: key, Value: value}:
	default:
		if b.dropped.Add(1)%1000 == 1 {
			b.log.Warn("analytics queue full, events dropped", "dropped_total", b.dropped.Load())
		}
	}
}

// Dropped is the number of events lost to a full queue or to send failures
// that outlasted the retry buffer.
func (b *Batcher) Dropped() int64 { return b.dropped.Load() }

func (b *Batcher) Close() { <-b.done }

func (b *Batcher) run(ctx context.Context) {
	defer close(b.done)
	tick := time.NewTicker(b.interval)
	defer tick.Stop()

	for {
		select {
		case ev := <-b.queue:
			b.pending = append(b.pending, ev)
			if len(b.pending) >= b.size {
				b.send(ctx)
			}
		case <-tick.C:
			b.send(ctx)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev := <-b.queue:
					b.pending = append(b.pending, ev)
				default:
					drained = true
				}
			}
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			b.send(final)
			cancel()
			return
		}
	}
}

// send publishes everything pending. On failure the events stay pending for
// the next attempt, up to three batches; older ones are dropped beyond that.
func (b *Batcher) send(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}
	if err := b.pub.Send(ctx, b.pending...); err != nil {
		over := len(b.pending) - 3*b.size
		if over > 0 {
			b.pending = append(b.pending[:0:0], b.pending[over:]...)
			b.dropped.Add(int64(over))
		}
		b.log.Error("send failed, keeping events", "pending", len(b.pending), "dropped", max(over, 0), "error", err)
		return
	}
	b.log.Debug("events sent", "events", len(b.pending))
	b.pending = make([]kafka.Event, 0, b.size)
}
