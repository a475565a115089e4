package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

type recorder struct {
	mu    sync.Mutex
	sends [][]kafka.Event
	down  bool
}

func (r *recorder) Send(_ context.Context, events ...kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errors.New("broker down")
	}
	r.sends = append(r.sends, append([]kafka.Event(nil), events...))
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sends {
		n += len(s)
	}
	return n
}

func TestSendsFullBatch(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(rec, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)

	for i := range 3 {
		b.Track("lookup", i)
	}
	assert.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)

	b.Track("lookup", 3)
	cancel()
	b.Close()
	assert.Equal(t, 4, rec.count(), "shutdown sends what is left")
}

func TestSendsOnInterval(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(rec, 100, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		b.Close()
	}()
	b.Start(ctx)

	b.Track("lookup", "x")
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedSendKeepsThreeBatches(t *testing.T) {
	rec := &recorder{down: true}
	b := NewBatcher(rec, 2, time.Hour)
	for i := range 10 {
		b.pending = append(b.pending, kafka.Event{Key: "lookup", Value: i})
	}
	b.send(context.Background())
	require.Len(t, b.pending, 6)
	assert.Equal(t, 4, b.pending[0].Value, "oldest events go first")
	assert.EqualValues(t, 4, b.Dropped())

	rec.down = false
	b.send(context.Background())
	assert.Empty(t, b.pending)
	assert.Equal(t, 6, rec.count())
}

func TestTrackDropsWhenQueueFull(t *testing.T) {
	b := NewBatcher(&recorder{}, 1, time.Hour)
	for i := range cap(b.queue) + 5 {
		b.Track("lookup", i)
	}
	assert.EqualValues(t, 5, b.Dropped())
}
