package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is one outgoing message. Key picks the partition; Value is encoded
// as JSON.
type Event struct {
	Key   string
	Value any
}

// Publisher sends events to a topic. Producer is the Kafka implementation.
type Publisher interface {
	Send(ctx context.Context, events ...Event) error
}

// ImportCompleted is published after a bulk import finishes, successful or
// not, so that every instance drops cached lookups for the backend.
type ImportCompleted struct {
	JobID      string    `json:"job_id"`
	Backend    string    `json:"backend"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Checkpoint int64     `json:"checkpoint"`
	DryRun     bool      `json:"dry_run"`
	FinishedAt time.Time `json:"finished_at"`
}

// Discard drops every event. It stands in when Kafka is disabled.
type Discard struct{}

func (Discard) Send(context.Context, ...Event) error { return nil }

func (e Event) message() (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", e.Key, err)
	}
	return kafka.Message{Key: []byte(e.Key), Value: value}, nil
}

// Decode unmarshals a message value into T.
func Decode[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}
