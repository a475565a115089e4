package analytics

import "time"

type EventType string

const (
	EventLookup     EventType = "lookup"
	EventZeroResult EventType = "zero_result"
	EventDegraded   EventType = "degraded"
)

// LookupEvent describes one served lookup. The segment text itself is not
// recorded; SegmentLength is its length in runes.
type LookupEvent struct {
	Type           EventType `json:"type"`
	SourceLocale   string    `json:"source_locale"`
	TargetLocale   string    `json:"target_locale"`
	Project        string    `json:"project,omitempty"`
	SegmentLength  int       `json:"segment_length"`
	Returned       int       `json:"returned"`
	TopScore       float64   `json:"top_score"`
	Degraded       bool      `json:"degraded"`
	FailedBackends []string  `json:"failed_backends,omitempty"`
	CacheHit       bool      `json:"cache_hit"`
	LatencyMs      int64     `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

// TypeOf classifies a lookup outcome.
func TypeOf(returned int, degraded bool) EventType {
	switch {
	case degraded:
		return EventDegraded
	case returned == 0:
		return EventZeroResult
	default:
		return EventLookup
	}
}
