// Package analytics turns lookup and import events into running statistics
// for operators.
package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

// AggregatedStats is what GET /api/v1/tm/stats returns and what snapshots
// persist. Latency percentiles cover the most recent lookups only.
type AggregatedStats struct {
	TotalLookups     int64      `json:"total_lookups"`
	ZeroResults      int64      `json:"zero_results"`
	DegradedLookups  int64      `json:"degraded_lookups"`
	CacheHits        int64      `json:"cache_hits"`
	CacheMisses      int64      `json:"cache_misses"`
	DocsIndexed      int64      `json:"docs_indexed"`
	DocsRejected     int64      `json:"docs_rejected"`
	ImportsCompleted int64      `json:"imports_completed"`
	AvgLatencyMs     float64    `json:"avg_latency_ms"`
	P50LatencyMs     int64      `json:"p50_latency_ms"`
	P95LatencyMs     int64      `json:"p95_latency_ms"`
	P99LatencyMs     int64      `json:"p99_latency_ms"`
	TopLocalePairs   []KeyCount `json:"top_locale_pairs"`
	BackendFailures  []KeyCount `json:"backend_failures"`
	LookupsPerMinute float64    `json:"lookups_per_minute"`
	CapturedAt       time.Time  `json:"captured_at"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

const (
	latencyWindow = 10000
	topKeys       = 10
)

type counters struct {
	lookups, zero, degraded int64
	hits, misses            int64
	indexed, rejected       int64
	imports                 int64
}

// Aggregator keeps statistics since process start. It is fed either in
// process through Track or from Kafka through the Handle methods.
type Aggregator struct {
	started time.Time
	log     *slog.Logger

	mu       sync.Mutex
	n        counters
	window   *ring
	pairs    map[string]int64
	failures map[string]int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		started:  time.Now(),
		log:      slog.Default().With("component", "analytics"),
		window:   newRing(latencyWindow),
		pairs:    make(map[string]int64),
		failures: make(map[string]int64),
	}
}

// Track accepts LookupEvent values and ignores anything else.
func (a *Aggregator) Track(_ string, value any) {
	if ev, ok := value.(LookupEvent); ok {
		a.RecordLookup(ev)
	}
}

func (a *Aggregator) RecordLookup(ev LookupEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n.lookups++
	if ev.CacheHit {
		a.n.hits++
	} else {
		a.n.misses++
	}
	if ev.Returned == 0 {
		a.n.zero++
	}
	if ev.Degraded {
		a.n.degraded++
	}
	a.window.add(ev.LatencyMs)
	a.pairs[ev.SourceLocale+"/"+ev.TargetLocale]++
	for _, b := range ev.FailedBackends {
		a.failures[b]++
	}
}

// HandleLookupEvent consumes the lookup events topic. Undecodable messages
// are logged and dropped.
func (a *Aggregator) HandleLookupEvent(_ context.Context, _, value []byte) error {
	ev, err := kafka.Decode[LookupEvent](value)
	if err != nil {
		a.log.Warn("dropping lookup event", "error", err)
		return nil
	}
	a.RecordLookup(ev)
	return nil
}

// HandleImportEvent consumes import completions. Dry runs are not counted.
func (a *Aggregator) HandleImportEvent(_ context.Context, _, value []byte) error {
	ev, err := kafka.Decode[kafka.ImportCompleted](value)
	if err != nil {
		a.log.Warn("dropping import event", "error", err)
		return nil
	}
	if ev.DryRun {
		return nil
	}
	a.mu.Lock()
	a.n.imports++
	a.n.indexed += int64(ev.Succeeded)
	a.n.rejected += int64(ev.Failed)
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	n := a.n
	lat := a.window.sorted()
	pairs := top(a.pairs, topKeys)
	failures := top(a.failures, topKeys)
	a.mu.Unlock()

	s := AggregatedStats{
		TotalLookups:     n.lookups,
		ZeroResults:      n.zero,
		DegradedLookups:  n.degraded,
		CacheHits:        n.hits,
		CacheMisses:      n.misses,
		DocsIndexed:      n.indexed,
		DocsRejected:     n.rejected,
		ImportsCompleted: n.imports,
		TopLocalePairs:   pairs,
		BackendFailures:  failures,
		CapturedAt:       time.Now().UTC(),
	}
	if len(lat) > 0 {
		var sum int64
		for _, v := range lat {
			sum += v
		}
		s.AvgLatencyMs = float64(sum) / float64(len(lat))
		s.P50LatencyMs = rank(lat, 0.50)
		s.P95LatencyMs = rank(lat, 0.95)
		s.P99LatencyMs = rank(lat, 0.99)
	}
	if mins := time.Since(a.started).Minutes(); mins > 0 {
		s.LookupsPerMinute = float64(n.lookups) / mins
	}
	return s
}

// rank is the nearest-rank percentile of ascending samples.
func rank(sorted []int64, q float64) int64 {
	i := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[min(max(i, 0), len(sorted)-1)]
}

// top returns the n largest counts, ties broken by key.
func top(counts map[string]int64, n int) []KeyCount {
	keys := slices.SortedFunc(maps.Keys(counts), func(x, y string) int {
		if c := cmp.Compare(counts[y], counts[x]); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})
	out := make([]KeyCount, 0, min(n, len(keys)))
	for _, k := range keys[:min(n, len(keys))] {
		out = append(out, KeyCount{Key: k, Count: counts[k]})
	}
	return out
}

// ring keeps the most recent len(buf) latency samples.
type ring struct {
	buf  []int64
	next int
	full bool
}

func newRing(size int) *ring { return &ring{buf: make([]int64, size)} }

func (r *ring) add(v int64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *ring) sorted() []int64 {
	out := slices.Clone(r.buf[:r.len()])
	slices.Sort(out)
	return out
}
