// Package metrics owns the service's Prometheus instruments. Callers record
// through methods so the label sets stay in one place; a nil *Metrics
// records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tm"

var (
	fastBuckets = prometheus.ExponentialBuckets(0.001, 2.5, 10) // 1ms .. ~3.8s
	sizeBuckets = []float64{0, 1, 3, 5, 10, 25, 50}
)

type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	lookups       *prometheus.CounterVec
	lookupLatency *prometheus.HistogramVec
	lookupMatches prometheus.Histogram

	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec

	cache *prometheus.CounterVec

	importDocs     *prometheus.CounterVec
	importBatches  *prometheus.CounterVec
	importRetries  prometheus.Counter
	importInFlight prometheus.Gauge
}

// New registers every instrument with reg, or with the default registry
// when reg is nil. Registering twice on one registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}

	return &Metrics{
		httpRequests: counter("http_requests_total", "HTTP requests by method, route and status code.", "method", "route", "code"),
		httpLatency:  histogram("http_request_duration_seconds", "HTTP request latency.", fastBuckets, "method", "route"),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "http_requests_in_flight", Help: "HTTP requests being served."}),

		lookups:       counter("lookups_total", "Lookups by outcome: ok, degraded, empty or error.", "outcome"),
		lookupLatency: histogram("lookup_duration_seconds", "End-to-end lookup latency.", fastBuckets, "cache"),
		lookupMatches: f.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "lookup_matches", Help: "Matches returned per lookup.", Buckets: sizeBuckets}),

		backendCalls:   counter("backend_calls_total", "Calls to each backend by outcome: ok, timeout, unavailable or invalid.", "backend", "outcome"),
		backendLatency: histogram("backend_call_duration_seconds", "Per-backend call latency.", fastBuckets, "backend"),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "backend_breaker_state", Help: "Breaker state per backend: 0 closed, 1 open, 2 half-open.",
		}, []string{"backend"}),

		cache: counter("cache_requests_total", "Lookup cache reads by result: hit or miss.", "result"),

		importDocs:     counter("import_documents_total", "Documents handled by the bulk indexer by outcome.", "backend", "outcome"),
		importBatches:  counter("import_batches_total", "Bulk index batches by status: ok, partial or failed.", "status"),
		importRetries:  f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "import_retries_total", Help: "Resubmissions of transiently rejected documents."}),
		importInFlight: f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "import_batches_in_flight", Help: "Bulk index requests outstanding."}),
	}
}

// TrackHTTP marks a request as started and returns the function that
// records it once served.
func (m *Metrics) TrackHTTP(method, route string) (done func(code int)) {
	if m == nil {
		return func(int) {}
	}
	start := time.Now()
	m.httpInFlight.Inc()
	return func(code int) {
		m.httpInFlight.Dec()
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		m.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveLookup(outcome, cacheStatus string, results int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.lookupLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	m.lookupMatches.Observe(float64(results))
}

func (m *Metrics) ObserveBackend(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, outcome).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *Metrics) BreakerState(backend string, state int) {
	if m != nil {
		m.breakerState.WithLabelValues(backend).Set(float64(state))
	}
}

func (m *Metrics) CacheHit()  { m.cacheResult("hit") }
func (m *Metrics) CacheMiss() { m.cacheResult("miss") }

func (m *Metrics) cacheResult(r string) {
	if m != nil {
		m.cache.WithLabelValues(r).Inc()
	}
}

func (m *Metrics) DocsIndexed(backend, outcome string, n int) {
	if m != nil && n > 0 {
		m.importDocs.WithLabelValues(backend, outcome).Add(float64(n))
	}
}

func (m *Metrics) ImportBatch(status string) {
	if m != nil {
		m.importBatches.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ImportRetry() {
	if m != nil {
		m.importRetries.Inc()
	}
}

// ImportStarted counts an outstanding bulk request; call the returned
// function when it completes.
func (m *Metrics) ImportStarted() (done func()) {
	if m == nil {
		return func() {}
	}
	m.importInFlight.Inc()
	return m.importInFlight.Dec
}
