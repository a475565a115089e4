// Package handler exposes lookups over HTTP and over the peer RPC layer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/tracing"
)

// Lookuper runs an aggregated lookup.
type Lookuper interface {
	Lookup(ctx context.Context, req aggregator.Request) (*aggregator.Result, error)
}

// Describer reports the declared backends.
type Describer interface {
	Describe() []backend.Status
}

// Tracker receives analytics events.
type Tracker interface {
	Track(key string, value any)
}

// Limits bounds the number of matches a caller may ask for.
type Limits struct {
	DefaultResults int
	MaxResults     int
}

// LookupResponse is the body of a successful lookup.
type LookupResponse struct {
	Query          string           `json:"query"`
	SourceLocale   string           `json:"source_locale"`
	TargetLocale   string           `json:"target_locale"`
	Project        string           `json:"project,omitempty"`
	Matches        []tm.RankedMatch `json:"matches"`
	Degraded       bool             `json:"degraded"`
	FailedBackends []string         `json:"failed_backends,omitempty"`
	CacheHit       bool             `json:"cache_hit"`
}

type Handler struct {
	lookuper  Lookuper
	backends  Describer
	cache     *cache.LookupCache
	collector Tracker
	metrics   *metrics.Metrics
	limits    Limits
	logger    *slog.Logger
}

// New creates a Handler. queryCache, collector and m may be nil.
func New(lookuper Lookuper, backends Describer, queryCache *cache.LookupCache, collector Tracker, m *metrics.Metrics, limits Limits) *Handler {
	if limits.MaxResults <= 0 {
		limits.MaxResults = 50
	}
	if limits.DefaultResults <= 0 || limits.DefaultResults > limits.MaxResults {
		limits.DefaultResults = min(5, limits.MaxResults)
	}
	return &Handler{
		lookuper:  lookuper,
		backends:  backends,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		limits:    limits,
		logger:    slog.Default().With("component", "lookup-handler"),
	}
}

// Lookup serves GET /api/v1/tm/lookup.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	req := aggregator.Request{
		SourceText:   params.Get("q"),
		SourceLocale: params.Get("source_locale"),
		TargetLocale: params.Get("target_locale"),
		Project:      params.Get("project"),
		MaxResults:   h.limits.DefaultResults,
	}
	if req.SourceText == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if req.SourceLocale == "" || req.TargetLocale == "" {
		h.writeError(w, http.StatusBadRequest, "query parameters 'source_locale' and 'target_locale' are required")
		return
	}
	if v := params.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "max must be a non-negative integer")
			return
		}
		req.MaxResults = min(n, h.limits.MaxResults)
	}

	ctx, span := tracing.Start(ctx, middleware.GetRequestID(ctx), "tm.lookup")
	defer func() {
		span.End()
		span.Trace().Emit(ctx, log)
	}()

	var (
		result   *aggregator.Result
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func(ctx context.Context) (*aggregator.Result, error) {
			return h.lookuper.Lookup(ctx, req)
		})
	} else {
		result, err = h.lookuper.Lookup(ctx, req)
	}
	span.Set("cache_hit", cacheHit)

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	}
	if err != nil {
		status, msg := apperrors.Describe(err, "lookup failed")
		h.metrics.ObserveLookup("error", cacheStatus, 0, time.Since(start))
		log.Error("lookup failed", "error", err, "status_code", status)
		h.writeError(w, status, msg)
		return
	}

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	elapsed := time.Since(start)
	h.metrics.ObserveLookup(outcome, cacheStatus, len(result.Matches), elapsed)
	span.Set("matches", len(result.Matches))
	log.Info("lookup completed",
		"source_locale", req.SourceLocale,
		"target_locale", req.TargetLocale,
		"project", req.Project,
		"matches", len(result.Matches),
		"degraded", result.Degraded,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.track(ctx, req, result, cacheHit, elapsed)

	matches := result.Matches
	if matches == nil {
		matches = []tm.RankedMatch{}
	}
	h.writeJSON(w, http.StatusOK, LookupResponse{
		Query:          req.SourceText,
		SourceLocale:   req.SourceLocale,
		TargetLocale:   req.TargetLocale,
		Project:        req.Project,
		Matches:        matches,
		Degraded:       result.Degraded,
		FailedBackends: result.FailedBackends,
		CacheHit:       cacheHit,
	})
}

func (h *Handler) track(ctx context.Context, req aggregator.Request, result *aggregator.Result, cacheHit bool, elapsed time.Duration) {
	if h.collector == nil {
		return
	}
	event := analytics.LookupEvent{
		Type:           analytics.TypeOf(len(result.Matches), result.Degraded),
		SourceLocale:   req.SourceLocale,
		TargetLocale:   req.TargetLocale,
		Project:        req.Project,
		SegmentLength:  utf8.RuneCountInString(req.SourceText),
		Returned:       len(result.Matches),
		Degraded:       result.Degraded,
		FailedBackends: result.FailedBackends,
		CacheHit:       cacheHit,
		LatencyMs:      elapsed.Milliseconds(),
		Timestamp:      time.Now().UTC(),
		RequestID:      middleware.GetRequestID(ctx),
	}
	if len(result.Matches) > 0 {
		event.TopScore = result.Matches[0].Score
	}
	h.collector.Track(req.SourceLocale+"/"+req.TargetLocale, event)
}

// Backends serves GET /api/v1/tm/backends.
func (h *Handler) Backends(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"backends": h.backends.Describe()})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
