// Package cache keeps merged lookup results in Redis so repeated lookups for
// the same segment skip the backend fan-out.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/redis"
)

const keyPrefix = "tm:lookup:"

// Store is the key-value surface the cache needs. *pkgredis.Client
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// LookupCache caches non-degraded aggregator results.
type LookupCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *LookupCache {
	return &LookupCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "lookup-cache"),
	}
}

// Get returns the cached result for req. Store errors count as misses.
func (c *LookupCache) Get(ctx context.Context, req aggregator.Request) (*aggregator.Result, bool) {
	key := BuildKey(req)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result aggregator.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	return &result, true
}

// Set stores result unless it is degraded: a partial answer must not outlive
// the outage that caused it.
func (c *LookupCache) Set(ctx context.Context, req aggregator.Request, result *aggregator.Result) {
	if result == nil || result.Degraded {
		return
	}
	key := BuildKey(req)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves req from the cache or computes it once for all
// concurrent callers asking the same thing.
func (c *LookupCache) GetOrCompute(
	ctx context.Context,
	req aggregator.Request,
	compute func(context.Context) (*aggregator.Result, error),
) (*aggregator.Result, bool, error) {
	if result, ok := c.Get(ctx, req); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(BuildKey(req), func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*aggregator.Result), false, nil
}

// Invalidate drops every cached lookup.
func (c *LookupCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating lookup cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// HandleImportCompleted is a kafka.Handler that invalidates the cache
// whenever an import that changed something finishes on any instance.
func (c *LookupCache) HandleImportCompleted(ctx context.Context, _ []byte, value []byte) error {
	event, err := kafka.Decode[kafka.ImportCompleted](value)
	if err != nil {
		return err
	}
	if event.DryRun || event.Succeeded == 0 {
		c.logger.Debug("import changed nothing, cache kept", "job_id", event.JobID, "backend", event.Backend)
		return nil
	}
	_, err = c.Invalidate(ctx)
	return err
}

func (c *LookupCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LookupCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// BuildKey derives the cache key from the source text with whitespace
// collapsed, the locale pair, project scope and result cap. Case is kept
// because scores are case-sensitive.
func BuildKey(req aggregator.Request) string {
	raw := fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%d",
		strings.Join(strings.Fields(req.SourceText), " "),
		req.SourceLocale,
		req.TargetLocale,
		req.Project,
		req.MaxResults,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
