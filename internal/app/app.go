// Package app assembles a translation memory service process from its
// configuration: backends, aggregation, caching, imports and analytics.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics"
	statsstore "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

// Tracker receives lookup analytics events.
type Tracker interface {
	Track(key string, value any)
}

// App holds the long-lived components of one process. Optional parts are
// nil when their dependency is disabled or unreachable.
type App struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Registry   *backend.Registry
	Aggregator *aggregator.Aggregator
	Cache      *cache.LookupCache
	Importer   *importer.Service
	Stats      *analytics.Aggregator
	Tracker    Tracker
	Health     *health.Checker

	store     *sharedStore
	redis     *pkgredis.Client
	corpus    *corpus.Corpus
	collector *collector.Batcher
	snapshots *statsstore.Store
	consumers []*kafka.Consumer
	closers   []func() error
	logger    *slog.Logger
}

// New builds an App. Only the backend registry is mandatory: Redis, Kafka,
// the corpus database and the snapshot store degrade to disabled with a
// warning when they cannot be reached.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: m,
		Stats:   analytics.NewAggregator(),
		Health:  health.NewChecker(0),
		store:   &sharedStore{cfg: cfg.Indexer},
		logger:  slog.Default().With("component", "app"),
	}

	if err := a.initBackends(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.initCache(ctx)
	a.initImporter(ctx)
	a.initAnalytics(ctx)
	a.registerHealth()
	return a, nil
}

func (a *App) initBackends(ctx context.Context) error {
	cfg := a.Config
	engines := newEngineSet(a.store)
	configs, err := backend.ResolveConfigs(cfg.TM.Backends, engines)
	if err != nil {
		return err
	}
	registry, err := backend.New(ctx, configs, engines,
		backend.WithMetrics(a.Metrics),
		backend.WithBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.Lookup.BreakerThreshold,
			Cooldown:         cfg.Lookup.BreakerReset,
		}),
	)
	store := a.store.opened()
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	if store != nil {
		a.closers = append(a.closers, store.Close)
		a.logger.Info("local document store opened", "path", store.Path())
	}
	a.Registry = registry
	a.closers = append(a.closers, registry.Close)
	if len(registry.Sources()) == 0 {
		a.logger.Warn("no backends enabled, lookups will fail")
	}
	a.Aggregator = aggregator.New(registry, cfg.Lookup.AggregateTimeout)
	return nil
}

func (a *App) initCache(ctx context.Context) {
	cfg := a.Config.Redis
	if !cfg.Enabled {
		a.logger.Info("lookup cache disabled")
		return
	}
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		a.logger.Warn("redis unavailable, lookup caching disabled", "addr", cfg.Addr, "error", err)
		return
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	a.Cache = cache.New(client, cfg.CacheTTL, a.Metrics)
	a.logger.Info("lookup cache enabled", "addr", cfg.Addr, "ttl", cfg.CacheTTL)
}

func (a *App) initImporter(ctx context.Context) {
	cfg := a.Config
	c, err := corpus.Open(ctx, cfg)
	if err != nil {
		a.logger.Warn("corpus unavailable, imports disabled", "driver", cfg.Corpus.Driver, "error", err)
		return
	}
	a.corpus = c
	a.closers = append(a.closers, c.Close)

	var publisher kafka.Publisher = loopback{handle: a.handleImportCompleted}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ImportComplete)
		a.closers = append(a.closers, producer.Close)
		publisher = producer
	}
	a.Importer = importer.NewService(a.Registry, c, importer.NewIndexer(cfg.Import, a.Metrics), publisher, cfg.Import.Backend)
	a.logger.Info("importer ready", "driver", cfg.Corpus.Driver, "default_backend", cfg.Import.Backend)
}

func (a *App) initAnalytics(ctx context.Context) {
	cfg := a.Config
	a.Tracker = a.Stats
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.LookupAnalytics)
		a.closers = append(a.closers, producer.Close)
		a.collector = collector.NewBatcher(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		a.Tracker = a.collector
		// An empty group gives every instance the full event streams: each
		// one drops its own cache and keeps cluster-wide stats.
		a.consumers = append(a.consumers,
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ImportComplete, "", a.handleImportCompleted),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.LookupAnalytics, "", a.Stats.HandleLookupEvent),
		)
	}

	if cfg.Analytics.SnapshotInterval <= 0 {
		return
	}
	store, err := openSnapshotStore(ctx, cfg)
	if err != nil {
		a.logger.Warn("analytics snapshots disabled", "error", err)
		return
	}
	a.snapshots = store.Store
	a.closers = append(a.closers, store.close)
	if latest, err := a.snapshots.LatestSnapshot(ctx); err == nil && latest != nil {
		a.logger.Info("previous analytics snapshot found",
			"captured_at", latest.CapturedAt,
			"total_lookups", latest.TotalLookups,
		)
	}
}

// handleImportCompleted fans an ImportCompleted message out to the cache and
// the stats aggregator.
func (a *App) handleImportCompleted(ctx context.Context, key, value []byte) error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.HandleImportCompleted(ctx, key, value))
	}
	errs = append(errs, a.Stats.HandleImportEvent(ctx, key, value))
	return errors.Join(errs...)
}

func (a *App) registerHealth() {
	for _, src := range a.Registry.Sources() {
		name := src.Config.Name
		probe := func(ctx context.Context) error { return a.Registry.Ping(ctx, name) }
		// A lookup still answers with one backend down, so only the local
		// index is load-bearing for readiness.
		if src.Config.Engine == EngineLocal {
			a.Health.Critical("backend:"+name, probe)
		} else {
			a.Health.Optional("backend:"+name, probe)
		}
	}
	if a.redis != nil {
		a.Health.Optional("redis", a.redis.Ping)
	}
	if a.corpus != nil {
		a.Health.Optional("corpus", a.corpus.Ping)
	}
}

// Start runs the background workers in g: analytics flushing, Kafka
// consumers and periodic snapshots. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context, g *errgroup.Group) {
	if a.collector != nil {
		a.collector.Start(ctx)
		a.logger.Info("analytics collector started", "topic", a.Config.Kafka.Topics.LookupAnalytics)
	}
	for _, c := range a.consumers {
		g.Go(func() error {
			return c.Run(ctx)
		})
	}
	if a.snapshots != nil {
		g.Go(func() error {
			return a.snapshots.Run(ctx, a.Stats, a.Config.Analytics.SnapshotInterval)
		})
	}
}

// RunImport runs one import. It fails with ErrBackendUnavailable when the
// corpus could not be opened at startup.
func (a *App) RunImport(ctx context.Context, req importer.Request) (*importer.Result, error) {
	if a.Importer == nil {
		return nil, apperrors.Public(apperrors.ErrBackendUnavailable, http.StatusServiceUnavailable, "corpus database unavailable, imports disabled")
	}
	return a.Importer.Run(ctx, req)
}

// Close stops the collector and releases every resource in reverse order of
// acquisition.
func (a *App) Close() error {
	if a.collector != nil {
		a.collector.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type snapshotStore struct {
	*statsstore.Store
	close func() error
}

func openSnapshotStore(ctx context.Context, cfg *config.Config) (*snapshotStore, error) {
	var (
		db     *sql.DB
		driver string
		closer func() error
	)
	switch strings.ToLower(cfg.Analytics.SnapshotDriver) {
	case corpus.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		db, driver, closer = pg, corpus.DriverPostgres, pg.Close
	case corpus.DriverSQLite, "":
		path := cfg.Analytics.SnapshotPath
		if path == "" {
			path = filepath.Join(cfg.Indexer.DataDir, "analytics.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
		conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("opening snapshot store %s: %w", path, err)
		}
		db, driver, closer = conn, corpus.DriverSQLite, conn.Close
	default:
		return nil, fmt.Errorf("%w: unknown snapshot driver %q", apperrors.ErrConfigInvalid, cfg.Analytics.SnapshotDriver)
	}

	store := statsstore.NewStore(db, driver)
	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		_ = closer()
		return nil, err
	}
	return &snapshotStore{Store: store, close: closer}, nil
}

// loopback delivers events to a local handler. It stands in for the Kafka
// producer when Kafka is disabled so that an import still invalidates this
// instance's cache.
type loopback struct {
	handle kafka.Handler
}

func (l loopback) Send(ctx context.Context, events ...kafka.Event) error {
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encoding event %q: %w", e.Key, err)
		}
		if err := l.handle(ctx, []byte(e.Key), value); err != nil {
			return err
		}
	}
	return nil
}
