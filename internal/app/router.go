package app

import (
	"context"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/middleware"
)

// Router builds the HTTP API.
//
// Route table:
//
//	GET    /api/v1/tm/lookup           ranked matches for one segment
//	GET    /api/v1/tm/backends         declared backends and breaker state
//	POST   /api/v1/tm/import           bulk import from the corpus
//	GET    /api/v1/tm/stats            lookup statistics since start
//	GET    /api/v1/tm/stats/history    persisted snapshots
//	GET    /api/v1/cache/stats         cache hit/miss counters
//	POST   /api/v1/cache/invalidate    drop every cached lookup
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Timeout (all but import) → mux
//
// Lookups are additionally rate limited per client inside the mux.
func (a *App) Router() http.Handler {
	cfg := a.Config
	lookups := handler.New(a.Aggregator, a.Registry, a.Cache, a.Tracker, a.Metrics, handler.Limits{
		DefaultResults: cfg.Lookup.DefaultResults,
		MaxResults:     cfg.Lookup.MaxResults,
	})
	imports := importer.NewHandler(runnerFunc(a.RunImport))
	stats := analytics.NewHandler(a.Stats)

	var limiter *middleware.ClientLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/tm/lookup", middleware.RateLimit(limiter)(http.HandlerFunc(lookups.Lookup)))
	mux.HandleFunc("GET /api/v1/tm/backends", lookups.Backends)
	mux.HandleFunc("POST /api/v1/tm/import", imports.Import)
	mux.HandleFunc("GET /api/v1/tm/stats", stats.Stats)
	if a.snapshots != nil {
		mux.HandleFunc("GET /api/v1/tm/stats/history", a.snapshots.History)
	}
	mux.HandleFunc("GET /api/v1/cache/stats", lookups.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", lookups.CacheInvalidate)
	mux.HandleFunc("GET /health/live", a.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", a.Health.ReadyHandler())

	// Imports can outlast the write timeout, so the timeout only wraps the
	// rest of the API.
	timed := middleware.Timeout(cfg.Server.WriteTimeout)(mux)
	root := http.NewServeMux()
	root.Handle("POST /api/v1/tm/import", mux)
	root.Handle("/", timed)

	return middleware.Chain(root,
		middleware.RequestID,
		middleware.Metrics(a.Metrics),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)),
	)
}

// RPCServer returns a server exposing this instance's backends to peers.
func (a *App) RPCServer() *grpc.Server {
	s := grpc.NewServer()
	handler.NewRPC(a.Registry).Register(s)
	return s
}

type runnerFunc func(ctx context.Context, req importer.Request) (*importer.Result, error)

func (f runnerFunc) Run(ctx context.Context, req importer.Request) (*importer.Result, error) {
	return f(ctx, req)
}
