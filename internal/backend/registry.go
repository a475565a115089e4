package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

// Source is an enabled backend as seen by the aggregator: its resolved
// config plus a guarded match source.
type Source struct {
	Config Config
	source.MatchSource
}

// Status describes a backend for operators.
type Status struct {
	Config
	Breaker  string `json:"breaker,omitempty"`
	Writable bool   `json:"writable"`
}

type member struct {
	cfg     Config
	raw     source.MatchSource
	guarded *guarded
	breaker *resilience.Breaker
}

// Registry owns one match source per enabled backend. Sources are built
// once and shared read-only by concurrent lookups.
type Registry struct {
	configs []Config
	members []*member
	byName  map[string]*member
	logger  *slog.Logger
}

type options struct {
	metrics *metrics.Metrics
	breaker resilience.BreakerConfig
}

type Option func(*options)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// New builds the sources for every enabled config, in declaration order.
// If any factory fails the sources built so far are closed.
func New(ctx context.Context, cfgs []Config, engines *EngineSet, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		configs: append([]Config(nil), cfgs...),
		byName:  make(map[string]*member, len(cfgs)),
		logger:  slog.Default().With("component", "backend-registry"),
	}
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			r.logger.Info("backend disabled", "backend", cfg.Name)
			continue
		}
		if _, dup := r.byName[cfg.Name]; dup {
			_ = r.Close()
			return nil, fmt.Errorf("%w: backend %q declared twice", apperrors.ErrConfigInvalid, cfg.Name)
		}
		factory, ok := engines.factory(cfg.Engine)
		if !ok {
			_ = r.Close()
			return nil, fmt.Errorf("%w: backend %q: unknown engine %q", apperrors.ErrConfigInvalid, cfg.Name, cfg.Engine)
		}
		raw, err := factory(ctx, cfg)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("opening backend %q: %w", cfg.Name, err)
		}

		breakerCfg := o.breaker
		m := o.metrics
		breakerCfg.OnStateChange = func(name string, to resilience.State) {
			m.BreakerState(name, int(to))
		}
		breaker := resilience.NewBreaker(cfg.Name, breakerCfg)
		mem := &member{
			cfg:     cfg,
			raw:     raw,
			breaker: breaker,
			guarded: &guarded{
				name:    cfg.Name,
				timeout: cfg.Timeout,
				inner:   raw,
				breaker: breaker,
				metrics: o.metrics,
			},
		}
		r.members = append(r.members, mem)
		r.byName[cfg.Name] = mem
		r.logger.Info("backend ready", "backend", cfg.String())
	}
	return r, nil
}

// Sources returns the enabled backends in declaration order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.members))
	for i, m := range r.members {
		out[i] = Source{Config: m.cfg, MatchSource: m.guarded}
	}
	return out
}

// Configs returns every resolved config, enabled or not, in declaration
// order.
func (r *Registry) Configs() []Config {
	return append([]Config(nil), r.configs...)
}

// Config returns the resolved config of an enabled backend.
func (r *Registry) Config(name string) (Config, bool) {
	m, ok := r.byName[name]
	if !ok {
		return Config{}, false
	}
	return m.cfg, true
}

// Source returns the guarded source of an enabled backend.
func (r *Registry) Source(name string) (source.MatchSource, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrBackendNotFound, name)
	}
	return m.guarded, nil
}

// Writer returns the index writer of an enabled backend. Bulk writes are
// not subject to the lookup timeout or breaker.
func (r *Registry) Writer(name string) (source.IndexWriter, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrBackendNotFound, name)
	}
	w, ok := m.raw.(source.IndexWriter)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q (engine %s) cannot be written to", apperrors.ErrUnsupportedEngine, name, m.cfg.Engine)
	}
	return w, nil
}

// Ping checks a backend that can report its own health. Backends without
// a health probe are assumed up.
func (r *Registry) Ping(ctx context.Context, name string) error {
	m, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrBackendNotFound, name)
	}
	if p, ok := m.raw.(source.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Describe reports every declared backend with its breaker state.
func (r *Registry) Describe() []Status {
	out := make([]Status, 0, len(r.configs))
	for _, cfg := range r.configs {
		st := Status{Config: cfg}
		if m, ok := r.byName[cfg.Name]; ok {
			st.Breaker = m.breaker.State().String()
			_, st.Writable = m.raw.(source.IndexWriter)
		}
		out = append(out, st)
	}
	return out
}

// Close releases every source that holds resources.
func (r *Registry) Close() error {
	var errs []error
	for _, m := range r.members {
		if c, ok := m.raw.(source.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing backend %q: %w", m.cfg.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
