// Package backend resolves backend declarations into validated configs and
// owns the match sources built from them.
package backend

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

const (
	DefaultEngine    = "local"
	DefaultHost      = "localhost"
	DefaultIndexName = "translations"
	DefaultMinScore  = 0.0
	DefaultWeight    = 1.0
	DefaultTimeout   = 3 * time.Second
)

// Config is a resolved backend. It is immutable once returned by
// ResolveConfigs. Priority is the declaration index and breaks score ties.
type Config struct {
	Name      string        `json:"name"`
	Engine    string        `json:"engine"`
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	IndexName string        `json:"index_name"`
	MinScore  float64       `json:"min_score"`
	Weight    float64       `json:"weight"`
	Timeout   time.Duration `json:"timeout_ns"`
	Enabled   bool          `json:"enabled"`
	Priority  int           `json:"priority"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolveConfigs applies defaults to every declared backend in order.
// Missing or invalid optional values fall back to their defaults with a
// warning; a weight that is zero or negative is a configuration error.
func ResolveConfigs(entries config.BackendEntries, engines *EngineSet) ([]Config, error) {
	logger := slog.Default().With("component", "backend-registry")
	configs := make([]Config, 0, len(entries))
	for i, entry := range entries {
		cfg, err := resolveOne(logger.With("backend", entry.Name), entry, engines)
		if err != nil {
			return nil, err
		}
		cfg.Priority = i
		configs = append(configs, cfg)
	}
	return configs, nil
}

func resolveOne(logger *slog.Logger, e config.BackendEntry, engines *EngineSet) (Config, error) {
	cfg := Config{
		Name:      e.Name,
		Engine:    strings.ToLower(strings.TrimSpace(e.Engine)),
		Host:      strings.TrimSpace(e.Host),
		IndexName: strings.TrimSpace(e.IndexName),
		MinScore:  DefaultMinScore,
		Weight:    DefaultWeight,
		Timeout:   DefaultTimeout,
		Enabled:   true,
	}

	switch {
	case cfg.Engine == "":
		logger.Warn("ENGINE not set, using default", "default", DefaultEngine)
		cfg.Engine = DefaultEngine
	case !engines.Has(cfg.Engine):
		logger.Warn("unknown ENGINE, using default", "engine", cfg.Engine, "default", DefaultEngine)
		cfg.Engine = DefaultEngine
	}
	if !engines.Has(cfg.Engine) {
		return Config{}, fmt.Errorf("%w: backend %q: engine %q is not available",
			apperrors.ErrConfigInvalid, e.Name, cfg.Engine)
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	cfg.Port = engines.DefaultPort(cfg.Engine)
	if v := strings.TrimSpace(e.Port); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			logger.Warn("invalid PORT, using engine default", "value", v, "default", cfg.Port)
		} else {
			cfg.Port = port
		}
	}

	if v := strings.TrimSpace(e.MinScore); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil || math.IsNaN(score) || math.IsInf(score, 0):
			logger.Warn("invalid MIN_SCORE, using default", "value", v, "default", DefaultMinScore)
		case score < 0:
			logger.Warn("negative MIN_SCORE, using default", "value", v, "default", DefaultMinScore)
		default:
			if score > 1 {
				logger.Warn("MIN_SCORE above 1 excludes every match", "value", score)
			}
			cfg.MinScore = score
		}
	}

	if v := strings.TrimSpace(e.Weight); v != "" {
		weight, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil || math.IsNaN(weight) || math.IsInf(weight, 0):
			logger.Warn("invalid WEIGHT, using default", "value", v, "default", DefaultWeight)
		case weight <= 0:
			return Config{}, fmt.Errorf("%w: backend %q: WEIGHT must be greater than 0, got %s",
				apperrors.ErrConfigInvalid, e.Name, v)
		default:
			cfg.Weight = weight
		}
	}

	if v := strings.TrimSpace(e.TimeoutMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			logger.Warn("invalid TIMEOUT_MS, using default", "value", v, "default", DefaultTimeout)
		} else {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := strings.TrimSpace(e.Enabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ENABLED, keeping backend enabled", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}

	return cfg, nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s(%s %s/%s weight=%g min=%g)", c.Name, c.Engine, c.Addr(), c.IndexName, c.Weight, c.MinScore)
}
