// Package health answers liveness and readiness probes. Dependencies are
// registered as probes; a failing critical probe makes the instance unready,
// a failing optional one only marks it degraded.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Result is the outcome of one probe.
type Result struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Took     string `json:"took"`
	Optional bool   `json:"optional,omitempty"`
}

type Report struct {
	Status    Status            `json:"status"`
	Checks    map[string]Result `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

type probe struct {
	name     string
	fn       Probe
	optional bool
}

// Checker runs registered probes in parallel, each with its own deadline.
type Checker struct {
	timeout time.Duration

	mu     sync.RWMutex
	probes []probe
	log    *slog.Logger
}

// NewChecker returns a Checker giving each probe at most timeout; zero
// means two seconds.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, log: slog.Default().With("component", "health")}
}

// Critical registers a probe that must pass for the instance to be ready.
func (c *Checker) Critical(name string, fn Probe) { c.add(probe{name: name, fn: fn}) }

// Optional registers a probe whose failure only degrades the instance.
func (c *Checker) Optional(name string, fn Probe) { c.add(probe{name: name, fn: fn, optional: true}) }

func (c *Checker) add(p probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = slices.DeleteFunc(c.probes, func(q probe) bool { return q.name == p.name })
	c.probes = append(c.probes, p)
}

// Check runs every probe and folds the results: down if a critical probe
// failed, degraded if only optional ones did, up otherwise.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	probes := slices.Clone(c.probes)
	c.mu.RUnlock()

	results := make([]Result, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = c.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusUp, Checks: make(map[string]Result, len(probes)), CheckedAt: time.Now().UTC()}
	for i, p := range probes {
		r := results[i]
		report.Checks[p.name] = r
		if r.Status == StatusUp {
			continue
		}
		if !p.optional {
			report.Status = StatusDown
			c.log.Warn("critical dependency failing", "check", p.name, "error", r.Error)
		} else if report.Status == StatusUp {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) run(ctx context.Context, p probe) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := p.fn(ctx)
	r := Result{Status: StatusUp, Took: time.Since(start).Round(time.Millisecond).String(), Optional: p.optional}
	if err != nil {
		r.Status = StatusDown
		r.Error = err.Error()
	}
	return r
}

// LiveHandler answers as long as the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]Status{"status": StatusUp})
	}
}

// ReadyHandler runs the probes. Degraded still counts as ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
