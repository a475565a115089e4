// Package resilience holds the failure handling shared by backends, the
// importer and the infrastructure clients: a circuit breaker per backend,
// retry policies with jittered exponential backoff, and hard call deadlines.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen means the breaker refused the call without trying it.
var ErrCircuitOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero fields take defaults: 5 failures, a
// 30s cooldown and one probe.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is let
	// through.
	Cooldown time.Duration
	// Probes caps the calls in flight while half-open.
	Probes int
	// OnStateChange runs under the breaker's lock and must not call it.
	OnStateChange func(name string, to State)
}

// Breaker stops calling a backend that keeps failing. Callers reserve a
// call with Allow and report how it went with Record.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "breaker", "backend", name),
	}
}

// Allow reserves one call. A nil return obliges the caller to Record the
// outcome exactly once.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s, next probe in %v", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.logger.Info("cooldown over, probing backend")
		fallthrough
	case StateHalfOpen:
		if b.probing >= b.cfg.Probes {
			return fmt.Errorf("%w: %s, probe already in flight", ErrCircuitOpen, b.name)
		}
		b.probing++
	}
	return nil
}

// Record reports the outcome of a call admitted by Allow. Only failures of
// the backend itself should be recorded as failed; a caller's bad input or
// cancellation is not the backend's fault.
func (b *Breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probing > 0 {
		b.probing--
	}
	if !failed {
		if b.state == StateHalfOpen {
			b.logger.Info("probe succeeded, circuit closed")
		}
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.open()
		b.logger.Warn("probe failed, circuit reopened")
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.open()
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "cooldown", b.cfg.Cooldown)
	}
}

// Do runs fn through the breaker, counting every error as a failure.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err != nil)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = 0
	b.transition(StateClosed)
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.probing = 0
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
