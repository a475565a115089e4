// Package aggregator fans a lookup out to every enabled backend in parallel,
// waits for them within one aggregate deadline and merges whatever arrived.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/tracing"
)

// Request is a lookup as issued by a caller.
type Request struct {
	SourceText   string `json:"source_text"`
	SourceLocale string `json:"source_locale"`
	TargetLocale string `json:"target_locale"`
	Project      string `json:"project,omitempty"`
	MaxResults   int    `json:"max_results"`
}

// Result is the merged answer. Degraded is set when at least one backend
// failed or missed the deadline; the matches then come from the rest.
type Result struct {
	Matches        []tm.RankedMatch `json:"matches"`
	Degraded       bool             `json:"degraded"`
	FailedBackends []string         `json:"failed_backends,omitempty"`
	Backends       []string         `json:"backends"`
}

// SourceSet is the part of the backend registry the aggregator needs.
type SourceSet interface {
	Sources() []backend.Source
}

// Aggregator runs lookups against a SourceSet.
type Aggregator struct {
	sources SourceSet
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Aggregator. timeout bounds a whole lookup; zero or negative
// means no aggregate deadline beyond each backend's own.
func New(sources SourceSet, timeout time.Duration) *Aggregator {
	return &Aggregator{
		sources: sources,
		timeout: timeout,
		logger:  slog.Default().With("component", "aggregator"),
	}
}

type outcome struct {
	candidates []tm.MatchCandidate
	err        error
	done       bool
}

// Lookup queries every enabled backend concurrently and merges the results.
// Backend failures never surface as errors: the result is marked degraded
// and, if nothing answered, empty. Only a lookup with no enabled backends or
// an invalid query returns an error.
func (a *Aggregator) Lookup(ctx context.Context, req Request) (*Result, error) {
	sources := a.sources.Sources()
	if len(sources) == 0 {
		return nil, apperrors.ErrNoBackendsEnabled
	}
	q := source.Query{
		SourceText:   req.SourceText,
		SourceLocale: req.SourceLocale,
		TargetLocale: req.TargetLocale,
		Project:      req.Project,
		Limit:        source.CandidateLimit(req.MaxResults),
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	lookupCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.timeout > 0 {
		lookupCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}
	defer cancel()

	outcomes := make([]outcome, len(sources))
	var mu sync.Mutex
	var wg sync.WaitGroup
	finished := make(chan struct{})
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, span := tracing.Child(lookupCtx, "backend."+src.Config.Name)
			candidates, err := src.Lookup(lookupCtx, q)
			span.Set("candidates", len(candidates))
			if err != nil {
				span.Set("error", err.Error())
			}
			span.End()
			mu.Lock()
			outcomes[i] = outcome{candidates: candidates, err: err, done: true}
			mu.Unlock()
		}()
	}
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-lookupCtx.Done():
		// Outstanding calls see the cancelled context and their late
		// answers are discarded.
	}

	mu.Lock()
	snapshot := append([]outcome(nil), outcomes...)
	mu.Unlock()

	log := a.logger
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}
	bySource := make(map[string][]tm.MatchCandidate, len(sources))
	configs := make([]backend.Config, 0, len(sources))
	result := &Result{Backends: make([]string, 0, len(sources))}
	for i, src := range sources {
		name := src.Config.Name
		result.Backends = append(result.Backends, name)
		configs = append(configs, src.Config)
		o := snapshot[i]
		switch {
		case !o.done:
			result.FailedBackends = append(result.FailedBackends, name)
			log.Warn("backend missed aggregate deadline", "backend", name, "timeout", a.timeout)
		case o.err != nil:
			result.FailedBackends = append(result.FailedBackends, name)
			log.Warn("backend lookup failed", "backend", name, "error", o.err)
		default:
			bySource[name] = tagged(o.candidates, name)
		}
	}

	result.Degraded = len(result.FailedBackends) > 0
	result.Matches = merger.Merge(bySource, configs, req.MaxResults)
	if len(result.FailedBackends) == len(sources) {
		log.Error("all backends failed", "backends", len(sources))
	}
	log.Debug("lookup aggregated",
		"backends", len(sources),
		"failed", len(result.FailedBackends),
		"matches", len(result.Matches),
	)
	return result, nil
}

// tagged returns candidates attributed to name, copying only when a backend
// mislabelled them.
func tagged(candidates []tm.MatchCandidate, name string) []tm.MatchCandidate {
	for i := range candidates {
		if candidates[i].Backend != name {
			out := make([]tm.MatchCandidate, len(candidates))
			copy(out, candidates)
			for j := range out {
				out[j].Backend = name
			}
			return out
		}
	}
	return candidates
}
