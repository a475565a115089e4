// Package importer pushes translation units from the corpus into a
// backend's index in batches, with bounded writer concurrency and per
// document retry of transient rejections.
package importer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

const (
	DefaultBatchSize   = 500
	DefaultMaxInFlight = 4
	DefaultMaxAttempts = 4
)

// Options apply to one import run.
type Options struct {
	BatchSize int
	DryRun    bool
	// Backend labels metrics and logs.
	Backend string
}

// Indexer runs bulk imports. It is safe to share between runs; each run
// gets its own worker pool.
type Indexer struct {
	cfg     config.ImportConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewIndexer(cfg config.ImportConfig, m *metrics.Metrics) *Indexer {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Indexer{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "bulk-indexer"),
	}
}

// ImportCorpus writes every unit yielded by units to writer in batches of
// batchSize (the configured size when <= 0).
func (ix *Indexer) ImportCorpus(ctx context.Context, units iter.Seq2[tm.TranslationUnit, error], batchSize int, writer source.IndexWriter) (tm.ImportSummary, error) {
	return ix.Import(ctx, units, writer, Options{BatchSize: batchSize})
}

type pendingDoc struct {
	doc    tm.IndexDocument
	unitID string
}

type batchResult struct {
	succeeded int
	failures  []tm.Failure
	// unsettled is the lowest revision with a document that was neither
	// stored nor rejected for good in this run; zero when there is none.
	unsettled int64
}

// unsettle records that rev must be read again by the next run.
func (r *batchResult) unsettle(rev int64) {
	if r.unsettled == 0 || rev < r.unsettled {
		r.unsettled = rev
	}
}

// Import is ImportCorpus with per-run options. Document failures never abort
// the run: they are retried when transient and then recorded in the
// summary. An error is returned only when the unit stream fails or ctx is
// cancelled, and the summary still describes every batch that was
// submitted.
//
// units must be ordered by revision. The summary's Checkpoint is the highest
// revision R such that every unit at or below R was stored or rejected
// permanently; resuming after R loses nothing. Units whose transient
// rejections ran out of retries, units of an interrupted batch and units
// never submitted keep the checkpoint below their revision.
func (ix *Indexer) Import(ctx context.Context, units iter.Seq2[tm.TranslationUnit, error], writer source.IndexWriter, opts Options) (tm.ImportSummary, error) {
	start := time.Now()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = ix.cfg.BatchSize
	}
	log := ix.logger.With("backend", opts.Backend, "dry_run", opts.DryRun)

	pool, err := ants.NewPool(ix.cfg.MaxInFlight)
	if err != nil {
		return tm.ImportSummary{}, fmt.Errorf("creating writer pool: %w", err)
	}
	defer pool.Release()

	var limiter *rate.Limiter
	if ix.cfg.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ix.cfg.BatchesPerSecond), 1)
	}

	summary := tm.ImportSummary{DryRun: opts.DryRun, Failures: []tm.Failure{}}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		held batchResult
	)
	collect := func(r batchResult) {
		mu.Lock()
		defer mu.Unlock()
		summary.Succeeded += r.succeeded
		summary.Failed += len(r.failures)
		summary.Failures = append(summary.Failures, r.failures...)
		if r.unsettled != 0 {
			held.unsettle(r.unsettled)
		}
	}

	submit := func(batch []pendingDoc) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				collect(batchResult{unsettled: batch[0].doc.Revision})
				return err
			}
		}
		summary.Batches++
		summary.Attempted += len(batch)
		number := summary.Batches
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer ix.metrics.ImportStarted()()
			collect(ix.writeBatch(ctx, log.With("batch", number), batch, writer, opts))
		})
		if err != nil {
			wg.Done()
			collect(failAll(batch, err))
		}
		return nil
	}

	var runErr error
	batch := make([]pendingDoc, 0, batchSize)
	for u, err := range units {
		if err != nil {
			runErr = fmt.Errorf("reading corpus: %w", err)
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if u.Revision > summary.LastRevision {
			summary.LastRevision = u.Revision
		}
		batch = append(batch, pendingDoc{doc: tm.NewIndexDocument(u), unitID: u.ID})
		if len(batch) == batchSize {
			if err := submit(batch); err != nil {
				runErr = err
				batch = nil
				break
			}
			batch = make([]pendingDoc, 0, batchSize)
		}
	}
	switch {
	case runErr == nil && len(batch) > 0:
		runErr = submit(batch)
	case len(batch) > 0:
		collect(batchResult{unsettled: batch[0].doc.Revision})
	}
	wg.Wait()

	summary.Duration = time.Since(start)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	summary.Checkpoint = summary.LastRevision
	if runErr != nil {
		// The stream stopped early, so the last revision read may have
		// more units.
		summary.Checkpoint--
	}
	if held.unsettled != 0 {
		summary.Checkpoint = min(summary.Checkpoint, held.unsettled-1)
	}
	summary.Checkpoint = max(summary.Checkpoint, 0)
	log.Info("import finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"batches", summary.Batches,
		"last_revision", summary.LastRevision,
		"checkpoint", summary.Checkpoint,
		"duration", summary.Duration,
		"error", runErr,
	)
	return summary, runErr
}

// writeBatch submits batch and resubmits documents rejected transiently
// until they succeed or attempts run out. A whole-request failure counts as
// a transient rejection of every document still pending. Documents still
// rejected when attempts run out are escalated to permanent failures for
// this run; documents interrupted by ctx are not.
func (ix *Indexer) writeBatch(ctx context.Context, log *slog.Logger, batch []pendingDoc, writer source.IndexWriter, opts Options) batchResult {
	if opts.DryRun {
		return validateOnly(batch)
	}

	var result batchResult
	pending := batch
	lastReason := make(map[string]string)
	policy := resilience.Policy{
		Attempts:  ix.cfg.MaxAttempts,
		Initial:   ix.cfg.InitialBackoff,
		Max:       ix.cfg.MaxBackoff,
		Retryable: apperrors.IsTransient,
	}
	attempts := 0
	err := policy.Do(ctx, "bulk-index", func(attempt int) error {
		attempts = attempt
		if attempt > 1 {
			ix.metrics.ImportRetry()
		}
		docs := make([]tm.IndexDocument, len(pending))
		for i, p := range pending {
			docs[i] = p.doc
		}
		results, err := writer.BulkIndex(ctx, docs)
		if err == nil && len(results) != len(docs) {
			err = fmt.Errorf("writer returned %d results for %d documents", len(results), len(docs))
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for _, p := range pending {
				lastReason[p.doc.ID] = err.Error()
			}
			log.Warn("bulk write failed", "attempt", attempt, "documents", len(docs), "error", err)
			return apperrors.Transient(err)
		}

		retry := pending[:0:0]
		for i, r := range results {
			p := pending[i]
			switch {
			case r.Err == nil:
				result.succeeded++
			case apperrors.IsTransient(r.Err):
				lastReason[p.doc.ID] = r.Err.Error()
				retry = append(retry, p)
			default:
				result.failures = append(result.failures, tm.Failure{
					DocumentID: p.doc.ID,
					UnitID:     p.unitID,
					Reason:     r.Err.Error(),
					Permanent:  true,
				})
			}
		}
		pending = retry
		if len(pending) > 0 {
			return fmt.Errorf("%w: %d documents pending", apperrors.ErrDocumentRejectedTransient, len(pending))
		}
		return nil
	})

	interrupted := ctx.Err() != nil
	for _, p := range pending {
		reason := lastReason[p.doc.ID]
		if reason == "" && err != nil {
			reason = err.Error()
		}
		if !interrupted {
			reason = fmt.Sprintf("retries exhausted after %d attempts: %s", attempts, reason)
		}
		result.failures = append(result.failures, tm.Failure{
			DocumentID: p.doc.ID,
			UnitID:     p.unitID,
			Reason:     reason,
			Permanent:  !interrupted,
		})
		result.unsettle(p.doc.Revision)
	}

	indexed, rejected := result.succeeded, len(result.failures)
	ix.metrics.DocsIndexed(opts.Backend, "indexed", indexed)
	ix.metrics.DocsIndexed(opts.Backend, "rejected", rejected)
	switch {
	case rejected == 0:
		ix.metrics.ImportBatch("ok")
	case indexed == 0:
		ix.metrics.ImportBatch("failed")
	default:
		ix.metrics.ImportBatch("partial")
	}
	if errors.Is(err, context.Canceled) {
		log.Warn("batch interrupted", "indexed", indexed, "rejected", rejected)
	} else {
		log.Debug("batch written", "indexed", indexed, "rejected", rejected, "attempts", attempts)
	}
	return result
}

// validateOnly runs the structural checks a writer would apply without
// writing anything.
func validateOnly(batch []pendingDoc) batchResult {
	var result batchResult
	for _, p := range batch {
		if err := tm.ValidateDocument(p.doc); err != nil {
			result.failures = append(result.failures, tm.Failure{
				DocumentID: p.doc.ID,
				UnitID:     p.unitID,
				Reason:     err.Error(),
				Permanent:  true,
			})
			continue
		}
		result.succeeded++
	}
	return result
}

func failAll(batch []pendingDoc, err error) batchResult {
	out := batchResult{failures: make([]tm.Failure, len(batch))}
	for i, p := range batch {
		out.failures[i] = tm.Failure{DocumentID: p.doc.ID, UnitID: p.unitID, Reason: err.Error()}
		out.unsettle(p.doc.Revision)
	}
	return out
}
