package importer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

// WriterSource resolves a backend name to its index writer.
type WriterSource interface {
	Writer(name string) (source.IndexWriter, error)
}

// UnitSource streams the corpus from a revision onwards.
type UnitSource interface {
	Units(ctx context.Context, afterRevision int64) iter.Seq2[tm.TranslationUnit, error]
}

// Request describes one import run. A nil Cursor resumes after the
// backend's saved checkpoint; Rebuild clears the backend and starts from the
// beginning.
type Request struct {
	Backend   string `json:"backend"`
	Cursor    *int64 `json:"cursor,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
	Rebuild   bool   `json:"rebuild,omitempty"`
}

// Result is a finished run.
type Result struct {
	JobID   string `json:"job_id"`
	Backend string `json:"backend"`
	Cursor  int64  `json:"cursor"`
	tm.ImportSummary
}

// Service runs imports from the corpus into a named backend. Only one run
// may be active at a time per Service.
type Service struct {
	writers        WriterSource
	corpus         UnitSource
	indexer        *Indexer
	publisher      kafka.Publisher
	defaultBackend string
	running        sync.Mutex
	logger         *slog.Logger
}

func NewService(writers WriterSource, corpus UnitSource, indexer *Indexer, publisher kafka.Publisher, defaultBackend string) *Service {
	if publisher == nil {
		publisher = kafka.Discard{}
	}
	return &Service{
		writers:        writers,
		corpus:         corpus,
		indexer:        indexer,
		publisher:      publisher,
		defaultBackend: defaultBackend,
		logger:         slog.Default().With("component", "import-service"),
	}
}

// Run executes req. The returned Result is non-nil whenever the import
// started, even if it ended with an error.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if !s.running.TryLock() {
		return nil, apperrors.Public(apperrors.ErrInvalidInput, http.StatusConflict, "an import is already running")
	}
	defer s.running.Unlock()

	if req.Backend == "" {
		req.Backend = s.defaultBackend
	}
	if req.Cursor != nil && *req.Cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", apperrors.ErrInvalidInput)
	}
	if req.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch_size must not be negative", apperrors.ErrInvalidInput)
	}
	writer, err := s.writers.Writer(req.Backend)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	log := s.logger.With("job_id", jobID, "backend", req.Backend)

	cursor, err := s.cursor(ctx, req, writer)
	if err != nil {
		return nil, err
	}
	if req.Rebuild && !req.DryRun {
		r, ok := writer.(source.Resetter)
		if !ok {
			return nil, fmt.Errorf("%w: backend %q cannot be rebuilt", apperrors.ErrUnsupportedEngine, req.Backend)
		}
		if err := r.Reset(ctx); err != nil {
			return nil, fmt.Errorf("resetting backend %q: %w", req.Backend, err)
		}
		log.Info("backend cleared for rebuild")
	}

	log.Info("import started", "cursor", cursor, "batch_size", req.BatchSize, "dry_run", req.DryRun)
	summary, runErr := s.indexer.Import(ctx, s.corpus.Units(ctx, cursor), writer, Options{
		BatchSize: req.BatchSize,
		DryRun:    req.DryRun,
		Backend:   req.Backend,
	})
	if summary.LastRevision < cursor {
		summary.LastRevision = cursor
	}
	if summary.Checkpoint < cursor {
		summary.Checkpoint = cursor
	}
	result := &Result{JobID: jobID, Backend: req.Backend, Cursor: cursor, ImportSummary: summary}
	if !req.DryRun {
		s.saveCheckpoint(ctx, log, writer, summary.Checkpoint)
	}

	if summary.Attempted > 0 || req.Rebuild {
		s.announce(ctx, log, result)
	}
	if runErr != nil {
		return result, fmt.Errorf("import %s into %q: %w", jobID, req.Backend, runErr)
	}
	return result, nil
}

func (s *Service) cursor(ctx context.Context, req Request, writer source.IndexWriter) (int64, error) {
	switch {
	case req.Rebuild:
		return 0, nil
	case req.Cursor != nil:
		return *req.Cursor, nil
	}
	tracker, ok := writer.(source.RevisionTracker)
	if !ok {
		return 0, nil
	}
	rev, err := tracker.LastRevision(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading last revision of %q: %w", req.Backend, err)
	}
	return rev, nil
}

// saveCheckpoint stores where the next incremental run starts. It runs on a
// detached context so a cancelled run still records its progress.
func (s *Service) saveCheckpoint(ctx context.Context, log *slog.Logger, writer source.IndexWriter, rev int64) {
	tracker, ok := writer.(source.RevisionTracker)
	if !ok {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := tracker.SaveRevision(saveCtx, rev); err != nil {
		log.Error("failed to save import checkpoint", "checkpoint", rev, "error", err)
		return
	}
	log.Info("import checkpoint saved", "checkpoint", rev)
}

// announce tells every instance that the backend changed. It uses a fresh
// context so a cancelled run is still reported.
func (s *Service) announce(ctx context.Context, log *slog.Logger, result *Result) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	event := kafka.ImportCompleted{
		JobID:      result.JobID,
		Backend:    result.Backend,
		Attempted:  result.Attempted,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Checkpoint: result.Checkpoint,
		DryRun:     result.DryRun,
		FinishedAt: time.Now().UTC(),
	}
	if err := s.publisher.Send(pubCtx, kafka.Event{Key: result.Backend, Value: event}); err != nil {
		log.Error("failed to publish import completion", "error", err)
	}
}
