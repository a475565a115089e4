package importer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

func testConfig() config.ImportConfig {
	return config.ImportConfig{
		BatchSize:      500,
		MaxInFlight:    4,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func makeUnits(n int) []tm.TranslationUnit {
	out := make([]tm.TranslationUnit, n)
	for i := range out {
		out[i] = tm.TranslationUnit{
			ID:           fmt.Sprint(i + 1),
			SourceText:   fmt.Sprintf("Source string %d", i),
			TargetText:   fmt.Sprintf("Chaîne cible %d", i),
			SourceLocale: "en",
			TargetLocale: "fr",
			Project:      "editor",
			Checksum:     fmt.Sprintf("sum-%d", i),
			Revision:     int64(i/10 + 1),
		}
	}
	return out
}

func seq(units []tm.TranslationUnit) iter.Seq2[tm.TranslationUnit, error] {
	return func(yield func(tm.TranslationUnit, error) bool) {
		for _, u := range units {
			if !yield(u, nil) {
				return
			}
		}
	}
}

// recordingWriter validates like a real engine and can be told to fail.
type recordingWriter struct {
	mu          sync.Mutex
	calls       int
	batchSizes  []int
	stored      map[string]bool
	transientN  map[string]int
	failWhole   int
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{stored: map[string]bool{}, transientN: map[string]int{}}
}

func (w *recordingWriter) BulkIndex(ctx context.Context, docs []tm.IndexDocument) ([]source.DocResult, error) {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		cur := w.maxInFlight.Load()
		if n <= cur || w.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if w.delay > 0 {
		time.Sleep(w.delay)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.batchSizes = append(w.batchSizes, len(docs))
	if w.failWhole > 0 {
		w.failWhole--
		return nil, errors.New("connection reset")
	}
	out := make([]source.DocResult, len(docs))
	for i, d := range docs {
		out[i].ID = d.ID
		if err := tm.ValidateDocument(d); err != nil {
			out[i].Err = apperrors.Permanent("%v", err)
			continue
		}
		if w.transientN[d.ID] > 0 {
			w.transientN[d.ID]--
			out[i].Err = apperrors.Transient(errors.New("shard busy"))
			continue
		}
		w.stored[d.ID] = true
	}
	return out, nil
}

func TestImportBatchesCorpus(t *testing.T) {
	w := newRecordingWriter()
	ix := NewIndexer(testConfig(), nil)

	summary, err := ix.ImportCorpus(context.Background(), seq(makeUnits(2500)), 500, w)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Batches)
	assert.Equal(t, 5, w.calls)
	assert.Equal(t, []int{500, 500, 500, 500, 500}, w.batchSizes)
	assert.Equal(t, 2500, summary.Attempted)
	assert.Equal(t, 2500, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, int64(250), summary.LastRevision)
	assert.Equal(t, int64(250), summary.Checkpoint)
	assert.Len(t, w.stored, 2500)
}

func TestImportRecordsMalformedAsPermanent(t *testing.T) {
	units := makeUnits(2500)
	units[3].SourceText = ""
	units[1200].TargetText = "   "
	units[2499].SourceLocale = ""

	w := newRecordingWriter()
	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), seq(units), 500, w)
	require.NoError(t, err)
	assert.Equal(t, 2497, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Failures, 3)
	unitIDs := map[string]bool{}
	for _, f := range summary.Failures {
		assert.True(t, f.Permanent)
		assert.NotEmpty(t, f.Reason)
		unitIDs[f.UnitID] = true
	}
	assert.Equal(t, map[string]bool{"4": true, "1201": true, "2500": true}, unitIDs)
	assert.Equal(t, 5, w.calls, "permanent rejections are not retried")
}

func TestImportRetriesTransientDocuments(t *testing.T) {
	units := makeUnits(10)
	flaky := tm.NewIndexDocument(units[2]).ID
	hopeless := tm.NewIndexDocument(units[7]).ID

	w := newRecordingWriter()
	w.transientN[flaky] = 2
	w.transientN[hopeless] = 100

	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), seq(units), 10, w)
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Succeeded)
	require.Len(t, summary.Failures, 1)
	f := summary.Failures[0]
	assert.Equal(t, hopeless, f.DocumentID)
	assert.True(t, f.Permanent, "exhausted transient rejections escalate")
	assert.Contains(t, f.Reason, "retries exhausted after 3 attempts")
	assert.Contains(t, f.Reason, "shard busy")
	assert.Equal(t, 1, strings.Count(f.Reason, apperrors.ErrDocumentRejectedTransient.Error()))
	assert.True(t, w.stored[flaky])
	assert.Equal(t, []int{10, 2, 2}, w.batchSizes, "only rejected documents are resubmitted")
	assert.Zero(t, summary.Checkpoint, "revision 1 is incomplete")
}

func TestImportRetriesWholeRequestFailure(t *testing.T) {
	w := newRecordingWriter()
	w.failWhole = 1
	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), seq(makeUnits(20)), 20, w)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Succeeded)
	assert.Equal(t, 2, w.calls)
}

func TestImportWholeRequestFailureExhausted(t *testing.T) {
	w := newRecordingWriter()
	w.failWhole = 100
	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), seq(makeUnits(5)), 5, w)
	require.NoError(t, err, "document failures never abort the run")
	assert.Equal(t, 5, summary.Failed)
	for _, f := range summary.Failures {
		assert.True(t, f.Permanent)
		assert.Contains(t, f.Reason, "retries exhausted after 3 attempts")
		assert.Contains(t, f.Reason, "connection reset")
	}
	assert.Zero(t, summary.Checkpoint)
}

func TestImportBoundsWritersInFlight(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInFlight = 2
	w := newRecordingWriter()
	w.delay = 20 * time.Millisecond

	summary, err := NewIndexer(cfg, nil).ImportCorpus(context.Background(), seq(makeUnits(100)), 10, w)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Batches)
	assert.Equal(t, 100, summary.Succeeded)
	assert.LessOrEqual(t, w.maxInFlight.Load(), int32(2))
	assert.GreaterOrEqual(t, w.maxInFlight.Load(), int32(1))
}

func TestImportStreamErrorStopsButReportsProgress(t *testing.T) {
	units := makeUnits(30)
	broken := func(yield func(tm.TranslationUnit, error) bool) {
		for i, u := range units {
			if i == 25 {
				yield(tm.TranslationUnit{}, errors.New("connection lost"))
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}

	w := newRecordingWriter()
	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), broken, 10, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Equal(t, 20, summary.Attempted)
	assert.Equal(t, 20, summary.Succeeded)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, int64(3), summary.LastRevision)
	// Revision 3 was only partly read and never written.
	assert.Equal(t, int64(2), summary.Checkpoint)
}

func TestImportCheckpointStopsBeforeFailedBatch(t *testing.T) {
	units := makeUnits(40)
	w := newRecordingWriter()
	for _, u := range units[10:20] {
		w.transientN[tm.NewIndexDocument(u).ID] = 100
	}
	cfg := testConfig()
	cfg.MaxInFlight = 1

	summary, err := NewIndexer(cfg, nil).ImportCorpus(context.Background(), seq(units), 10, w)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Succeeded)
	assert.Equal(t, 10, summary.Failed)
	assert.Equal(t, int64(4), summary.LastRevision)
	assert.Equal(t, int64(1), summary.Checkpoint)
}

func TestImportCheckpointIgnoresPermanentRejections(t *testing.T) {
	units := makeUnits(30)
	units[15].SourceText = ""
	summary, err := NewIndexer(testConfig(), nil).ImportCorpus(context.Background(), seq(units), 10, newRecordingWriter())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(3), summary.Checkpoint)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	units := makeUnits(12)
	units[5].TargetText = ""
	w := newRecordingWriter()
	summary, err := NewIndexer(testConfig(), nil).Import(context.Background(), seq(units), w, Options{BatchSize: 5, DryRun: true})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 11, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, w.calls)
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewIndexer(testConfig(), nil).ImportCorpus(ctx, seq(makeUnits(10)), 5, newRecordingWriter())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReimportIsIdempotentOnLocalEngine(t *testing.T) {
	store, err := indexer.OpenStore(config.IndexerConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	engine, err := store.Engine("translations")
	require.NoError(t, err)

	units := makeUnits(1200)
	units[10].SourceText = ""
	ix := NewIndexer(testConfig(), nil)
	for range 2 {
		summary, err := ix.ImportCorpus(context.Background(), seq(units), 500, engine)
		require.NoError(t, err)
		assert.Equal(t, 1199, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
		assert.True(t, summary.Failures[0].Permanent)
		assert.Equal(t, int64(120), summary.Checkpoint)
	}
	count, err := engine.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1199, count)
}
