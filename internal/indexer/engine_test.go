package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

func openEngine(t *testing.T, dir, name string) (*Store, *Engine) {
	t.Helper()
	store, err := OpenStore(config.IndexerConfig{DataDir: dir})
	require.NoError(t, err)
	e, err := store.Engine(name)
	require.NoError(t, err)
	return store, e
}

func doc(project, src, tgt string, rev int64) tm.IndexDocument {
	return tm.NewIndexDocument(tm.TranslationUnit{
		SourceText:   src,
		TargetText:   tgt,
		SourceLocale: "en",
		TargetLocale: "fr",
		Project:      project,
		Checksum:     fmt.Sprintf("%s|%s", project, src),
		Revision:     rev,
	})
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Open file", "Open file"))
	assert.InDelta(t, 0.9, Similarity("Open files", "Open file"), 1e-9)
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 0.5, Similarity("日本", "日曜"), 1e-9)
}

func TestBulkIndexAndLookup(t *testing.T) {
	store, e := openEngine(t, t.TempDir(), "translations")
	defer store.Close()
	ctx := context.Background()

	docs := []tm.IndexDocument{
		doc("editor", "Open file", "Ouvrir le fichier", 1),
		doc("editor", "Open files", "Ouvrir les fichiers", 2),
		doc("other", "Open file", "Ouvrir un fichier", 3),
		doc("editor", "Close window", "Fermer la fenêtre", 4),
	}
	results, err := e.BulkIndex(ctx, docs)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, docs[i].ID, r.ID)
	}

	got, err := e.Lookup(ctx, source.Query{SourceText: "Open file", SourceLocale: "en", TargetLocale: "fr", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[0].RawScore)
	assert.Equal(t, 1.0, got[1].RawScore)
	assert.InDelta(t, 0.9, got[2].RawScore, 1e-9)
	assert.Equal(t, "Ouvrir les fichiers", got[2].TargetText)

	scoped, err := e.Lookup(ctx, source.Query{SourceText: "Open file", SourceLocale: "en", TargetLocale: "fr", Project: "other", Limit: 10})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "Ouvrir un fichier", scoped[0].TargetText)

	otherPair, err := e.Lookup(ctx, source.Query{SourceText: "Open file", SourceLocale: "en", TargetLocale: "de", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, otherPair)

	rev, err := e.LastRevision(ctx)
	require.NoError(t, err)
	assert.Zero(t, rev, "bulk writes leave the checkpoint to the importer")
	require.NoError(t, e.SaveRevision(ctx, 4))
	rev, err = e.LastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rev)
}

func TestBulkIndexRejectsMalformedPermanently(t *testing.T) {
	store, e := openEngine(t, t.TempDir(), "translations")
	defer store.Close()

	bad := doc("editor", "", "Vide", 1)
	good := doc("editor", "Save", "Enregistrer", 2)
	results, err := e.BulkIndex(context.Background(), []tm.IndexDocument{bad, good})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, apperrors.ErrDocumentRejectedPermanent)
	assert.NoError(t, results[1].Err)

	n, err := e.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReimportIsIdempotent(t *testing.T) {
	store, e := openEngine(t, t.TempDir(), "translations")
	defer store.Close()
	ctx := context.Background()

	docs := []tm.IndexDocument{doc("editor", "Open", "Ouvrir", 1), doc("editor", "Save", "Enregistrer", 2)}
	for range 3 {
		_, err := e.BulkIndex(ctx, docs)
		require.NoError(t, err)
	}
	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, e.mem.DocCount())
}

func TestReopenRebuildsMemoryIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, e := openEngine(t, dir, "translations")
	_, err := e.BulkIndex(ctx, []tm.IndexDocument{doc("editor", "Print document", "Imprimer le document", 9)})
	require.NoError(t, err)
	require.NoError(t, e.SaveRevision(ctx, 9))
	require.NoError(t, store.Close())

	store, e = openEngine(t, dir, "translations")
	defer store.Close()
	got, err := e.Lookup(ctx, source.Query{SourceText: "Print documents", SourceLocale: "en", TargetLocale: "fr", Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Imprimer le document", got[0].TargetText)

	rev, err := e.LastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rev)
}

func TestResetClearsIndex(t *testing.T) {
	store, e := openEngine(t, t.TempDir(), "translations")
	defer store.Close()
	ctx := context.Background()

	_, err := e.BulkIndex(ctx, []tm.IndexDocument{doc("editor", "Open", "Ouvrir", 5)})
	require.NoError(t, err)
	require.NoError(t, e.SaveRevision(ctx, 5))
	require.NoError(t, e.Reset(ctx))

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	rev, err := e.LastRevision(ctx)
	require.NoError(t, err)
	assert.Zero(t, rev)
	got, err := e.Lookup(ctx, source.Query{SourceText: "Open", SourceLocale: "en", TargetLocale: "fr"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndexesAreIsolated(t *testing.T) {
	store, a := openEngine(t, t.TempDir(), "a")
	defer store.Close()
	b, err := store.Engine("b")
	require.NoError(t, err)

	_, err = a.BulkIndex(context.Background(), []tm.IndexDocument{doc("p", "Open", "Ouvrir", 1)})
	require.NoError(t, err)

	got, err := b.Lookup(context.Background(), source.Query{SourceText: "Open", SourceLocale: "en", TargetLocale: "fr"})
	require.NoError(t, err)
	assert.Empty(t, got)

	same, err := store.Engine("a")
	require.NoError(t, err)
	assert.Same(t, a, same)
}
