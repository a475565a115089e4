package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
)

func benchEngine(b *testing.B, n int) *Engine {
	b.Helper()
	store, err := OpenStore(config.IndexerConfig{DataDir: b.TempDir()})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })
	e, err := store.Engine("bench")
	if err != nil {
		b.Fatal(err)
	}
	docs := make([]tm.IndexDocument, 0, n)
	for i := range n {
		docs = append(docs, doc("app", fmt.Sprintf("Open file number %d", i), fmt.Sprintf("Ouvrir le fichier %d", i), int64(i+1)))
	}
	if _, err := e.BulkIndex(context.Background(), docs); err != nil {
		b.Fatal(err)
	}
	return e
}

func BenchmarkEngineBulkIndex(b *testing.B) {
	e := benchEngine(b, 0)
	ctx := context.Background()
	b.ReportAllocs()
	batch := 0
	for b.Loop() {
		docs := make([]tm.IndexDocument, 100)
		for i := range docs {
			docs[i] = doc("app", fmt.Sprintf("Segment %d-%d", batch, i), "Segment", int64(batch*100+i+1))
		}
		if _, err := e.BulkIndex(ctx, docs); err != nil {
			b.Fatal(err)
		}
		batch++
	}
}

func BenchmarkEngineLookup(b *testing.B) {
	e := benchEngine(b, 5000)
	q := source.Query{SourceText: "Open file number 42", SourceLocale: "en", TargetLocale: "fr", Limit: 20}
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := e.Lookup(ctx, q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSimilarity(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = Similarity("Are you sure you want to delete this file?", "Are you sure you want to remove these files?")
	}
}
