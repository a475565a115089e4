// Package indexer implements the "local" translation memory engine: documents
// are persisted in bbolt and served from an in-memory inverted index that is
// rebuilt from the store on startup. Similarity is an edit-distance ratio on
// the native 0..1 scale.
package indexer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

const (
	defaultLimit = 20
	minScanned   = 200
)

// Engine serves one index name. Writes are serialized; lookups read the
// memory index concurrently and see a write once its transaction commits.
type Engine struct {
	name    string
	db      *bolt.DB
	mem     *index.MemoryIndex
	writeMu sync.Mutex
	logger  *slog.Logger
}

var (
	_ source.MatchSource     = (*Engine)(nil)
	_ source.IndexWriter     = (*Engine)(nil)
	_ source.RevisionTracker = (*Engine)(nil)
	_ source.Resetter        = (*Engine)(nil)
)

func newEngine(name string, db *bolt.DB) *Engine {
	return &Engine{
		name:   name,
		db:     db,
		mem:    index.NewMemoryIndex(),
		logger: slog.Default().With("component", "indexer", "index", name),
	}
}

// Name returns the index name.
func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) load() error {
	return e.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket([]byte(e.name)).Bucket(bucketDocs)
		return docs.ForEach(func(k, v []byte) error {
			var doc tm.IndexDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				e.logger.Error("skipping undecodable document", "doc_id", string(k), "error", err)
				return nil
			}
			e.memPut(doc)
			return nil
		})
	})
}

func (e *Engine) memPut(doc tm.IndexDocument) {
	e.mem.Put(index.Entry{
		DocID:        doc.ID,
		SourceText:   doc.SourceText,
		TargetText:   doc.TargetText,
		Project:      doc.Project,
		SourceLocale: doc.SourceLocale,
		TargetLocale: doc.TargetLocale,
	}, tokenizer.Terms(doc.SourceText, doc.SourceLocale), tokenizer.Normalize(doc.SourceText))
}

// Lookup returns up to q.Limit stored units in the query's locale pair
// ranked by similarity of their source text to the query.
func (e *Engine) Lookup(ctx context.Context, q source.Query) ([]tm.MatchCandidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var accept func(*index.Entry) bool
	if q.Project != "" {
		accept = func(en *index.Entry) bool { return en.Project == q.Project }
	}
	postings := e.mem.Candidates(
		index.PairKey(q.SourceLocale, q.TargetLocale),
		tokenizer.Terms(q.SourceText, q.SourceLocale),
		tokenizer.Normalize(q.SourceText),
		accept,
		max(limit*10, minScanned),
	)

	candidates := make([]tm.MatchCandidate, 0, len(postings))
	for i, p := range postings {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := Similarity(q.SourceText, p.Entry.SourceText)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, tm.MatchCandidate{
			UnitRef:    p.Entry.DocID,
			SourceText: p.Entry.SourceText,
			TargetText: p.Entry.TargetText,
			RawScore:   score,
			Backend:    e.name,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RawScore != candidates[j].RawScore {
			return candidates[i].RawScore > candidates[j].RawScore
		}
		return candidates[i].UnitRef < candidates[j].UnitRef
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// BulkIndex upserts docs in a single transaction. Documents that fail
// validation are rejected permanently and the rest are still written. If
// the transaction fails every valid document is rejected transiently.
func (e *Engine) BulkIndex(ctx context.Context, docs []tm.IndexDocument) ([]source.DocResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]source.DocResult, len(docs))
	type encoded struct {
		pos  int
		data []byte
	}
	valid := make([]encoded, 0, len(docs))
	for i, doc := range docs {
		results[i].ID = doc.ID
		if err := tm.ValidateDocument(doc); err != nil {
			results[i].Err = apperrors.Permanent("%v", err)
			continue
		}
		data, err := json.Marshal(doc)
		if err != nil {
			results[i].Err = apperrors.Permanent("encoding document: %v", err)
			continue
		}
		valid = append(valid, encoded{pos: i, data: data})
	}
	if len(valid) == 0 {
		return results, nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	err := e.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(e.name))
		if root == nil {
			return fmt.Errorf("index %s has no bucket", e.name)
		}
		bucket := root.Bucket(bucketDocs)
		for _, v := range valid {
			if err := bucket.Put([]byte(docs[v.pos].ID), v.data); err != nil {
				return fmt.Errorf("writing %s: %w", docs[v.pos].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("bulk write failed", "docs", len(valid), "error", err)
		for _, v := range valid {
			results[v.pos].Err = apperrors.Transient(err)
		}
		return results, nil
	}

	for _, v := range valid {
		e.memPut(docs[v.pos])
	}
	e.logger.Debug("bulk write committed", "docs", len(valid), "rejected", len(docs)-len(valid))
	return results, nil
}

// LastRevision returns the saved import checkpoint, 0 when none was saved.
func (e *Engine) LastRevision(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var rev int64
	err := e.db.View(func(tx *bolt.Tx) error {
		rev = readRevision(tx.Bucket([]byte(e.name)).Bucket(bucketMeta))
		return nil
	})
	return rev, err
}

// SaveRevision replaces the import checkpoint. Bulk writes never move it;
// the importer saves it once it knows which revisions are complete.
func (e *Engine) SaveRevision(ctx context.Context, rev int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(e.name)).Bucket(bucketMeta).Put(keyLastRevision, encodeRevision(rev))
	})
	if err != nil {
		return fmt.Errorf("saving checkpoint of %s: %w", e.name, err)
	}
	return nil
}

// Reset drops every document and the revision checkpoint.
func (e *Engine) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err := e.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(e.name))
		for _, name := range [][]byte{bucketDocs, bucketMeta} {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := root.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resetting index %s: %w", e.name, err)
	}
	e.mem.Reset()
	e.logger.Info("index reset")
	return nil
}

// Count returns the number of stored documents.
func (e *Engine) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := e.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(e.name)).Bucket(bucketDocs).Stats().KeyN
		return nil
	})
	return n, err
}

// Get returns a stored document by ID.
func (e *Engine) Get(ctx context.Context, id string) (tm.IndexDocument, bool, error) {
	var doc tm.IndexDocument
	if err := ctx.Err(); err != nil {
		return doc, false, err
	}
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(e.name)).Bucket(bucketDocs).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &doc)
	})
	return doc, found, err
}

// Ping reports whether the underlying store is readable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.View(func(*bolt.Tx) error { return nil })
}

func readRevision(meta *bolt.Bucket) int64 {
	v := meta.Get(keyLastRevision)
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func encodeRevision(rev int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rev))
	return buf
}
