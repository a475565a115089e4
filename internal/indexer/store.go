package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
)

// Bucket layout: one top-level bucket per index name holding a "docs"
// sub-bucket (document ID -> JSON IndexDocument) and a "meta" sub-bucket.
var (
	bucketDocs      = []byte("docs")
	bucketMeta      = []byte("meta")
	keyLastRevision = []byte("last_revision")
)

const dbFileName = "tm.db"

// Store owns the bbolt file under the data directory. bbolt takes an
// exclusive file lock, so one Store is shared by every local backend of a
// process; each backend gets its own Engine keyed by index name.
type Store struct {
	db      *bolt.DB
	path    string
	mu      sync.Mutex
	engines map[string]*Engine
	logger  *slog.Logger
}

// OpenStore opens (or creates) the document store in cfg.DataDir.
func OpenStore(cfg config.IndexerConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	path := filepath.Join(cfg.DataDir, dbFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening document store %s: %w", path, err)
	}
	return &Store{
		db:      db,
		path:    path,
		engines: make(map[string]*Engine),
		logger:  slog.Default().With("component", "indexer-store"),
	}, nil
}

// Engine returns the engine for indexName, creating its buckets and loading
// its documents into memory on first use.
func (s *Store) Engine(indexName string) (*Engine, error) {
	if indexName == "" {
		return nil, fmt.Errorf("index name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[indexName]; ok {
		return e, nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(indexName))
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(bucketDocs); err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets for index %s: %w", indexName, err)
	}

	e := newEngine(indexName, s.db)
	start := time.Now()
	if err := e.load(); err != nil {
		return nil, fmt.Errorf("loading index %s: %w", indexName, err)
	}
	s.logger.Info("index loaded",
		"index", indexName,
		"docs", e.mem.DocCount(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	s.engines[indexName] = e
	return e, nil
}

// Ping checks that the store can still serve read transactions.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines = make(map[string]*Engine)
	return s.db.Close()
}
