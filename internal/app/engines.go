package app

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source/amagama"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source/peer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
)

// Engine tags accepted in a backend's ENGINE setting.
const (
	EngineLocal   = "local"
	EngineAmagama = "amagama"
	EnginePeer    = "peer"
)

// sharedStore opens the bbolt document store the first time a local backend
// needs it. bbolt locks the file, so every local backend shares one Store.
type sharedStore struct {
	cfg   config.IndexerConfig
	once  sync.Once
	store *indexer.Store
	err   error
}

func (s *sharedStore) open() (*indexer.Store, error) {
	s.once.Do(func() {
		s.store, s.err = indexer.OpenStore(s.cfg)
	})
	return s.store, s.err
}

// opened returns the store if some backend opened it.
func (s *sharedStore) opened() *indexer.Store {
	if s.store == nil || s.err != nil {
		return nil
	}
	return s.store
}

// newEngineSet registers the engines this binary ships with.
func newEngineSet(stores *sharedStore) *backend.EngineSet {
	set := backend.NewEngineSet()
	set.Register(EngineLocal, 0, func(_ context.Context, cfg backend.Config) (source.MatchSource, error) {
		store, err := stores.open()
		if err != nil {
			return nil, err
		}
		engine, err := store.Engine(cfg.IndexName)
		if err != nil {
			return nil, err
		}
		return engine, nil
	})
	set.Register(EngineAmagama, amagama.DefaultPort, func(_ context.Context, cfg backend.Config) (source.MatchSource, error) {
		return amagama.New(cfg.Name, cfg.Host, cfg.Port), nil
	})
	set.Register(EnginePeer, peer.DefaultPort, func(_ context.Context, cfg backend.Config) (source.MatchSource, error) {
		// INDEX_NAME names the backend on the remote instance; left at its
		// default it means the peer's local index.
		remote := ""
		if cfg.IndexName != backend.DefaultIndexName {
			remote = cfg.IndexName
		}
		return peer.New(cfg.Name, cfg.Addr(), remote, cfg.Timeout), nil
	})
	return set
}
