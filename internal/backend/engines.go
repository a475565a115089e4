package backend

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
)

// Factory builds the match source for one resolved backend. The returned
// value may also implement source.IndexWriter and the other optional
// capabilities.
type Factory func(ctx context.Context, cfg Config) (source.MatchSource, error)

type engine struct {
	factory     Factory
	defaultPort int
}

// EngineSet is the closed set of engine tags known to the process. Engines
// are registered once at startup.
type EngineSet struct {
	mu      sync.RWMutex
	engines map[string]engine
}

func NewEngineSet() *EngineSet {
	return &EngineSet{engines: make(map[string]engine)}
}

// Register adds an engine tag. Registering a tag twice replaces it.
func (s *EngineSet) Register(tag string, defaultPort int, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[tag] = engine{factory: factory, defaultPort: defaultPort}
}

func (s *EngineSet) Has(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.engines[tag]
	return ok
}

// DefaultPort returns the standard port for tag, or 0 when unknown.
func (s *EngineSet) DefaultPort(tag string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines[tag].defaultPort
}

func (s *EngineSet) factory(tag string) (Factory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[tag]
	return e.factory, ok
}

// Tags lists the registered engine tags in lexical order.
func (s *EngineSet) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.engines))
	for tag := range s.engines {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
