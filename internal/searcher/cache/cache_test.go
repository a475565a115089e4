package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func lookupReq() aggregator.Request {
	return aggregator.Request{SourceText: "Open file", SourceLocale: "en", TargetLocale: "fr", MaxResults: 5}
}

func okResult() *aggregator.Result {
	return &aggregator.Result{
		Matches:  []tm.RankedMatch{{SourceText: "Open file", TargetText: "Ouvrir le fichier", Score: 1, Backends: []string{"local"}, Rank: 1}},
		Backends: []string{"local"},
	}
}

func TestGetOrComputeCachesHealthyResults(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	calls := 0
	compute := func(context.Context) (*aggregator.Result, error) {
		calls++
		return okResult(), nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), lookupReq(), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, res.Matches, 1)

	res, hit, err = c.GetOrCompute(context.Background(), lookupReq(), compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Ouvrir le fichier", res.Matches[0].TargetText)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, time.Minute, store.ttls[BuildKey(lookupReq())])
}

func TestDegradedResultsAreNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	degraded := okResult()
	degraded.Degraded = true
	degraded.FailedBackends = []string{"amagama"}

	_, _, err := c.GetOrCompute(context.Background(), lookupReq(), func(context.Context) (*aggregator.Result, error) {
		return degraded, nil
	})
	require.NoError(t, err)
	assert.Zero(t, store.len())
}

func TestComputeErrorPropagates(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), lookupReq(), func(context.Context) (*aggregator.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentLookupsComputeOnce(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*aggregator.Result, error) {
		calls.Add(1)
		<-release
		return okResult(), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), lookupReq(), compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBuildKey(t *testing.T) {
	base := lookupReq()
	spaced := base
	spaced.SourceText = "  Open   file "
	assert.Equal(t, BuildKey(base), BuildKey(spaced))
	assert.True(t, strings.HasPrefix(BuildKey(base), keyPrefix))

	for _, mutate := range []func(*aggregator.Request){
		func(r *aggregator.Request) { r.SourceText = "open file" },
		func(r *aggregator.Request) { r.TargetLocale = "de" },
		func(r *aggregator.Request) { r.Project = "editor" },
		func(r *aggregator.Request) { r.MaxResults = 6 },
	} {
		other := base
		mutate(&other)
		assert.NotEqual(t, BuildKey(base), BuildKey(other))
	}
}

func TestImportCompletedInvalidates(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), lookupReq(), okResult())
	require.Equal(t, 1, store.len())

	noop, err := json.Marshal(kafka.ImportCompleted{JobID: "j1", Backend: "local", DryRun: true, Succeeded: 10})
	require.NoError(t, err)
	require.NoError(t, c.HandleImportCompleted(context.Background(), nil, noop))
	assert.Equal(t, 1, store.len())

	changed, err := json.Marshal(kafka.ImportCompleted{JobID: "j2", Backend: "local", Succeeded: 10})
	require.NoError(t, err)
	require.NoError(t, c.HandleImportCompleted(context.Background(), nil, changed))
	assert.Zero(t, store.len())

	assert.Error(t, c.HandleImportCompleted(context.Background(), nil, []byte("{")))
}
