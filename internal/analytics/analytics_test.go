package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/kafka"
)

func TestTypeOf(t *testing.T) {
	assert.Equal(t, EventLookup, TypeOf(3, false))
	assert.Equal(t, EventZeroResult, TypeOf(0, false))
	assert.Equal(t, EventDegraded, TypeOf(0, true))
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.RecordLookup(LookupEvent{SourceLocale: "en", TargetLocale: "fr", Returned: 3, LatencyMs: 10, CacheHit: true})
	a.RecordLookup(LookupEvent{SourceLocale: "en", TargetLocale: "fr", Returned: 0, LatencyMs: 30})
	a.RecordLookup(LookupEvent{SourceLocale: "en", TargetLocale: "de", Returned: 1, LatencyMs: 20,
		Degraded: true, FailedBackends: []string{"amagama"}})

	value, err := json.Marshal(kafka.ImportCompleted{Succeeded: 40, Failed: 2})
	require.NoError(t, err)
	require.NoError(t, a.HandleImportEvent(context.Background(), nil, value))
	dry, err := json.Marshal(kafka.ImportCompleted{Succeeded: 99, DryRun: true})
	require.NoError(t, err)
	require.NoError(t, a.HandleImportEvent(context.Background(), nil, dry))

	s := a.Stats()
	assert.Equal(t, int64(3), s.TotalLookups)
	assert.Equal(t, int64(1), s.ZeroResults)
	assert.Equal(t, int64(1), s.DegradedLookups)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(40), s.DocsIndexed)
	assert.Equal(t, int64(2), s.DocsRejected)
	assert.Equal(t, int64(1), s.ImportsCompleted)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(20), s.P50LatencyMs)
	assert.Equal(t, []KeyCount{{Key: "en/fr", Count: 2}, {Key: "en/de", Count: 1}}, s.TopLocalePairs)
	assert.Equal(t, []KeyCount{{Key: "amagama", Count: 1}}, s.BackendFailures)
}

func TestHandleLookupEventSkipsGarbage(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.HandleLookupEvent(context.Background(), nil, []byte("not json")))
	value, err := json.Marshal(LookupEvent{SourceLocale: "en", TargetLocale: "fr", Returned: 2})
	require.NoError(t, err)
	require.NoError(t, a.HandleLookupEvent(context.Background(), nil, value))
	assert.Equal(t, int64(1), a.Stats().TotalLookups)
}

func TestLatencySamplesAreBounded(t *testing.T) {
	a := NewAggregator()
	for i := range latencyWindow + 50 {
		a.RecordLookup(LookupEvent{LatencyMs: int64(i)})
	}
	assert.Equal(t, latencyWindow, a.window.len())
	// The oldest samples were overwritten.
	assert.Equal(t, int64(50), a.window.sorted()[0])
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.RecordLookup(LookupEvent{SourceLocale: "en", TargetLocale: "fr", Returned: 1})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tm/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalLookups)
}

func TestStatsHandlerTrimsRankings(t *testing.T) {
	a := NewAggregator()
	for _, target := range []string{"fr", "fr", "de", "es"} {
		a.RecordLookup(LookupEvent{SourceLocale: "en", TargetLocale: target, Returned: 1})
	}
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tm/stats?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []KeyCount{{Key: "en/fr", Count: 2}}, got.TopLocalePairs)
	assert.Equal(t, int64(4), got.TotalLookups)

	for _, bad := range []string{"-1", "many", "11"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tm/stats?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "top must be between 0 and 10")
	}
}
