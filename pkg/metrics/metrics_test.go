package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.TrackHTTP("GET", "/x")(200)
	m.ObserveLookup("ok", "miss", 3, time.Millisecond)
	m.ObserveBackend("local", "ok", time.Millisecond)
	m.BreakerState("local", 1)
	m.CacheHit()
	m.DocsIndexed("local", "indexed", 2)
	m.ImportStarted()()
}

func TestServerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveLookup("ok", "miss", 2, 5*time.Millisecond)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	srv := httptest.NewServer(NewServer(0, reg).Handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `tm_lookups_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), `tm_cache_requests_total{result="miss"} 2`)
}
