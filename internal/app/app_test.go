package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
)

func seedCorpus(t *testing.T, pairs map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE tm_units (
		id INTEGER PRIMARY KEY,
		source_text TEXT NOT NULL,
		target_text TEXT NOT NULL,
		source_locale TEXT NOT NULL,
		target_locale TEXT NOT NULL,
		project TEXT,
		checksum TEXT,
		submitter_email TEXT,
		submitter_name TEXT,
		revision INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	id := 0
	for src, tgt := range pairs {
		id++
		_, err := db.Exec(`INSERT INTO tm_units VALUES (?, ?, ?, 'en', 'fr', 'editor', ?, NULL, NULL, ?)`,
			id, src, tgt, fmt.Sprintf("sum%d", id), id)
		require.NoError(t, err)
	}
	return path
}

func testConfig(t *testing.T, corpusPath string, backends string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	cfg.Corpus = config.CorpusConfig{Driver: "sqlite", Path: corpusPath, Table: "tm_units", PageSize: 50}
	cfg.Kafka.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Analytics.SnapshotInterval = 0
	cfg.Lookup.AggregateTimeout = 2 * time.Second
	require.NoError(t, config.Parse([]byte(backends), cfg))
	return cfg
}

const localOnly = `
tm:
  backends:
    local:
      ENGINE: local
      MIN_SCORE: 0.3
`

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestImportThenLookupOverHTTP(t *testing.T) {
	corpusPath := seedCorpus(t, map[string]string{
		"Open file":    "Ouvrir le fichier",
		"Save file":    "Enregistrer le fichier",
		"Close window": "Fermer la fenêtre",
	})
	a := newApp(t, testConfig(t, corpusPath, localOnly))
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/tm/import", "application/json", strings.NewReader(`{"backend":"local"}`))
	require.NoError(t, err)
	var result importer.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)

	resp, err = http.Get(srv.URL + "/api/v1/tm/lookup?q=Open+file&source_locale=en&target_locale=fr")
	require.NoError(t, err)
	var body handler.LookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	require.NotEmpty(t, body.Matches)
	assert.Equal(t, "Ouvrir le fichier", body.Matches[0].TargetText)
	assert.Equal(t, []string{"local"}, body.Matches[0].Backends)
	assert.False(t, body.Degraded)
	for _, m := range body.Matches {
		assert.GreaterOrEqual(t, m.Score, 0.3)
	}

	// The lookup went to the in-process stats since Kafka is off.
	assert.EqualValues(t, 1, a.Stats.Stats().TotalLookups)
	assert.EqualValues(t, 1, a.Stats.Stats().ImportsCompleted)

	// A second import resumes after the stored revision and finds nothing.
	again, err := a.RunImport(context.Background(), importer.Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Cursor)
	assert.Zero(t, again.Attempted)
}

func TestHealthAndBackends(t *testing.T) {
	a := newApp(t, testConfig(t, seedCorpus(t, nil), localOnly))
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/tm/backends")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Backends []struct {
			Name     string `json:"name"`
			Engine   string `json:"engine"`
			Writable bool   `json:"writable"`
		} `json:"backends"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Backends, 1)
	assert.Equal(t, "local", body.Backends[0].Name)
	assert.True(t, body.Backends[0].Writable)
}

func TestImportUnavailableWithoutCorpus(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing", "corpus.db"), localOnly)
	a := newApp(t, cfg)
	require.Nil(t, a.Importer)

	_, err := a.RunImport(context.Background(), importer.Request{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tm/import", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPeerBackendReachesAnotherInstance(t *testing.T) {
	upstream := newApp(t, testConfig(t, seedCorpus(t, map[string]string{"Open file": "Ouvrir le fichier"}), localOnly))
	_, err := upstream.RunImport(context.Background(), importer.Request{})
	require.NoError(t, err)

	rpc := upstream.RPCServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = rpc.ServeListener(ln) }()
	t.Cleanup(rpc.Stop)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	downstream := newApp(t, testConfig(t, seedCorpus(t, nil), fmt.Sprintf(`
tm:
  backends:
    upstream:
      ENGINE: peer
      HOST: %s
      PORT: %s
`, host, port)))

	src, err := downstream.Registry.Source("upstream")
	require.NoError(t, err)
	cands, err := src.Lookup(context.Background(), source.Query{
		SourceText: "Open file", SourceLocale: "en", TargetLocale: "fr", Limit: 20,
	})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "Ouvrir le fichier", cands[0].TargetText)

	res, err := downstream.Aggregator.Lookup(context.Background(), aggregator.Request{
		SourceText: "Open file", SourceLocale: "en", TargetLocale: "fr", MaxResults: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, []string{"upstream"}, res.Matches[0].Backends)
}

func TestEngineDefaultPorts(t *testing.T) {
	set := newEngineSet(&sharedStore{})
	assert.Equal(t, 0, set.DefaultPort(EngineLocal))
	assert.Equal(t, 443, set.DefaultPort(EngineAmagama))
	assert.Equal(t, 9400, set.DefaultPort(EnginePeer))
}
