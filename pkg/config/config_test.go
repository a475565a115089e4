package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
lookup:
  aggregateTimeout: 2s
tm:
  backends:
    zeta:
      ENGINE: local
      WEIGHT: 1.0
      MIN_SCORE: 0.3
    amagama:
      ENGINE: amagama
      HOST: amagama-live.translatehouse.org
      PORT: 443
      WEIGHT: 0.01
      ENABLED: false
    alpha:
`

func TestLoadPreservesBackendOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "amagama", "alpha"}, cfg.TM.Backends.Names())
	assert.Equal(t, 2*time.Second, cfg.Lookup.AggregateTimeout)

	amagama := cfg.TM.Backends[1]
	assert.Equal(t, "amagama", amagama.Engine)
	assert.Equal(t, "443", amagama.Port)
	assert.Equal(t, "0.01", amagama.Weight)
	assert.Equal(t, "false", amagama.Enabled)

	alpha := cfg.TM.Backends[2]
	assert.Equal(t, BackendEntry{Name: "alpha"}, alpha)
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Import.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Lookup.AggregateTimeout)
	assert.Empty(t, cfg.TM.Backends)
}

func TestParseRejectsDuplicateBackend(t *testing.T) {
	data := []byte("tm:\n  backends:\n    a:\n      ENGINE: local\n    a:\n      ENGINE: local\n")
	err := Parse(data, Default())
	require.Error(t, err)
}

func TestParseRejectsSequence(t *testing.T) {
	data := []byte("tm:\n  backends:\n    - a\n    - b\n")
	require.Error(t, Parse(data, Default()))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TM_IMPORT_BATCH_SIZE", "250")
	t.Setenv("TM_REDIS_ADDR", "cache:6379")
	t.Setenv("TM_LOOKUP_TIMEOUT", "750ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Import.BatchSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Lookup.AggregateTimeout)
}

func TestEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("TM_SERVER_PORT", "eighty")
	t.Setenv("TM_LOOKUP_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TM_SERVER_PORT")
	assert.Contains(t, err.Error(), "TM_LOOKUP_TIMEOUT")
}

func TestEnvListsAreTrimmed(t *testing.T) {
	cfg := Default()
	env := map[string]string{"TM_KAFKA_BROKERS": " k1:9092, ,k2:9092 "}
	require.NoError(t, applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestDSNQuotesValues(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "translate", Password: `it's secret`, Database: "tm", SSLMode: "disable"}
	assert.Equal(t, `host=db port=5432 user=translate password='it\'s secret' dbname=tm sslmode=disable`, p.DSN())

	p.Password = ""
	assert.NotContains(t, p.DSN(), "password")
}
