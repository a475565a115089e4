// Package config reads the service configuration: a YAML file layered over
// built-in defaults, then TM_* environment variables layered over that.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Import    ImportConfig    `yaml:"import"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	TM        TMConfig        `yaml:"tm"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig is the public HTTP listener. RateLimit is lookups per second
// per client IP; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimit       float64       `yaml:"rateLimit"`
	RateBurst       int           `yaml:"rateBurst"`
}

// RPCConfig is the listener peer instances call.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN renders the settings as lib/pq key=value pairs, quoting values so a
// password may contain spaces or quotes.
func (p PostgresConfig) DSN() string {
	pairs := [][2]string{
		{"host", p.Host},
		{"port", strconv.Itoa(p.Port)},
		{"user", p.User},
		{"password", p.Password},
		{"dbname", p.Database},
		{"sslmode", p.SSLMode},
	}
	var b strings.Builder
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(quoteDSN(kv[1]))
	}
	return b.String()
}

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// CorpusConfig says where imports read translation units from: "postgres"
// uses the postgres section, "sqlite" opens Path.
type CorpusConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Table    string `yaml:"table"`
	PageSize int    `yaml:"pageSize"`
}

type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	ImportComplete  string `yaml:"importComplete"`
	LookupAnalytics string `yaml:"lookupAnalytics"`
}

// RedisConfig backs the lookup cache. CacheTTL bounds how stale a cached
// lookup may be.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig places the bbolt store behind local backends.
type IndexerConfig struct {
	DataDir     string        `yaml:"dataDir"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
}

type LookupConfig struct {
	AggregateTimeout time.Duration `yaml:"aggregateTimeout"`
	DefaultResults   int           `yaml:"defaultResults"`
	MaxResults       int           `yaml:"maxResults"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// ImportConfig tunes bulk indexing. BatchesPerSecond of zero means
// unthrottled.
type ImportConfig struct {
	Backend          string        `yaml:"backend"`
	BatchSize        int           `yaml:"batchSize"`
	MaxInFlight      int           `yaml:"maxInFlight"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	InitialBackoff   time.Duration `yaml:"initialBackoff"`
	MaxBackoff       time.Duration `yaml:"maxBackoff"`
	BatchesPerSecond float64       `yaml:"batchesPerSecond"`
}

// AnalyticsConfig controls lookup event collection and the periodic stats
// snapshots. SnapshotDriver is "postgres" (uses the Postgres section) or
// "sqlite" (uses SnapshotPath). A zero SnapshotInterval disables snapshots.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotDriver   string        `yaml:"snapshotDriver"`
	SnapshotPath     string        `yaml:"snapshotPath"`
}

// TMConfig lists the backends in declaration order.
type TMConfig struct {
	Backends BackendEntries `yaml:"backends"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load builds the configuration: defaults, then the file at path if path
// is not empty, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over cfg; keys absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{Enabled: true, Port: 9400},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "translate",
			User:            "translate",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Corpus: CorpusConfig{Driver: "postgres", Table: "tm_units", PageSize: 1000},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tmserver-group",
			Topics: KafkaTopics{
				ImportComplete:  "tm.import-complete",
				LookupAnalytics: "tm.lookup-events",
			},
		},
		Redis:   RedisConfig{Addr: "localhost:6379", PoolSize: 10, CacheTTL: 5 * time.Minute},
		Indexer: IndexerConfig{DataDir: "./data/tm", OpenTimeout: 5 * time.Second},
		Lookup: LookupConfig{
			AggregateTimeout: 5 * time.Second,
			DefaultResults:   5,
			MaxResults:       50,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Import: ImportConfig{
			Backend:        "local",
			BatchSize:      500,
			MaxInFlight:    4,
			MaxAttempts:    4,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BatchSize:      100,
			FlushInterval:  5 * time.Second,
			SnapshotDriver: "sqlite",
			SnapshotPath:   "./data/tm/analytics.db",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Port: 9090},
	}
}

// envVar binds one TM_* variable to a setter. A setter error names a value
// that could not be parsed.
type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *field(c) = v; return nil }
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func list(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var envVars = []envVar{
	{"TM_SERVER_PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"TM_SERVER_CORS_ORIGINS", func(c *Config, v string) error { c.Server.CORSOrigins = list(v); return nil }},
	{"TM_RPC_PORT", integer(func(c *Config) *int { return &c.RPC.Port })},
	{"TM_POSTGRES_HOST", str(func(c *Config) *string { return &c.Postgres.Host })},
	{"TM_POSTGRES_PORT", integer(func(c *Config) *int { return &c.Postgres.Port })},
	{"TM_POSTGRES_DATABASE", str(func(c *Config) *string { return &c.Postgres.Database })},
	{"TM_POSTGRES_USER", str(func(c *Config) *string { return &c.Postgres.User })},
	{"TM_POSTGRES_PASSWORD", str(func(c *Config) *string { return &c.Postgres.Password })},
	{"TM_POSTGRES_SSLMODE", str(func(c *Config) *string { return &c.Postgres.SSLMode })},
	{"TM_CORPUS_DRIVER", str(func(c *Config) *string { return &c.Corpus.Driver })},
	{"TM_CORPUS_PATH", str(func(c *Config) *string { return &c.Corpus.Path })},
	// Naming brokers or a redis address switches the integration on.
	{"TM_KAFKA_BROKERS", func(c *Config, v string) error {
		c.Kafka.Brokers, c.Kafka.Enabled = list(v), true
		return nil
	}},
	{"TM_REDIS_ADDR", func(c *Config, v string) error {
		c.Redis.Addr, c.Redis.Enabled = v, true
		return nil
	}},
	{"TM_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"TM_INDEXER_DATA_DIR", str(func(c *Config) *string { return &c.Indexer.DataDir })},
	{"TM_LOOKUP_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Lookup.AggregateTimeout })},
	{"TM_IMPORT_BATCH_SIZE", integer(func(c *Config) *int { return &c.Import.BatchSize })},
	{"TM_IMPORT_MAX_IN_FLIGHT", integer(func(c *Config) *int { return &c.Import.MaxInFlight })},
	{"TM_ANALYTICS_SNAPSHOT_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Analytics.SnapshotInterval })},
	{"TM_LOGGING_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"TM_LOGGING_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnv applies every set variable and reports all malformed ones
// together.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ev.name, v, err))
		}
	}
	return errors.Join(errs...)
}
