// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the search
// core (Index, Search, Ranking) and for the service dependencies around it
// (Server, Cache, Redis, Kafka, Postgres, Analytics, Snapshot, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig controls tokenization and the corpus loaded at startup.
type IndexConfig struct {
	CorpusPath      string `yaml:"corpusPath"`
	MinTokenLength  int    `yaml:"minTokenLength"`
	MaxTokenLength  int    `yaml:"maxTokenLength"`
	RemoveStopWords bool   `yaml:"removeStopWords"`
	Stem            bool   `yaml:"stem"`
}

// SearchConfig controls query execution: paging limits, fuzzy matching,
// score blending, session history and parallel scoring.
type SearchConfig struct {
	DefaultLimit      int     `yaml:"defaultLimit"`
	MaxLimit          int     `yaml:"maxLimit"` // largest limit the HTTP API accepts, 0 for no bound
	InstantLimit      int     `yaml:"instantLimit"`
	SuggestionLimit   int     `yaml:"suggestionLimit"`
	FuzzyThreshold    float64 `yaml:"fuzzyThreshold"`
	MaxEditDistance   int     `yaml:"maxEditDistance"`
	MatchWeight       float64 `yaml:"matchWeight"`
	RelevanceWeight   float64 `yaml:"relevanceWeight"`
	HistorySize       int     `yaml:"historySize"`
	PopularCapacity   int     `yaml:"popularCapacity"`
	ScoringWorkers    int     `yaml:"scoringWorkers"`
	ParallelThreshold int     `yaml:"parallelThreshold"`
}

// RankingConfig holds the relevance weights and boost multipliers.
type RankingConfig struct {
	MatchWeight           float64 `yaml:"matchWeight"`
	PopularityWeight      float64 `yaml:"popularityWeight"`
	RecencyWeight         float64 `yaml:"recencyWeight"`
	VerifiedWeight        float64 `yaml:"verifiedWeight"`
	CategoryWeight        float64 `yaml:"categoryWeight"`
	PersonalizationWeight float64 `yaml:"personalizationWeight"`
	VerifiedBoost         float64 `yaml:"verifiedBoost"`
	ExactMatchBoost       float64 `yaml:"exactMatchBoost"`
	StrongMatchBoost      float64 `yaml:"strongMatchBoost"`
	PopularBoost          float64 `yaml:"popularBoost"`
	PopularThreshold      float64 `yaml:"popularThreshold"`
}

// CacheConfig selects the response cache backend: "memory", "redis" or "none".
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Size    int    `yaml:"size"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AnalyticsConfig toggles search-event publishing and aggregation.
type AnalyticsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize"`
}

// SnapshotConfig toggles persisting exported index blobs to PostgreSQL.
type SnapshotConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RestoreOnStart bool          `yaml:"restoreOnStart"`
	Interval       time.Duration `yaml:"interval"`
	Keep           int           `yaml:"keep"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with the documented search defaults and local
// development endpoints for the optional dependencies.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			MinTokenLength:  2,
			MaxTokenLength:  50,
			RemoveStopWords: true,
			Stem:            false,
		},
		Search: SearchConfig{
			DefaultLimit:      20,
			MaxLimit:          0,
			InstantLimit:      5,
			SuggestionLimit:   10,
			FuzzyThreshold:    0.4,
			MaxEditDistance:   3,
			MatchWeight:       0.6,
			RelevanceWeight:   0.4,
			HistorySize:       100,
			PopularCapacity:   1000,
			ScoringWorkers:    0,
			ParallelThreshold: 5000,
		},
		Ranking: DefaultRanking(),
		Cache: CacheConfig{
			Backend: "memory",
			Size:    512,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "medsearch-group",
			Topics: KafkaTopics{
				SearchEvents: "search-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "medsearch",
			User:            "medsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:    false,
			BufferSize: 10000,
		},
		Snapshot: SnapshotConfig{
			RestoreOnStart: true,
			Interval:       10 * time.Minute,
			Keep:           5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// DefaultRanking returns the relevance weights and boosts used when no
// ranking section is configured.
func DefaultRanking() RankingConfig {
	return RankingConfig{
		MatchWeight:           0.35,
		PopularityWeight:      0.15,
		RecencyWeight:         0.15,
		VerifiedWeight:        0.10,
		CategoryWeight:        0.10,
		PersonalizationWeight: 0.15,
		VerifiedBoost:         1.25,
		ExactMatchBoost:       1.5,
		StrongMatchBoost:      1.3,
		PopularBoost:          1.15,
		PopularThreshold:      100,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.MinTokenLength < 1 {
		return fmt.Errorf("index.minTokenLength must be >= 1, got %d", c.Index.MinTokenLength)
	}
	if c.Index.MaxTokenLength < c.Index.MinTokenLength {
		return fmt.Errorf("index.maxTokenLength (%d) must be >= minTokenLength (%d)",
			c.Index.MaxTokenLength, c.Index.MinTokenLength)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < 0 || (c.Search.MaxLimit > 0 && c.Search.MaxLimit < c.Search.DefaultLimit) {
		return fmt.Errorf("search limits invalid: default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("search.fuzzyThreshold must be within [0,1], got %v", c.Search.FuzzyThreshold)
	}
	if c.Search.MaxEditDistance < 0 {
		return fmt.Errorf("search.maxEditDistance must be >= 0, got %d", c.Search.MaxEditDistance)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be one of memory, redis, none; got %q", c.Cache.Backend)
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_CORPUS_PATH"); v != "" {
		cfg.Index.CorpusPath = v
	}
	if v := os.Getenv("SP_INDEX_STEM"); v != "" {
		if stem, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Stem = stem
		}
	}
	if v := os.Getenv("SP_SEARCH_SCORING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.ScoringWorkers = n
		}
	}
	if v := os.Getenv("SP_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_ANALYTICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_SNAPSHOT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Snapshot.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
