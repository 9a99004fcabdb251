// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

type Postgres struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

// Worker holds the consumer-side settings for the dedup worker pool.
// Priorities select which Redis list is drained first; it has nothing to do
// with per-job retry count.
type Worker struct {
	Count                 int               `mapstructure:"count"`
	HeartbeatTTL          time.Duration     `mapstructure:"heartbeat_ttl"`
	MaxRetries            int               `mapstructure:"max_retries"`
	Backoff               Backoff           `mapstructure:"backoff"`
	Priorities            []string          `mapstructure:"priorities"`
	Queues                map[string]string `mapstructure:"queues"`
	ProcessingListPattern string            `mapstructure:"processing_list_pattern"`
	HeartbeatKeyPattern   string            `mapstructure:"heartbeat_key_pattern"`
	BRPopLPushTimeout     time.Duration     `mapstructure:"brpoplpush_timeout"`
	BreakerPause          time.Duration     `mapstructure:"breaker_pause"`
	DequeueErrorSleep     time.Duration     `mapstructure:"dequeue_error_sleep"`
	DequeueEmptySleep     time.Duration     `mapstructure:"dequeue_empty_sleep"`
	MaxRecoveryAttempts   int               `mapstructure:"max_recovery_attempts"`
	StuckProcessingAfter  time.Duration     `mapstructure:"stuck_processing_after"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type Embedding struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TextSource string        `mapstructure:"text_source"` // "content" or "filename"
}

type VectorIndex struct {
	ImageTable          string  `mapstructure:"image_table"`
	FileTable           string  `mapstructure:"file_table"`
	K                   int     `mapstructure:"k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

type ObjectStore struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type LiveStatus struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
}

type Tracing struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type ObservabilityConfig struct {
	MetricsPort int     `mapstructure:"metrics_port"`
	LogLevel    string  `mapstructure:"log_level"`
	Tracing     Tracing `mapstructure:"tracing"`
}

// Observability is a backwards-compatible alias.
type Observability = ObservabilityConfig

type Config struct {
	Redis          Redis          `mapstructure:"redis"`
	Postgres       Postgres       `mapstructure:"postgres"`
	Worker         Worker         `mapstructure:"worker"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Embedding      Embedding      `mapstructure:"embedding"`
	VectorIndex    VectorIndex    `mapstructure:"vector_index"`
	ObjectStore    ObjectStore    `mapstructure:"object_store"`
	LiveStatus     LiveStatus     `mapstructure:"live_status"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Postgres: Postgres{
			DSN:          "postgres://localhost:5432/dedup?sslmode=disable",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Worker: Worker{
			Count:                 16,
			HeartbeatTTL:          30 * time.Second,
			MaxRetries:            3,
			Backoff:               Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second},
			Priorities:            []string{"high", "low"},
			Queues:                map[string]string{"high": "dedup:jobs:high", "low": "dedup:jobs:low"},
			ProcessingListPattern: "dedup:worker:%s:processing",
			HeartbeatKeyPattern:   "dedup:processing:worker:%s",
			BRPopLPushTimeout:     1 * time.Second,
			BreakerPause:          100 * time.Millisecond,
			DequeueErrorSleep:     5 * time.Second,
			DequeueEmptySleep:     1 * time.Second,
			MaxRecoveryAttempts:   3,
			StuckProcessingAfter:  5 * time.Minute,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Embedding: Embedding{
			Model:      "text-embedding-004",
			Dimension:  768,
			Timeout:    20 * time.Second,
			TextSource: "content",
		},
		VectorIndex: VectorIndex{
			ImageTable:          "image_embeddings",
			FileTable:           "file_embeddings",
			K:                   10,
			SimilarityThreshold: 0.8,
		},
		ObjectStore: ObjectStore{
			Region: "us-east-1",
		},
		LiveStatus: LiveStatus{
			ListenAddr:        ":8081",
			HeartbeatInterval: 5 * time.Second,
			SessionTimeout:    10 * time.Second,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing: Tracing{
				Enabled:          false,
				Environment:      "development",
				SamplingStrategy: "probabilistic",
				SamplingRate:     0.1,
			},
		},
	}
}

// Load reads configuration from a YAML file, applies env-var overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("postgres.dsn", def.Postgres.DSN)
	v.SetDefault("postgres.max_open_conns", def.Postgres.MaxOpenConns)
	v.SetDefault("postgres.max_idle_conns", def.Postgres.MaxIdleConns)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.heartbeat_ttl", def.Worker.HeartbeatTTL)
	v.SetDefault("worker.max_retries", def.Worker.MaxRetries)
	v.SetDefault("worker.backoff.base", def.Worker.Backoff.Base)
	v.SetDefault("worker.backoff.max", def.Worker.Backoff.Max)
	v.SetDefault("worker.priorities", def.Worker.Priorities)
	v.SetDefault("worker.queues", def.Worker.Queues)
	v.SetDefault("worker.processing_list_pattern", def.Worker.ProcessingListPattern)
	v.SetDefault("worker.heartbeat_key_pattern", def.Worker.HeartbeatKeyPattern)
	v.SetDefault("worker.brpoplpush_timeout", def.Worker.BRPopLPushTimeout)
	v.SetDefault("worker.breaker_pause", def.Worker.BreakerPause)
	v.SetDefault("worker.dequeue_error_sleep", def.Worker.DequeueErrorSleep)
	v.SetDefault("worker.dequeue_empty_sleep", def.Worker.DequeueEmptySleep)
	v.SetDefault("worker.max_recovery_attempts", def.Worker.MaxRecoveryAttempts)
	v.SetDefault("worker.stuck_processing_after", def.Worker.StuckProcessingAfter)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("embedding.model", def.Embedding.Model)
	v.SetDefault("embedding.dimension", def.Embedding.Dimension)
	v.SetDefault("embedding.timeout", def.Embedding.Timeout)
	v.SetDefault("embedding.text_source", def.Embedding.TextSource)

	v.SetDefault("vector_index.image_table", def.VectorIndex.ImageTable)
	v.SetDefault("vector_index.file_table", def.VectorIndex.FileTable)
	v.SetDefault("vector_index.k", def.VectorIndex.K)
	v.SetDefault("vector_index.similarity_threshold", def.VectorIndex.SimilarityThreshold)

	v.SetDefault("object_store.region", def.ObjectStore.Region)

	v.SetDefault("live_status.listen_addr", def.LiveStatus.ListenAddr)
	v.SetDefault("live_status.heartbeat_interval", def.LiveStatus.HeartbeatInterval)
	v.SetDefault("live_status.session_timeout", def.LiveStatus.SessionTimeout)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.environment", def.Observability.Tracing.Environment)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	// Optional file read
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if len(cfg.Worker.Priorities) == 0 {
		return fmt.Errorf("worker.priorities must be non-empty")
	}
	for _, p := range cfg.Worker.Priorities {
		if _, ok := cfg.Worker.Queues[p]; !ok {
			return fmt.Errorf("worker.queues missing entry for priority %q", p)
		}
	}
	if cfg.Worker.HeartbeatTTL < 5*time.Second {
		return fmt.Errorf("worker.heartbeat_ttl must be >= 5s")
	}
	if cfg.Worker.BRPopLPushTimeout <= 0 || cfg.Worker.BRPopLPushTimeout > cfg.Worker.HeartbeatTTL/2 {
		return fmt.Errorf("worker.brpoplpush_timeout must be >0 and <= heartbeat_ttl/2")
	}
	if cfg.Embedding.TextSource != "content" && cfg.Embedding.TextSource != "filename" {
		return fmt.Errorf("embedding.text_source must be 'content' or 'filename'")
	}
	if cfg.VectorIndex.SimilarityThreshold < 0 || cfg.VectorIndex.SimilarityThreshold > 1 {
		return fmt.Errorf("vector_index.similarity_threshold must be in [0,1]")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
