// Package config loads the process configuration from environment
// variables. Defaults favor a hermetic single-process run: memory cache,
// memory queue, no archiver, no spend tracking.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backend selection values, shared by the cache and the usage store.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
)

// Queue backend selection values.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Archive backend selection values.
const (
	ArchiveBackendNone = "none"
	ArchiveBackendFile = "file"
	ArchiveBackendS3   = "s3"
)

// Config holds configuration for the completion pipeline daemon.
type Config struct {
	LogLevel string

	Cache    CacheConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Usage    UsageConfig
	Worker   WorkerConfig
	Archive  ArchiveConfig
	Spend    SpendConfig
	Pricing  PricingConfig
	Provider ProviderConfig
	Dispatch DispatchConfig
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	Backend       string        // memory or database
	TTL           time.Duration // default entry lifetime
	SweepInterval time.Duration // background expiry sweep cadence
}

// DatabaseConfig holds SQL connection settings, shared by the database
// cache backend and the usage store.
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings, shared by the redis
// queue backend and the spend tracker.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// QueueConfig selects the usage queue backend.
type QueueConfig struct {
	Backend    string // memory or redis
	Name       string
	BufferSize int
}

// UsageConfig selects where usage records are persisted. The memory
// backend keeps the audit trail ephemeral; production deployments use
// the database.
type UsageConfig struct {
	StoreBackend string // memory or database
}

// WorkerConfig tunes the usage batch worker.
type WorkerConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// ArchiveConfig selects the long-term usage archive sink.
type ArchiveConfig struct {
	Backend string // none, file or s3

	// File sink.
	Directory string
	MaxSize   int64
	MaxFiles  int

	// S3 sink.
	S3Bucket string
	S3Region string
	S3Prefix string
	Source   string
}

// SpendConfig toggles the Redis month-to-date spend tracker.
type SpendConfig struct {
	Enabled   bool
	KeyPrefix string
}

// PricingConfig points at an optional pricing table file; the built-in
// table is used when empty.
type PricingConfig struct {
	FilePath string
}

// ProviderConfig holds per-vendor API settings. A provider with an
// empty key is not constructed.
type ProviderConfig struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	RequestTimeout   time.Duration
}

// DispatchConfig tunes provider fallback.
type DispatchConfig struct {
	MaxRetries   int
	Singleflight bool
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Cache: CacheConfig{
			Backend:       getEnvString("CACHE_BACKEND", BackendMemory),
			TTL:           getEnvDuration("CACHE_TTL", time.Hour),
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		},
		Database: DatabaseConfig{
			Driver:          getEnvString("DATABASE_DRIVER", "postgres"),
			URL:             getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:  getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Backend:    getEnvString("QUEUE_BACKEND", QueueBackendMemory),
			Name:       getEnvString("QUEUE_NAME", "usage-records"),
			BufferSize: getEnvInt("QUEUE_BUFFER_SIZE", 1000),
		},
		Usage: UsageConfig{
			StoreBackend: getEnvString("USAGE_STORE_BACKEND", BackendMemory),
		},
		Worker: WorkerConfig{
			BatchSize:     getEnvInt("USAGE_WORKER_BATCH_SIZE", 50),
			FlushInterval: getEnvDuration("USAGE_WORKER_FLUSH_INTERVAL", 2*time.Second),
			MaxRetries:    getEnvInt("USAGE_WORKER_MAX_RETRIES", 3),
			RetryBackoff:  getEnvDuration("USAGE_WORKER_RETRY_BACKOFF", 100*time.Millisecond),
		},
		Archive: ArchiveConfig{
			Backend:   getEnvString("ARCHIVE_BACKEND", ArchiveBackendNone),
			Directory: getEnvString("ARCHIVE_DIRECTORY", "/var/log/llmproxy"),
			MaxSize:   getEnvInt64("ARCHIVE_MAX_SIZE", 10_485_760),
			MaxFiles:  getEnvInt("ARCHIVE_MAX_FILES", 10),
			S3Bucket:  getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region:  getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:  getEnvString("ARCHIVE_S3_PREFIX", "usage/"),
			Source:    getEnvString("ARCHIVE_SOURCE", ""),
		},
		Spend: SpendConfig{
			Enabled:   getEnvBool("SPEND_TRACKER_ENABLED", false),
			KeyPrefix: getEnvString("SPEND_KEY_PREFIX", "spend"),
		},
		Pricing: PricingConfig{
			FilePath: getEnvString("PRICING_FILE", ""),
		},
		Provider: ProviderConfig{
			OpenAIAPIKey:     getEnvString("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnvString("OPENAI_BASE_URL", ""),
			AnthropicAPIKey:  getEnvString("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnvString("ANTHROPIC_BASE_URL", ""),
			RequestTimeout:   getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Dispatch: DispatchConfig{
			MaxRetries:   getEnvInt("DISPATCH_MAX_RETRIES", 2),
			Singleflight: getEnvBool("DISPATCH_SINGLEFLIGHT", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case BackendMemory, BackendDatabase:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Usage.StoreBackend {
	case BackendMemory, BackendDatabase:
	default:
		return fmt.Errorf("unknown usage store backend %q", c.Usage.StoreBackend)
	}

	switch c.Queue.Backend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveBackendNone, ArchiveBackendFile, ArchiveBackendS3:
	default:
		return fmt.Errorf("unknown archive backend %q", c.Archive.Backend)
	}

	if c.NeedsDatabase() && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when the database is in use")
	}
	if c.Archive.Backend == ArchiveBackendS3 && c.Archive.S3Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required for the s3 archive backend")
	}
	return nil
}

// NeedsDatabase reports whether any configured component stores data in
// SQL.
func (c *Config) NeedsDatabase() bool {
	return c.Cache.Backend == BackendDatabase || c.Usage.StoreBackend == BackendDatabase
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Queue.Backend == QueueBackendRedis || c.Spend.Enabled
}
