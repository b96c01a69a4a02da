// Package config provides environment-driven configuration for the
// phivault server. An optional .env file is loaded first; explicit
// environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBodySizeLimit caps request bodies at 10MB.
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Detector DetectorConfig
	Audit    AuditConfig
	Cache    CacheConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string
	MasterKey     string
	BodySizeLimit int64
}

// StorageConfig selects and configures the mapping store backend.
type StorageConfig struct {
	// Type is "sqlite", "postgresql", or "memory".
	Type string
	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string
	// PostgresURL is the connection string for the postgresql backend.
	PostgresURL string
	// MaxConns is the PostgreSQL pool size.
	MaxConns int
	// OpTimeout bounds every store call; expiry surfaces as StoreUnavailable.
	OpTimeout time.Duration
}

// DetectorConfig configures entity detection.
type DetectorConfig struct {
	// PolicyPath points at an optional YAML policy file with custom
	// matchers and the skip-set. Empty means built-in defaults.
	PolicyPath string
	// ExternalEndpoint is the optional external recognition service URL.
	// Empty disables the external detector entirely.
	ExternalEndpoint string
	// ExternalTimeout bounds each external detection call.
	ExternalTimeout time.Duration
}

// AuditConfig configures the async audit event logger.
type AuditConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// CacheConfig configures the optional scope-mapping read cache.
type CacheConfig struct {
	// Type is "none", "local", or "redis".
	Type     string
	RedisURL string
	TTL      time.Duration
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// LoggingConfig configures the process logger (not the audit trail).
type LoggingConfig struct {
	Pretty bool
	Level  string
}

// Load reads configuration from the environment, loading an optional .env
// file first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PHIVAULT_PORT", "8080"),
			MasterKey:     os.Getenv("PHIVAULT_MASTER_KEY"),
			BodySizeLimit: getEnvInt64("PHIVAULT_BODY_SIZE_LIMIT", DefaultBodySizeLimit),
		},
		Storage: StorageConfig{
			Type:        getEnv("PHIVAULT_STORAGE_TYPE", "sqlite"),
			SQLitePath:  getEnv("PHIVAULT_SQLITE_PATH", "data/phivault.db"),
			PostgresURL: os.Getenv("PHIVAULT_POSTGRES_URL"),
			MaxConns:    getEnvInt("PHIVAULT_POSTGRES_MAX_CONNS", 10),
			OpTimeout:   getEnvDuration("PHIVAULT_STORE_TIMEOUT", 5*time.Second),
		},
		Detector: DetectorConfig{
			PolicyPath:       os.Getenv("PHIVAULT_DETECTOR_POLICY"),
			ExternalEndpoint: os.Getenv("PHIVAULT_RECOGNIZER_URL"),
			ExternalTimeout:  getEnvDuration("PHIVAULT_RECOGNIZER_TIMEOUT", 3*time.Second),
		},
		Audit: AuditConfig{
			Enabled:       getEnvBool("PHIVAULT_AUDIT_ENABLED", true),
			BufferSize:    getEnvInt("PHIVAULT_AUDIT_BUFFER_SIZE", 1000),
			FlushInterval: getEnvDuration("PHIVAULT_AUDIT_FLUSH_INTERVAL", 5*time.Second),
			RetentionDays: getEnvInt("PHIVAULT_AUDIT_RETENTION_DAYS", 0),
		},
		Cache: CacheConfig{
			Type:     getEnv("PHIVAULT_CACHE_TYPE", "local"),
			RedisURL: os.Getenv("PHIVAULT_REDIS_URL"),
			TTL:      getEnvDuration("PHIVAULT_CACHE_TTL", 30*time.Second),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("PHIVAULT_METRICS_ENABLED", false),
			Endpoint: getEnv("PHIVAULT_METRICS_ENDPOINT", "/metrics"),
		},
		Logging: LoggingConfig{
			Pretty: getEnvBool("PHIVAULT_LOG_PRETTY", false),
			Level:  getEnv("PHIVAULT_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgresql", "memory":
	default:
		return fmt.Errorf("invalid PHIVAULT_STORAGE_TYPE %q (valid: sqlite, postgresql, memory)", c.Storage.Type)
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("PHIVAULT_POSTGRES_URL is required for the postgresql backend")
	}
	switch c.Cache.Type {
	case "none", "local", "redis":
	default:
		return fmt.Errorf("invalid PHIVAULT_CACHE_TYPE %q (valid: none, local, redis)", c.Cache.Type)
	}
	if c.Cache.Type == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("PHIVAULT_REDIS_URL is required for the redis cache")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
