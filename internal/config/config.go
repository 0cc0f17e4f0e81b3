// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends for the device-local session cache.
const (
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for the session store, directory and audit log.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// SessionTTL is the fixed session lifetime; activity never extends it.
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`
	// StoreTimeout bounds each durable store call (1s–30s).
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`
	// RevokeAttempts is how many times revoke and revoke-all try the durable store (at least 2).
	RevokeAttempts int `mapstructure:"REVOKE_ATTEMPTS"`
	// ReapInterval is how often the reaper deactivates expired sessions. 0 disables it.
	ReapInterval time.Duration `mapstructure:"REAP_INTERVAL"`

	// CacheBackend selects the device-local cache: memory, file or redis.
	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	// CacheDir is the directory for the file cache.
	CacheDir string `mapstructure:"CACHE_DIR"`
	// RedisURL is the device-local Redis used when CacheBackend is redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// DeviceID namespaces the local cache. Defaults to the hostname.
	DeviceID string `mapstructure:"DEVICE_ID"`
	// CacheSigningKey is the PEM private key (RSA or ECDSA) or a path to one; it seals the cached identity.
	// When empty an ephemeral key is generated, which is refused when Env is production.
	CacheSigningKey string `mapstructure:"CACHE_SIGNING_KEY"`

	// BcryptCost is the bcrypt cost factor (4–31) for directory passwords; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RevocationPolicy is an optional path to a rego file replacing the built-in revocation policy.
	RevocationPolicy string `mapstructure:"REVOCATION_POLICY"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, session lifecycle events are published to SessionEventsTopic.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the events worker pushes logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or console.
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("STORE_TIMEOUT", "4s")
	v.SetDefault("REVOKE_ATTEMPTS", 2)
	v.SetDefault("REAP_INTERVAL", "1h")
	v.SetDefault("CACHE_BACKEND", CacheFile)
	v.SetDefault("CACHE_DIR", defaultCacheDir())
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DEVICE_ID", defaultDeviceID())
	v.SetDefault("CACHE_SIGNING_KEY", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REVOCATION_POLICY", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "session-events")
	v.SetDefault("KAFKA_GROUP_ID", "session-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and normalizes a few fields in place.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.StoreTimeout < time.Second || c.StoreTimeout > 30*time.Second {
		return fmt.Errorf("config: STORE_TIMEOUT must be between 1s and 30s, got %s", c.StoreTimeout)
	}
	if c.RevokeAttempts < 2 {
		return errors.New("config: REVOKE_ATTEMPTS must be at least 2")
	}
	if c.ReapInterval < 0 {
		return errors.New("config: REAP_INTERVAL must not be negative")
	}

	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	switch c.CacheBackend {
	case CacheMemory:
	case CacheFile:
		if c.CacheDir == "" {
			return errors.New("config: CACHE_DIR must be set for the file cache")
		}
	case CacheRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: CACHE_BACKEND must be memory, file or redis, got %q", c.CacheBackend)
	}
	if c.DeviceID == "" {
		return errors.New("config: DEVICE_ID must be set")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "vitsdept")
	}
	return filepath.Join(home, ".vitsdept")
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "local"
	}
	return host
}
