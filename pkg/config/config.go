package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/docvault/pkg/observability"
	"github.com/platinummonkey/docvault/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database storage.Config

	// Decision cache configuration
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Janitor configuration
	Janitor JanitorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// CacheConfig holds the Redis decision cache settings. When disabled the
// engine recomputes every access decision.
type CacheConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DecisionTTL   time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// JanitorConfig holds settings for the stored-permission janitor.
type JanitorConfig struct {
	// Schedule is a cron expression for the purge run.
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
		Janitor:       loadJanitorConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DOCVAULT_HOST", "0.0.0.0"),
		Port:            getEnv("DOCVAULT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DOCVAULT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DOCVAULT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DOCVAULT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DOCVAULT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DOCVAULT_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if dbURL := getEnv("DOCVAULT_DATABASE_URL", ""); dbURL != "" {
		cfg.URL = dbURL
	}
	if maxConns := getEnvInt("DOCVAULT_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxOpenConns = maxConns
	}
	if idleConns := getEnvInt("DOCVAULT_DATABASE_IDLE_CONNS", 0); idleConns > 0 {
		cfg.MaxIdleConns = idleConns
	}
	if lifetime := getEnvDuration("DOCVAULT_DATABASE_CONN_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}

	return cfg
}

// loadCacheConfig loads decision cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:       getEnvBool("DOCVAULT_CACHE_ENABLED", false),
		RedisAddr:     getEnv("DOCVAULT_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("DOCVAULT_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("DOCVAULT_REDIS_DB", 0),
		DecisionTTL:   getEnvDuration("DOCVAULT_CACHE_DECISION_TTL", 30*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("DOCVAULT_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("DOCVAULT_METRICS_ENABLED", true),
	}
}

// loadJanitorConfig loads janitor configuration from environment
func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule: getEnv("DOCVAULT_JANITOR_SCHEDULE", "0 3 * * *"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	// Validate cache config
	if c.Cache.Enabled {
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required when the decision cache is enabled")
		}
		if c.Cache.DecisionTTL <= 0 {
			return fmt.Errorf("decision TTL must be positive when the decision cache is enabled")
		}
	}

	// Validate janitor config
	if c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor schedule is required")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
