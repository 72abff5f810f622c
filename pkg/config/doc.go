// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	DOCVAULT_HOST="0.0.0.0"
//	DOCVAULT_PORT="8080"
//	DOCVAULT_HEALTH_PORT="9090"
//	DOCVAULT_READ_TIMEOUT="15s"
//	DOCVAULT_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	DOCVAULT_DATABASE_URL="postgres://localhost/docvault?sslmode=disable"
//	DOCVAULT_DATABASE_MAX_CONNS="25"
//	DOCVAULT_DATABASE_IDLE_CONNS="5"
//	DOCVAULT_DATABASE_CONN_LIFETIME="5m"
//
// Decision cache settings:
//
//	DOCVAULT_CACHE_ENABLED="true"
//	DOCVAULT_REDIS_ADDR="localhost:6379"
//	DOCVAULT_CACHE_DECISION_TTL="30s"
//
// Observability settings:
//
//	DOCVAULT_LOG_LEVEL="info"  # debug, info, warn, error
//	DOCVAULT_METRICS_ENABLED="true"
//
// Janitor settings:
//
//	DOCVAULT_JANITOR_SCHEDULE="0 3 * * *"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Database: %s\n", cfg.Database.URL)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses database configuration
//   - pkg/observability: Uses observability configuration
//   - pkg/acls: Uses decision cache configuration
package config
