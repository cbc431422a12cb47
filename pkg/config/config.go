package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/copiloto/salesdash/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration (durable store)
	Database DatabaseConfig

	// Local cache configuration
	Cache CacheConfig

	// Auth configuration
	Auth AuthConfig

	// Enrichment pipeline configuration
	Enrichment EnrichmentConfig

	// Observability configuration
	Observability ObservabilityConfig
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

// DatabaseConfig holds durable-store configuration
type DatabaseConfig struct {
	PostgresURL  string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig holds local-cache configuration
type CacheConfig struct {
	Type string // "sqlite", "redis", "memory"

	// SQLite config
	SQLitePath string

	// Redis config
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// AuthConfig holds session-manager configuration
type AuthConfig struct {
	// Origin of the deployment, e.g. https://vendas.example.com.
	// Redirect URIs are derived from it.
	Origin string

	// Admin path prefix exempt from the route guard
	AdminPrefix string

	// Shared password for the admin gate
	AdminPassword string

	// Upper bound on the initial configuration load before the cached
	// values are used instead
	ConfigLoadTimeout time.Duration
}

// EnrichmentConfig holds enrichment-pipeline configuration
type EnrichmentConfig struct {
	// Microsoft Graph base URL (overridable for tests)
	GraphBaseURL string

	// Tier-A same-origin reverse-proxy base for the internal profile API
	InternalProxyBase string

	// Tier-B server-side function URL
	FunctionURL string

	// Upstream internal API the Tier-B function calls with elevated credentials
	InternalAPIBase string
	InternalAPIKey  string

	// Delay before the internal enrichment task runs
	DeferDelay time.Duration

	// Avatar blob storage
	AvatarStore string // "filesystem" or "s3"
	AvatarRoot  string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Enrichment:    loadEnrichmentConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SALESDASH_HOST", "0.0.0.0"),
		Port:            getEnv("SALESDASH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SALESDASH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SALESDASH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SALESDASH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SALESDASH_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SALESDASH_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads durable-store configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL:  getEnv("SALESDASH_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("SALESDASH_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns: getEnvInt("SALESDASH_POSTGRES_IDLE_CONNS", 2),
		ConnLifetime: getEnvDuration("SALESDASH_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadCacheConfig loads local-cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:          getEnv("SALESDASH_CACHE_TYPE", "sqlite"),
		SQLitePath:    getEnv("SALESDASH_CACHE_SQLITE_PATH", "/var/lib/salesdash/cache.db"),
		RedisAddr:     getEnv("SALESDASH_CACHE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SALESDASH_CACHE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SALESDASH_CACHE_REDIS_DB", 0),
	}
}

// loadAuthConfig loads session-manager configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Origin:            getEnv("SALESDASH_ORIGIN", "http://localhost:8080"),
		AdminPrefix:       getEnv("SALESDASH_ADMIN_PREFIX", "/admin"),
		AdminPassword:     getEnv("SALESDASH_ADMIN_PASSWORD", ""),
		ConfigLoadTimeout: getEnvDuration("SALESDASH_CONFIG_LOAD_TIMEOUT", 5*time.Second),
	}
}

// loadEnrichmentConfig loads enrichment-pipeline configuration from environment
func loadEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		GraphBaseURL:      getEnv("SALESDASH_GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		InternalProxyBase: getEnv("SALESDASH_INTERNAL_PROXY_BASE", "/copiloto-vendas-api/v1"),
		FunctionURL:       getEnv("SALESDASH_FUNCTION_URL", ""),
		InternalAPIBase:   getEnv("SALESDASH_INTERNAL_API_BASE", ""),
		InternalAPIKey:    getEnv("SALESDASH_INTERNAL_API_KEY", ""),
		DeferDelay:        getEnvDuration("SALESDASH_ENRICHMENT_DEFER_DELAY", 500*time.Millisecond),
		AvatarStore:       getEnv("SALESDASH_AVATAR_STORE", "filesystem"),
		AvatarRoot:        getEnv("SALESDASH_AVATAR_ROOT", "/var/lib/salesdash/avatars"),
		S3Endpoint:        getEnv("SALESDASH_S3_ENDPOINT", ""),
		S3Region:          getEnv("SALESDASH_S3_REGION", "us-east-1"),
		S3Bucket:          getEnv("SALESDASH_S3_BUCKET", ""),
		S3AccessKey:       getEnv("SALESDASH_S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("SALESDASH_S3_SECRET_KEY", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("SALESDASH_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("SALESDASH_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Type {
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite cache")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis cache")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid cache type: %s (must be sqlite, redis, or memory)", c.Cache.Type)
	}

	if !strings.HasPrefix(c.Auth.AdminPrefix, "/") {
		return fmt.Errorf("admin prefix must start with /")
	}

	switch c.Enrichment.AvatarStore {
	case "filesystem":
		if c.Enrichment.AvatarRoot == "" {
			return fmt.Errorf("avatar root is required for filesystem avatar storage")
		}
	case "s3":
		if c.Enrichment.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 avatar storage")
		}
	default:
		return fmt.Errorf("invalid avatar store: %s (must be filesystem or s3)", c.Enrichment.AvatarStore)
	}

	return nil
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a bool or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
