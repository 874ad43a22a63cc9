package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	apperrors "catalog-graph/backend/pkg/errors"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendNeo4j  = "neo4j"
	BackendBolt   = "bolt"
	BackendKuzu   = "kuzu"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Graph store
	StoreBackend string

	// Neo4j
	Neo4jURI             string
	Neo4jUser            string
	Neo4jPassword        string
	Neo4jDatabase        string
	Neo4jMaxPoolSize     int
	Neo4jMaxConnLifetime time.Duration
	Neo4jAcquireTimeout  time.Duration

	// Embedded stores
	BoltPath string
	KuzuPath string

	// Query tuning
	RelatedLimit int
	PathMaxDepth int

	// Metrics
	MetricsNamespace string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", ""),
		StoreBackend:         getEnv("STORE_BACKEND", BackendNeo4j),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:        getEnv("NEO4J_DATABASE", ""),
		Neo4jMaxPoolSize:     getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jMaxConnLifetime: getEnvDuration("NEO4J_MAX_CONN_LIFETIME", 3*time.Hour),
		Neo4jAcquireTimeout:  getEnvDuration("NEO4J_ACQUIRE_TIMEOUT", 2*time.Minute),
		BoltPath:             getEnv("BOLT_PATH", "data/catalog.db"),
		KuzuPath:             getEnv("KUZU_PATH", "data/catalog.kuzu"),
		RelatedLimit:         getEnvInt("RELATED_LIMIT", 10),
		PathMaxDepth:         getEnvInt("PATH_MAX_DEPTH", 15),
		MetricsNamespace:     getEnv("METRICS_NAMESPACE", "catalog"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		// Auth is always on; an empty password never connects.
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
		if c.Neo4jMaxPoolSize < 1 {
			return apperrors.NewConfigValidationFailed("NEO4J_MAX_POOL_SIZE", "must be at least 1")
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return apperrors.NewConfigMissingRequired("BOLT_PATH")
		}
	case BackendKuzu:
		if c.KuzuPath == "" {
			return apperrors.NewConfigMissingRequired("KUZU_PATH")
		}
	case BackendMemory:
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND",
			fmt.Sprintf("unknown backend %q (want neo4j, bolt, kuzu or memory)", c.StoreBackend))
	}
	if c.RelatedLimit < 1 {
		return apperrors.NewConfigValidationFailed("RELATED_LIMIT", "must be at least 1")
	}
	if c.PathMaxDepth < 1 {
		return apperrors.NewConfigValidationFailed("PATH_MAX_DEPTH", "must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
