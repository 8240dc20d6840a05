package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	apperrors "emergent-kg/backend/pkg/errors"
)

// Store backends
const (
	BackendJSON  = "json"
	BackendNeo4j = "neo4j"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Files
	GraphFile      string // knowledge graph JSON document
	SessionLogFile string // per-commit session log
	HistoryDB      string // SQLite metrics history
	EngineConfig   string // optional YAML with groups, composites and profiles

	// Engine
	Profile      string // default scoring profile; empty defers to the engine file
	ScoreWorkers int    // parallel pair scorers; 0 means GOMAXPROCS

	// Store
	StoreBackend string

	// Neo4j, only consulted when StoreBackend is neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		GraphFile:      getEnv("KG_FILE", "data/knowledge-graph.json"),
		SessionLogFile: getEnv("SESSION_LOG_FILE", "data/pair_designer_log.json"),
		HistoryDB:      getEnv("HISTORY_DB", "data/metrics-history.db"),
		EngineConfig:   getEnv("ENGINE_CONFIG", ""),
		Profile:        getEnv("PROFILE", ""),
		ScoreWorkers:   getEnvInt("SCORE_WORKERS", 0),
		StoreBackend:   getEnv("STORE_BACKEND", BackendJSON),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.GraphFile == "" {
		return apperrors.NewConfigMissingRequired("KG_FILE")
	}
	if c.ScoreWorkers < 0 {
		return apperrors.NewConfigValidationFailed("SCORE_WORKERS", "must not be negative")
	}
	switch c.StoreBackend {
	case BackendJSON:
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND", fmt.Sprintf("must be %q or %q, got %q", BackendJSON, BackendNeo4j, c.StoreBackend))
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
