package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string

	// Auth
	JWTSecret          string
	AccessTokenMinutes int

	// Engine tuning
	AgentMaxIterations int
	NodeTimeoutSeconds int
	MaxExecutionSteps  uint64

	// Tool policy
	AllowedTablesPath string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "nodeflow.db"),

		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenMinutes: getIntEnv("ACCESS_TOKEN_MINUTES", 60),

		AgentMaxIterations: getIntEnv("AGENT_MAX_ITERATIONS", 20),
		NodeTimeoutSeconds: getIntEnv("NODE_TIMEOUT_SECONDS", 30),
		MaxExecutionSteps:  uint64(getIntEnv("MAX_EXECUTION_STEPS", 10_000_000)),

		AllowedTablesPath: getEnv("ALLOWED_TABLES_PATH", "allowed_tables.yaml"),
	}
}

// LoadAllowedTables reads the database tool's table policy from a YAML
// file: a map of table name to capability string ("R", "W" or "RW").
// A missing file yields an empty policy (every table rejected).
func LoadAllowedTables(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read allowed tables file: %w", err)
	}

	var policy map[string]string
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse allowed tables YAML: %w", err)
	}
	return policy, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
