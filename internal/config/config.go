// Package config provides configuration management for the diarium ingestion
// service. It loads configuration from environment variables and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Portal   PortalConfig
	Ingest   IngestConfig
	Classify ClassifyConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	CaseTTL        time.Duration
}

// ClickHouseConfig holds the optional run-history analytics sink configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// PortalConfig holds configuration for the upstream diarium portal
type PortalConfig struct {
	BaseURL string
	// PartitionQueries maps each partition (län) to the portal's opaque
	// serialized search token. Loaded from PORTAL_QUERIES_FILE, a JSON
	// object of partition name to token.
	PartitionQueries map[string]string
	UserAgent        string
	// Inter-request throttle bounds for list pagination
	MinRequestDelay time.Duration
	MaxRequestDelay time.Duration
	// Base delay for detail fetches (larger than list delays, doubled per attempt)
	DetailBaseDelay time.Duration
	RequestTimeout  time.Duration
}

// IngestConfig holds ingestion coordinator configuration
type IngestConfig struct {
	PageSafetyCeiling int
	PageSize          int
}

// ClassifyConfig holds classification stage configuration
type ClassifyConfig struct {
	APIKey            string
	Model             string
	BatchSize         int
	Concurrency       int
	MinConfidence     float64
	RequestsPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "medla_projects"),
				User:           getEnv("POSTGRES_USER", "medla"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
				CaseTTL:        getEnvAsDuration("REDIS_CASE_TTL", 10*time.Minute),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "medla_projects"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Portal: PortalConfig{
			BaseURL:         getEnv("PORTAL_BASE_URL", "https://diarium.lansstyrelsen.se"),
			UserAgent:       getEnv("PORTAL_USER_AGENT", defaultUserAgent),
			MinRequestDelay: getEnvAsDuration("PORTAL_MIN_REQUEST_DELAY", 500*time.Millisecond),
			MaxRequestDelay: getEnvAsDuration("PORTAL_MAX_REQUEST_DELAY", 2*time.Second),
			DetailBaseDelay: getEnvAsDuration("PORTAL_DETAIL_BASE_DELAY", 2*time.Second),
			RequestTimeout:  getEnvAsDuration("PORTAL_REQUEST_TIMEOUT", 30*time.Second),
		},
		Ingest: IngestConfig{
			PageSafetyCeiling: getEnvAsInt("INGEST_PAGE_SAFETY_CEILING", 100),
			PageSize:          getEnvAsInt("INGEST_PAGE_SIZE", 50),
		},
		Classify: ClassifyConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			Model:             getEnv("CLASSIFY_MODEL", "gpt-4o-mini"),
			BatchSize:         getEnvAsInt("CLASSIFY_BATCH_SIZE", 50),
			Concurrency:       getEnvAsInt("CLASSIFY_CONCURRENCY", 3),
			MinConfidence:     getEnvAsFloat("CLASSIFY_MIN_CONFIDENCE", 0.7),
			RequestsPerMinute: getEnvAsInt("CLASSIFY_REQUESTS_PER_MINUTE", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	queries, err := loadPartitionQueries()
	if err != nil {
		return nil, err
	}
	config.Portal.PartitionQueries = queries

	return config, nil
}

// The portal degrades requests without a realistic browser User-Agent.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// loadPartitionQueries reads the partition-to-query-token map from the file
// named by PORTAL_QUERIES_FILE. An unset variable yields an empty map.
func loadPartitionQueries() (map[string]string, error) {
	path := getEnv("PORTAL_QUERIES_FILE", "")
	if path == "" {
		return map[string]string{}, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from deployment config
	if err != nil {
		return nil, fmt.Errorf("failed to read partition queries file %s: %w", path, err)
	}

	queries := make(map[string]string)
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("failed to parse partition queries file %s: %w", path, err)
	}

	return queries, nil
}

// PostgresURL returns the connection URL used by the migration tooling
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
