// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Wildberries WildberriesConfig
	Cache       CacheConfig
	Operator    OperatorConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

// WildberriesConfig configures the upstream marketplace API client.
type WildberriesConfig struct {
	ContentBaseURL string
	CommonBaseURL  string
	RequestTimeout time.Duration
	// Upstream allows 100 content requests per minute per seller.
	RequestsPerMinute int
}

// CacheConfig tunes the product cache synchronization subsystem.
type CacheConfig struct {
	// TTL after which cached products count as stale (default 24h).
	TTL time.Duration
	// Retention for soft-deleted rows before ClearExpired purges them.
	Retention time.Duration
	// Hard bound on pages per sync run; the upstream offset contract is
	// known to be unreliable, so runs must never loop on page count alone.
	MaxSyncPages int
	// Items per page, honoring the upstream limit.
	PageLimit int
	// Retries per page on retryable failures (total attempts = retries+1).
	PageRetries int
	// Base backoff before the first retry; doubles per retry.
	RetryBackoff time.Duration
	// How long a crashed run holds the per-token sync slot before another
	// run may replace it.
	SyncLockTTL time.Duration
	// TTL for the global subject characteristics cache (default 7 days;
	// category schemas change rarely).
	SubjectCharcsTTL time.Duration
}

type OperatorConfig struct {
	Username string
	Password string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "wb_backoffice"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24), // 24 hours
		},
		Wildberries: WildberriesConfig{
			ContentBaseURL:    getEnv("WB_CONTENT_BASE_URL", "https://content-api.wildberries.ru"),
			CommonBaseURL:     getEnv("WB_COMMON_BASE_URL", "https://common-api.wildberries.ru"),
			RequestTimeout:    time.Duration(getEnvAsInt("WB_REQUEST_TIMEOUT", 60)) * time.Second,
			RequestsPerMinute: getEnvAsInt("WB_REQUESTS_PER_MINUTE", 100),
		},
		Cache: CacheConfig{
			TTL:              time.Duration(getEnvAsInt("CACHE_TTL_HOURS", 24)) * time.Hour,
			Retention:        time.Duration(getEnvAsInt("CACHE_RETENTION_DAYS", 7)) * 24 * time.Hour,
			MaxSyncPages:     getEnvAsInt("CACHE_MAX_SYNC_PAGES", 10),
			PageLimit:        getEnvAsInt("CACHE_PAGE_LIMIT", 100),
			PageRetries:      getEnvAsInt("CACHE_PAGE_RETRIES", 2),
			RetryBackoff:     time.Duration(getEnvAsInt("CACHE_RETRY_BACKOFF_SECONDS", 2)) * time.Second,
			SyncLockTTL:      time.Duration(getEnvAsInt("CACHE_SYNC_LOCK_TTL_MINUTES", 15)) * time.Minute,
			SubjectCharcsTTL: time.Duration(getEnvAsInt("CACHE_SUBJECT_CHARCS_TTL_DAYS", 7)) * 24 * time.Hour,
		},
		Operator: OperatorConfig{
			Username: getEnv("OPERATOR_USERNAME", "admin"),
			Password: getEnv("OPERATOR_PASSWORD", ""),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Operator.Password == "" && c.Environment == "production" {
		return fmt.Errorf("operator password is required in production")
	}

	if c.Cache.MaxSyncPages < 1 {
		return fmt.Errorf("CACHE_MAX_SYNC_PAGES must be at least 1")
	}

	if c.Cache.PageLimit < 1 || c.Cache.PageLimit > 100 {
		return fmt.Errorf("CACHE_PAGE_LIMIT must be between 1 and 100")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
