package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for both services.
// Each deployment reads its own environment, so PORT and DATABASE_URL
// point at the inventory or the booking datastore depending on the binary.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Downstream inventory service (booking service only)
	Inventory DownstreamConfig

	// Downstream tour catalog (booking service only)
	Catalog DownstreamConfig

	// Booking rules
	Booking BookingConfig

	// Release retry worker
	ReleaseWorker ReleaseWorkerConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	ServiceName string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	ServiceTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// DownstreamConfig describes an HTTP dependency
type DownstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// BookingConfig holds booking and payment rules
type BookingConfig struct {
	Currency string
	// MaxParticipants caps a single booking's party size
	MaxParticipants int
}

// ReleaseWorkerConfig controls the slot release retry job
type ReleaseWorkerConfig struct {
	Enabled     bool
	Schedule    string // cron spec with seconds field
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			ServiceName: getEnv("SERVICE_NAME", "booking-service"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			ServiceTokenExpiry: time.Duration(getEnvAsInt("JWT_SERVICE_TOKEN_EXPIRY", 60)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Inventory: DownstreamConfig{
			BaseURL: strings.TrimRight(getEnv("INVENTORY_SERVICE_URL", "http://localhost:8081"), "/"),
			Timeout: time.Duration(getEnvAsInt("INVENTORY_SERVICE_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Catalog: DownstreamConfig{
			BaseURL: strings.TrimRight(getEnv("CATALOG_SERVICE_URL", "http://localhost:8082"), "/"),
			Timeout: time.Duration(getEnvAsInt("CATALOG_SERVICE_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Booking: BookingConfig{
			Currency:        getEnv("BOOKING_CURRENCY", "IDR"),
			MaxParticipants: getEnvAsInt("BOOKING_MAX_PARTICIPANTS", 50),
		},
		ReleaseWorker: ReleaseWorkerConfig{
			Enabled:     getEnvAsBool("RELEASE_WORKER_ENABLED", true),
			Schedule:    getEnv("RELEASE_RETRY_CRON", "*/30 * * * * *"),
			BatchSize:   getEnvAsInt("RELEASE_BATCH_SIZE", 20),
			MaxAttempts: getEnvAsInt("RELEASE_MAX_ATTEMPTS", 10),
			BaseBackoff: time.Duration(getEnvAsInt("RELEASE_BASE_BACKOFF_SECONDS", 15)) * time.Second,
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Inventory.Timeout <= 0 || c.Catalog.Timeout <= 0 {
		return fmt.Errorf("downstream timeouts must be positive")
	}

	if c.Booking.MaxParticipants < 1 {
		return fmt.Errorf("BOOKING_MAX_PARTICIPANTS must be at least 1")
	}

	if c.ReleaseWorker.MaxAttempts < 1 {
		return fmt.Errorf("RELEASE_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
