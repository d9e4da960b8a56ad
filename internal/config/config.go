package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the catalog sync service
type Config struct {
	// Server
	Port           string
	Environment    string
	AllowedOrigins []string

	// Database
	DatabaseURL string

	// Secrets: GCP Secret Manager when a project is set, otherwise the
	// encrypted secrets table keyed by SecretsEncryptionKey
	GCPProjectID         string
	SecretsEncryptionKey string

	// Redis backs the run lock when set; the sync_locks table otherwise
	RedisURL string

	// Local files
	ImageRoot          string
	DiagnosticsLogPath string
	DiagnosticsEnabled bool

	// Sync Settings
	SyncDefaultLimit int
	SyncMaxLimit     int
	SyncWorkers      int
	SyncLockTTL      time.Duration

	// Remote API
	APIVersion      string
	BaseURLOverride string
	HTTPTimeout     time.Duration
	RateLimit       float64 // requests per second
}

// Load loads configuration from the environment and an optional .env file
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Build DATABASE_URL from components using GCP Secret Manager for password
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := secrets.GetDBPassword()
		dbName := getEnv("DB_NAME", "catalog_sync")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:           getEnv("PORT", "8099"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		DatabaseURL:    databaseURL,

		GCPProjectID:         getEnv("GCP_PROJECT_ID", ""),
		SecretsEncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		ImageRoot:          getEnv("IMAGE_ROOT", "./uploads"),
		DiagnosticsLogPath: getEnv("DIAGNOSTICS_LOG_PATH", "./logs/square_sync.log"),
		DiagnosticsEnabled: getEnvAsBool("DIAGNOSTICS_ENABLED", true),

		SyncDefaultLimit: getEnvAsInt("SYNC_DEFAULT_LIMIT", 5),
		SyncMaxLimit:     getEnvAsInt("SYNC_MAX_LIMIT", 100),
		SyncWorkers:      getEnvAsInt("SYNC_WORKERS", 4),
		SyncLockTTL:      getEnvAsDuration("SYNC_LOCK_TTL", 10*time.Minute),

		APIVersion:      getEnv("SQUARE_API_VERSION", "2023-10-18"),
		BaseURLOverride: getEnv("SQUARE_BASE_URL", ""),
		HTTPTimeout:     getEnvAsDuration("SQUARE_HTTP_TIMEOUT", 30*time.Second),
		RateLimit:       getEnvAsFloat("SQUARE_RATE_LIMIT", 10),
	}

	if config.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if config.GCPProjectID == "" && config.SecretsEncryptionKey == "" {
		log.Println("Warning: neither GCP_PROJECT_ID nor SECRETS_ENCRYPTION_KEY set, credentials cannot be saved")
	}

	return config
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvAsList splits a comma separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
