package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers selectable through STORE_DRIVER
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	DynamoDB  DynamoDBConfig
	Auth      AuthConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// StoreConfig selects the repository implementation
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DynamoDBConfig holds the DynamoDB connection settings
type DynamoDBConfig struct {
	Region       string
	Endpoint     string // optional; set for local DynamoDB
	AccessKey    string
	SecretKey    string
	TablePrefix  string
	CreateTables bool
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

// LogConfig holds the logger settings
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds the per-client request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SchedulerConfig holds the background job settings
type SchedulerConfig struct {
	Enabled      bool
	ExpirySpec   string // cron spec for the offer expiry sweep
	SweepTimeout time.Duration
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres, StoreDynamoDB:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

// LoadConfig loads the configuration from environment variables. A .env file
// in the working directory is read first when present; real environment
// variables take precedence over it.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreMemory),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Username:     getEnv("DB_USERNAME", "postgres"),
			Password:     getEnv("DB_PASSWORD", "password"),
			DBName:       getEnv("DB_NAME", "intentmarket"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		DynamoDB: DynamoDBConfig{
			Region:       getEnv("AWS_REGION", "us-east-1"),
			Endpoint:     getEnv("DYNAMODB_ENDPOINT", ""),
			AccessKey:    getEnv("AWS_ACCESS_KEY_ID", "local"),
			SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", "local"),
			TablePrefix:  getEnv("DYNAMODB_TABLE_PREFIX", "intentmarket_"),
			CreateTables: getEnvAsBool("DYNAMODB_CREATE_TABLES", false),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-here"),
			TokenDuration: getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
			ExpirySpec:   getEnv("OFFER_EXPIRY_SCHEDULE", "@every 1m"),
			SweepTimeout: getEnvAsDuration("OFFER_EXPIRY_TIMEOUT", 30*time.Second),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
