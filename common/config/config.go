package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Model     ModelConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	Features  FeatureFlags
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig holds workflow engine settings
type EngineConfig struct {
	MaxConcurrentRuns   int
	NodeTimeout         time.Duration
	ApprovalTimeout     time.Duration
	RetryBackoff        time.Duration
	RetryMultiplier     float64
	RetryMaxBackoff     time.Duration
	EventStream         string
	EventChannel        string
	WebhookAllowPrivate bool
	WebhookTimeout      time.Duration
}

// ModelConfig holds AI model provider settings
type ModelConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

// CacheConfig holds plan-cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// FeatureFlags for deployment toggles
type FeatureFlags struct {
	EnableEvents    bool
	EnableRateLimit bool
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "weft"),
			User:        getEnv("POSTGRES_USER", "weft"),
			Password:    getEnv("POSTGRES_PASSWORD", "weft"),
			SSLMode:     getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			MaxConcurrentRuns:   getEnvInt("WEFT_MAX_CONCURRENT_RUNS", 32),
			NodeTimeout:         getEnvDuration("WEFT_NODE_TIMEOUT", 5*time.Minute),
			ApprovalTimeout:     getEnvDuration("WEFT_APPROVAL_TIMEOUT", time.Hour),
			RetryBackoff:        getEnvDuration("WEFT_ENGINE_RETRY_BACKOFF", time.Second),
			RetryMultiplier:     getEnvFloat("WEFT_ENGINE_RETRY_MULTIPLIER", 2.0),
			RetryMaxBackoff:     getEnvDuration("WEFT_ENGINE_RETRY_MAX_BACKOFF", 30*time.Second),
			EventStream:         getEnv("WEFT_EVENT_STREAM", "weft:run_events"),
			EventChannel:        getEnv("WEFT_EVENT_CHANNEL", "weft:run_updates"),
			WebhookAllowPrivate: getEnvBool("WEFT_WEBHOOK_ALLOW_PRIVATE", false),
			WebhookTimeout:      getEnvDuration("WEFT_WEBHOOK_TIMEOUT", 30*time.Second),
		},
		Model: ModelConfig{
			BaseURL:      getEnv("MODEL_BASE_URL", "https://api.openai.com/v1"),
			APIKey:       getEnv("MODEL_API_KEY", ""),
			DefaultModel: getEnv("MODEL_DEFAULT", "gpt-4o-mini"),
			Timeout:      getEnvDuration("MODEL_TIMEOUT", 2*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
		Features: FeatureFlags{
			EnableEvents:    getEnvBool("ENABLE_EVENTS", true),
			EnableRateLimit: getEnvBool("ENABLE_RATE_LIMIT", false),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max concurrent runs must be >= 1")
	}

	if c.Engine.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the host:port address for Redis
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
