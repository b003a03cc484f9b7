// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	JWTSecret        string        `env:"JWT_SECRET,required"`
	JWTTTL           time.Duration `env:"JWT_TTL" envDefault:"24h"`
	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockout     time.Duration `env:"LOGIN_LOCKOUT" envDefault:"15m"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitLoginRPS   int  `env:"RATE_LIMIT_LOGIN_RPS" envDefault:"5"`
	RateLimitLoginBurst int  `env:"RATE_LIMIT_LOGIN_BURST" envDefault:"10"`

	// Export scheduler
	ExportSchedulerEnabled bool          `env:"EXPORT_SCHEDULER_ENABLED" envDefault:"true"`
	ExportPollInterval     time.Duration `env:"EXPORT_POLL_INTERVAL" envDefault:"60s"`
	ExportMaxConcurrent    int           `env:"EXPORT_MAX_CONCURRENT" envDefault:"4"`
	ExportTimeout          time.Duration `env:"EXPORT_TIMEOUT" envDefault:"10m"`
	ExportRowLimit         int           `env:"EXPORT_ROW_LIMIT" envDefault:"100000"`
	ExportURLTTL           time.Duration `env:"EXPORT_URL_TTL" envDefault:"24h"`
	ExportNotifyRPS        float64       `env:"EXPORT_NOTIFY_RPS" envDefault:"5"`
	ExportNotifySecret     string        `env:"EXPORT_NOTIFY_SECRET"`

	// Object storage (S3 compatible)
	StorageEndpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	StorageAccessKey string `env:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `env:"STORAGE_SECRET_KEY"`
	StorageBucket    string `env:"STORAGE_BUCKET" envDefault:"solarvest-exports"`
	StorageUseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	StorageRegion    string `env:"STORAGE_REGION" envDefault:"us-east-1"`

	// CRM
	CRMRoutingStrategy string `env:"CRM_ROUTING_STRATEGY" envDefault:"least_loaded"`

	// Dashboard
	DashboardCacheTTL time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"60s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://admin.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// StorageConfigured reports whether object storage credentials are present.
func (c *Config) StorageConfigured() bool {
	return c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.ExportMaxConcurrent < 1 {
		return errors.New("EXPORT_MAX_CONCURRENT must be at least 1")
	}
	if c.ExportPollInterval < time.Second {
		return errors.New("EXPORT_POLL_INTERVAL must be at least 1s")
	}
	switch c.CRMRoutingStrategy {
	case "round_robin", "least_loaded":
	default:
		return fmt.Errorf("CRM_ROUTING_STRATEGY must be round_robin or least_loaded, got %q", c.CRMRoutingStrategy)
	}
	if c.LoginMaxAttempts < 1 {
		return errors.New("LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Load reads an optional .env file, parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are skipped;
// variables already set in the environment win.
func LoadFiles(paths ...string) (*Config, error) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
