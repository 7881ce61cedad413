package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultAPIKeyHeader carries the credential when NOOSPHERA_API_KEY_HEADER is unset.
const DefaultAPIKeyHeader = "X-Noosphera-API-Key"

// Config holds all configuration for the noosphera server and CLI.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	AdminURL        string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	APIKeyHeader       string
	HashCost           int
	HashWorkers        int
	HashQueue          int
	TouchTimeout       time.Duration
	RateLimitPerMinute int
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("NOOSPHERA_PORT", 8080),
			Env:      envString("NOOSPHERA_ENV", "development"),
			LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			URL:             dbURL,
			AdminURL:        envString("DATABASE_ADMIN_URL", dbURL),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			APIKeyHeader:       envString("NOOSPHERA_API_KEY_HEADER", DefaultAPIKeyHeader),
			HashCost:           envInt("AUTH_HASH_COST", bcrypt.DefaultCost),
			HashWorkers:        envInt("AUTH_HASH_WORKERS", runtime.NumCPU()),
			HashQueue:          envInt("AUTH_HASH_QUEUE", 64),
			TouchTimeout:       envDuration("AUTH_TOUCH_TIMEOUT", 5*time.Second),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Auth.HashCost < bcrypt.MinCost || c.Auth.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("AUTH_HASH_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.HashCost)
	}
	if c.Auth.HashWorkers <= 0 {
		return fmt.Errorf("AUTH_HASH_WORKERS must be positive, got %d", c.Auth.HashWorkers)
	}
	if c.Auth.HashQueue < 0 {
		return fmt.Errorf("AUTH_HASH_QUEUE must not be negative, got %d", c.Auth.HashQueue)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
