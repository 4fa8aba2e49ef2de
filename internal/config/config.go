package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the tenantd server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Admin    AdminConfig
	Tenant   TenantConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// AdminConfig gates the administrative tenant API. Exactly one of APIKey
// (compared constant-time) or APIKeyHash (bcrypt hash of the key) must be set;
// there is deliberately no built-in default.
type AdminConfig struct {
	APIKey        string
	APIKeyHash    string
	RatePerMinute int
}

type TenantConfig struct {
	CacheTTL time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TENANTD_PORT", 8080),
			Env:  envString("TENANTD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Admin: AdminConfig{
			APIKey:        os.Getenv("ADMIN_API_KEY"),
			APIKeyHash:    os.Getenv("ADMIN_API_KEY_HASH"),
			RatePerMinute: envInt("ADMIN_RATE_LIMIT_PER_MIN", 60),
		},
		Tenant: TenantConfig{
			CacheTTL: envDuration("TENANT_CACHE_TTL", 30*time.Second),
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

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Admin.APIKey == "" && c.Admin.APIKeyHash == "" {
		return fmt.Errorf("one of ADMIN_API_KEY or ADMIN_API_KEY_HASH is required")
	}
	if c.Admin.APIKeyHash != "" && !strings.HasPrefix(c.Admin.APIKeyHash, "$2") {
		return fmt.Errorf("ADMIN_API_KEY_HASH must be a bcrypt hash")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
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
